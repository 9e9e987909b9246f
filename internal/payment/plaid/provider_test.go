package plaid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	payments "github.com/homevest/backend/internal/payment"
)

type stubBankService struct {
	account *BankAccount
}

func (s *stubBankService) CreateLinkToken(_ context.Context, _ string) (*LinkTokenResponse, error) {
	return nil, nil
}

func (s *stubBankService) LinkBankAccount(_ context.Context, _, _ string) ([]BankAccount, error) {
	return nil, nil
}

func (s *stubBankService) ListBankAccounts(_ context.Context, _ string) ([]BankAccount, error) {
	return nil, nil
}

func (s *stubBankService) GetBankAccount(_ context.Context, accountID uuid.UUID, _ string) (*BankAccount, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, ErrBankAccountNotFound
	}
	return s.account, nil
}

func (s *stubBankService) RemoveBankAccount(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		clientID:   "client-id",
		secret:     "secret",
		baseURL:    srv.URL,
		httpClient: srv.Client(),
	}
}

func TestCreateIntent_ReturnsLinkTokenBoundToIntent(t *testing.T) {
	var linkTokenReq map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transfer/intent/create", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transfer_intent": map[string]string{
				"id":     "ti-1",
				"status": "PENDING",
				"amount": "500.00",
			},
		})
	})
	mux.HandleFunc("POST /link/token/create", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&linkTokenReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"link_token": "link-sandbox-abc",
			"expiration": time.Now().Add(30 * time.Minute).Format(time.RFC3339),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	bankID := uuid.New()
	banks := &stubBankService{account: &BankAccount{
		ID:          bankID,
		UserID:      "user-1",
		AccountID:   "acct-1",
		AccessToken: "access-token-1",
	}}
	provider := NewProvider(newTestClient(srv), banks)

	intent, err := provider.CreateIntent(context.Background(), payments.IntentRequest{
		UserID:        "user-1",
		Amount:        "500.00",
		Currency:      "USD",
		BankAccountID: &bankID,
		LegalName:     "Jordan Investor",
	})
	require.NoError(t, err)

	assert.Equal(t, "ti-1", intent.ID)
	assert.Equal(t, "link-sandbox-abc", intent.LinkToken)

	transfer, ok := linkTokenReq["transfer"].(map[string]interface{})
	require.True(t, ok, "link token request must carry the transfer block")
	assert.Equal(t, "ti-1", transfer["intent_id"])
	assert.Equal(t, "access-token-1", linkTokenReq["access_token"])
}

func TestCreateIntent_RequiresBankAccount(t *testing.T) {
	provider := NewProvider(&Client{}, &stubBankService{})

	_, err := provider.CreateIntent(context.Background(), payments.IntentRequest{UserID: "user-1", Amount: "100.00"})
	assert.ErrorIs(t, err, ErrMissingBankAccount)
}

func TestFinalize_MapsIntentStatuses(t *testing.T) {
	status := IntentStatusPending

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transfer/intent/get", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transfer_intent": map[string]string{
				"id":          "ti-1",
				"status":      status,
				"amount":      "500.00",
				"transfer_id": "tr-1",
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := NewProvider(newTestClient(srv), &stubBankService{})

	confirmation, err := provider.Finalize(context.Background(), "ti-1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, confirmation.Status)

	status = IntentStatusSucceeded
	confirmation, err = provider.Finalize(context.Background(), "ti-1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, confirmation.Status)
	assert.Equal(t, "tr-1", confirmation.TransactionID)
	assert.Equal(t, 500.0, confirmation.Amount)
}
