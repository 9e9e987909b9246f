package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Client talks to the Plaid REST API. The environment host defaults to
// sandbox so a missing PLAID_ENV never points at production.
type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client
}

func NewClient() *Client {
	env := os.Getenv("PLAID_ENV")
	if env == "" {
		env = "sandbox"
	}
	return &Client{
		clientID:   os.Getenv("PLAID_CLIENT_ID"),
		secret:     os.Getenv("PLAID_SECRET"),
		baseURL:    fmt.Sprintf("https://%s.plaid.com", env),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}, out interface{}) error {
	payload["client_id"] = c.clientID
	payload["secret"] = c.secret

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("plaid %s returned %s: %s %s", path, resp.Status, apiErr.ErrorCode, apiErr.ErrorMessage)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type LinkTokenResponse struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
}

// CreateLinkToken starts the Plaid Link flow for one user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error) {
	payload := map[string]interface{}{
		"client_name":   "HomeVest",
		"language":      "en",
		"country_codes": []string{"US"},
		"user": map[string]interface{}{
			"client_user_id": userID,
		},
		"products": []string{"auth", "transfer"},
	}
	var out LinkTokenResponse
	if err := c.post(ctx, "/link/token/create", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransferLinkToken binds a link token to an already created transfer
// intent. The client opens Plaid Link with it to authorize the debit against
// the bank behind accessToken.
func (c *Client) CreateTransferLinkToken(ctx context.Context, userID, accessToken, intentID string) (*LinkTokenResponse, error) {
	payload := map[string]interface{}{
		"client_name":   "HomeVest",
		"language":      "en",
		"country_codes": []string{"US"},
		"user": map[string]interface{}{
			"client_user_id": userID,
		},
		"products":     []string{"transfer"},
		"access_token": accessToken,
		"transfer": map[string]interface{}{
			"intent_id": intentID,
		},
	}
	var out LinkTokenResponse
	if err := c.post(ctx, "/link/token/create", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades the Link public token for the long-lived
// access token that every later transfer call needs.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var out exchangeResponse
	if err := c.post(ctx, "/item/public_token/exchange", map[string]interface{}{
		"public_token": publicToken,
	}, &out); err != nil {
		return "", "", err
	}
	return out.AccessToken, out.ItemID, nil
}

type Account struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	Subtype   string `json:"subtype"`
}

// GetAccounts lists the accounts behind an access token.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
		Item     struct {
			InstitutionName string `json:"institution_name"`
		} `json:"item"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]interface{}{
		"access_token": accessToken,
	}, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

type TransferIntent struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     string `json:"amount"`
	TransferID string `json:"transfer_id"`
}

const (
	IntentStatusPending   = "PENDING"
	IntentStatusSucceeded = "SUCCEEDED"
	IntentStatusFailed    = "FAILED"
)

// CreateTransferIntent opens an ACH debit for the given amount. The intent
// settles asynchronously, so the caller has to poll GetTransferIntent.
func (c *Client) CreateTransferIntent(ctx context.Context, accountID, legalName, amount, description string) (*TransferIntent, error) {
	payload := map[string]interface{}{
		"mode":        "PAYMENT",
		"amount":      amount,
		"description": description,
		"ach_class":   "ppd",
		"account_id":  accountID,
		"user": map[string]interface{}{
			"legal_name": legalName,
		},
	}
	var out struct {
		TransferIntent TransferIntent `json:"transfer_intent"`
	}
	if err := c.post(ctx, "/transfer/intent/create", payload, &out); err != nil {
		return nil, err
	}
	return &out.TransferIntent, nil
}

// GetTransferIntent reports the current status of an intent.
func (c *Client) GetTransferIntent(ctx context.Context, intentID string) (*TransferIntent, error) {
	var out struct {
		TransferIntent TransferIntent `json:"transfer_intent"`
	}
	if err := c.post(ctx, "/transfer/intent/get", map[string]interface{}{
		"transfer_intent_id": intentID,
	}, &out); err != nil {
		return nil, err
	}
	return &out.TransferIntent, nil
}
