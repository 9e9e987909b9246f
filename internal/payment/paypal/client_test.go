package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturedOrderBody() map[string]interface{} {
	return map[string]interface{}{
		"id":     "ORD-1",
		"status": "COMPLETED",
		"purchase_units": []map[string]interface{}{
			{
				"payments": map[string]interface{}{
					"captures": []map[string]interface{}{
						{
							"id":     "CAP-1",
							"status": "COMPLETED",
							"seller_receivable_breakdown": map[string]interface{}{
								"gross_amount": map[string]string{"value": "500.00"},
								"paypal_fee":   map[string]string{"value": "14.80"},
								"net_amount":   map[string]string{"value": "485.20"},
							},
						},
					},
				},
			},
		},
	}
}

func newCaptureTestServer(captureCalls *int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders/ORD-1/capture", func(w http.ResponseWriter, r *http.Request) {
		*captureCalls++
		if *captureCalls > 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"name": "UNPROCESSABLE_ENTITY",
				"details": []map[string]string{
					{"issue": "ORDER_ALREADY_CAPTURED"},
				},
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(capturedOrderBody())
	})
	mux.HandleFunc("GET /v2/checkout/orders/ORD-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(capturedOrderBody())
	})
	return httptest.NewServer(mux)
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		clientID:   "client-id",
		secret:     "secret",
		baseURL:    srv.URL,
		httpClient: srv.Client(),
	}
}

func TestCaptureOrder_ExtractsFeeBreakdown(t *testing.T) {
	captureCalls := 0
	srv := newCaptureTestServer(&captureCalls)
	defer srv.Close()

	result, err := newTestClient(srv).CaptureOrder(context.Background(), "ORD-1")
	require.NoError(t, err)

	assert.Equal(t, "CAP-1", result.ID)
	assert.Equal(t, "COMPLETED", result.Status)
	assert.InDelta(t, 500.0, result.Gross, 0.001)
	assert.InDelta(t, 14.80, result.Fee, 0.001)
	assert.InDelta(t, 485.20, result.Net, 0.001)
}

func TestCaptureOrder_ReplayReadsBackExistingCapture(t *testing.T) {
	captureCalls := 0
	srv := newCaptureTestServer(&captureCalls)
	defer srv.Close()

	client := newTestClient(srv)
	first, err := client.CaptureOrder(context.Background(), "ORD-1")
	require.NoError(t, err)

	// The second capture hits ORDER_ALREADY_CAPTURED and must resolve to
	// the same capture id and amounts instead of an error.
	second, err := client.CaptureOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 2, captureCalls)
	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, first.Gross, second.Gross, 0.001)
	assert.InDelta(t, first.Net, second.Net, 0.001)
}

func TestTokenIsCachedUntilExpiry(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(srv)
	for i := 0; i < 3; i++ {
		_, err := client.token(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)

	client.tokenExpiry = time.Now().Add(-time.Second)
	_, err := client.token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tokenCalls)
}
