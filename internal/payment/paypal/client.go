package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Client talks to the PayPal Orders v2 API. Access tokens are cached
// until shortly before expiry so concurrent checkouts do not hammer the
// oauth endpoint.
type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient() *Client {
	baseURL := os.Getenv("PAYPAL_API_URL")
	if baseURL == "" {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	return &Client{
		clientID:   os.Getenv("PAYPAL_CLIENT_ID"),
		secret:     os.Getenv("PAYPAL_CLIENT_SECRET"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal oauth returned %s", resp.Status)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := &apiError{status: resp.StatusCode, method: method, path: path}
		var body struct {
			Name    string `json:"name"`
			Message string `json:"message"`
			Details []struct {
				Issue string `json:"issue"`
			} `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		apiErr.name = body.Name
		apiErr.message = body.Message
		if len(body.Details) > 0 {
			apiErr.issue = body.Details[0].Issue
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

const issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// apiError carries the PayPal error body so callers can react to specific
// issues instead of string-matching the message.
type apiError struct {
	status  int
	method  string
	path    string
	name    string
	message string
	issue   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("paypal %s %s returned %d: %s %s %s", e.method, e.path, e.status, e.name, e.issue, e.message)
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder opens a CAPTURE-intent order for the given amount.
func (c *Client) CreateOrder(ctx context.Context, amount, currency, description string) (*Order, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"description": description,
				"amount": map[string]string{
					"currency_code": currency,
					"value":         amount,
				},
			},
		},
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

type CaptureResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Gross  float64
	Fee    float64
	Net    float64
	Raw    json.RawMessage
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID                        string `json:"id"`
				Status                    string `json:"status"`
				SellerReceivableBreakdown struct {
					GrossAmount struct {
						Value string `json:"value"`
					} `json:"gross_amount"`
					PaypalFee struct {
						Value string `json:"value"`
					} `json:"paypal_fee"`
					NetAmount struct {
						Value string `json:"value"`
					} `json:"net_amount"`
				} `json:"seller_receivable_breakdown"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func parseMoney(value string) float64 {
	var amount float64
	_, _ = fmt.Sscanf(value, "%f", &amount)
	return amount
}

func captureResult(out captureResponse) *CaptureResult {
	result := &CaptureResult{ID: out.ID, Status: out.Status}
	if len(out.PurchaseUnits) > 0 && len(out.PurchaseUnits[0].Payments.Captures) > 0 {
		capture := out.PurchaseUnits[0].Payments.Captures[0]
		result.ID = capture.ID
		result.Status = capture.Status
		result.Gross = parseMoney(capture.SellerReceivableBreakdown.GrossAmount.Value)
		result.Fee = parseMoney(capture.SellerReceivableBreakdown.PaypalFee.Value)
		result.Net = parseMoney(capture.SellerReceivableBreakdown.NetAmount.Value)
	}
	raw, _ := json.Marshal(out)
	result.Raw = raw
	return result
}

// CaptureOrder captures an approved order and extracts the gross, fee and
// net amounts from the seller receivable breakdown. A replayed capture hits
// ORDER_ALREADY_CAPTURED; the original capture is then read back from the
// order so the caller sees the same confirmation both times.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var out captureResponse
	err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", nil, &out)
	if err != nil {
		var pe *apiError
		if errors.As(err, &pe) && pe.issue == issueOrderAlreadyCaptured {
			return c.GetOrder(ctx, orderID)
		}
		return nil, err
	}
	return captureResult(out), nil
}

// GetOrder reads an order back. Once captured, the order detail carries the
// same purchase-unit capture breakdown the capture call returns.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var out captureResponse
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return captureResult(out), nil
}
