package paypal

import (
	"context"

	payments "github.com/homevest/backend/internal/payment"
)

// Provider adapts PayPal card orders to the payment rail interface.
// Unlike bank transfers, a captured order is final immediately.
type Provider struct {
	client *Client
}

func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Kind() string {
	return payments.ProviderPayPal
}

func (p *Provider) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	order, err := p.client.CreateOrder(ctx, req.Amount, currency, req.Description)
	if err != nil {
		return nil, err
	}
	return &payments.Intent{ID: order.ID, Status: order.Status}, nil
}

func (p *Provider) Finalize(ctx context.Context, orderID string) (*payments.Confirmation, error) {
	capture, err := p.client.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status := payments.StatusFailed
	if capture.Status == "COMPLETED" {
		status = payments.StatusCompleted
	}
	return &payments.Confirmation{
		TransactionID: capture.ID,
		Status:        status,
		Amount:        capture.Gross,
		Fee:           capture.Fee,
		NetAmount:     capture.Net,
		Raw:           capture.Raw,
	}, nil
}
