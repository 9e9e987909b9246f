package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrPaymentIncomplete = errors.New("payment is not completed")
)

const (
	ProviderPlaid  = "PLAID"
	ProviderPayPal = "PAYPAL"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Payment is one settled (or settling) charge. TransactionID is the
// provider-side identifier and is unique, which is what makes settlement
// replays detectable.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	PortfolioID    uuid.UUID       `json:"portfolio_id"`
	Amount         float64         `json:"amount"`
	Fee            float64         `json:"fee"`
	NetAmount      float64         `json:"net_amount"`
	Currency       string          `json:"currency"`
	InvestedShares int             `json:"invested_shares"`
	Status         string          `json:"status"`
	Provider       string          `json:"provider"`
	TransactionID  string          `json:"transaction_id"`
	Description    string          `json:"description"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IntentRequest carries everything a provider needs to start a charge.
// Amount is pre-formatted with two decimal places because both provider
// APIs take string amounts on the wire.
type IntentRequest struct {
	UserID        string
	Amount        string
	Currency      string
	Description   string
	BankAccountID *uuid.UUID
	LegalName     string
}

// Intent is the provider-side handle for a charge that has been started
// but not yet captured. LinkToken is set by the bank rail only; the client
// opens Plaid Link with it to authorize the transfer.
type Intent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	LinkToken   string `json:"link_token,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Confirmation is the provider's final word on a charge. Fee and NetAmount
// are zero for providers that do not report a fee breakdown.
type Confirmation struct {
	TransactionID string
	Status        string
	Amount        float64
	Fee           float64
	NetAmount     float64
	Raw           json.RawMessage
}

// Provider abstracts a payment rail. Plaid transfers complete
// asynchronously, so Finalize may legitimately report a still-pending
// status and be called again later.
type Provider interface {
	Kind() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Finalize(ctx context.Context, intentID string) (*Confirmation, error)
}

// Registry resolves a provider by kind.
type Registry map[string]Provider

func (r Registry) Get(kind string) (Provider, error) {
	provider, ok := r[kind]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return provider, nil
}

func (r Registry) Register(provider Provider) {
	r[provider.Kind()] = provider
}
