package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/homevest/backend/internal/db"
)

type stubProvider struct {
	kind string
}

func (s *stubProvider) Kind() string { return s.kind }

func (s *stubProvider) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return &Intent{ID: "intent"}, nil
}

func (s *stubProvider) Finalize(context.Context, string) (*Confirmation, error) {
	return &Confirmation{}, nil
}

type stubPaymentRepository struct {
	holdings    []Holding
	capitalRows []CapitalRow
}

func (s *stubPaymentRepository) Create(context.Context, database.Queryer, *Payment) error {
	return nil
}

func (s *stubPaymentRepository) FindByTransactionID(context.Context, database.Queryer, string) (*Payment, error) {
	return nil, ErrPaymentNotFound
}

func (s *stubPaymentRepository) FindAllByUserID(context.Context, string) ([]Payment, error) {
	return nil, nil
}

func (s *stubPaymentRepository) FindAll(context.Context) ([]Payment, error) {
	return nil, nil
}

func (s *stubPaymentRepository) TotalCapital(context.Context) (float64, error) {
	return 125000.50, nil
}

func (s *stubPaymentRepository) CapitalRows(context.Context) ([]CapitalRow, error) {
	return s.capitalRows, nil
}

func (s *stubPaymentRepository) UserHoldings(context.Context, string) ([]Holding, error) {
	return s.holdings, nil
}

func TestRegistryResolvesByKind(t *testing.T) {
	registry := Registry{}
	registry.Register(&stubProvider{kind: ProviderPlaid})
	registry.Register(&stubProvider{kind: ProviderPayPal})

	provider, err := registry.Get(ProviderPlaid)
	require.NoError(t, err)
	assert.Equal(t, ProviderPlaid, provider.Kind())

	_, err = registry.Get("STRIPE")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestUserPortfolioValueAggregation(t *testing.T) {
	repo := &stubPaymentRepository{
		holdings: []Holding{
			{PortfolioID: uuid.New(), PortfolioTitle: "Harborview", Shares: 4, Invested: 1000, CurrentValue: 1100},
			{PortfolioID: uuid.New(), PortfolioTitle: "Cedar Court", Shares: 2, Invested: 500, CurrentValue: 450},
		},
	}
	svc := NewPaymentService(repo, Registry{})

	value, err := svc.UserPortfolioValue(context.Background(), "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 1550.0, value.TotalValue, 0.001)
	assert.InDelta(t, 1500.0, value.Invested, 0.001)
	assert.Len(t, value.Holdings, 2)
}

func TestCapitalComputesOwnershipPercentage(t *testing.T) {
	repo := &stubPaymentRepository{
		capitalRows: []CapitalRow{
			{InvestorName: "Jordan Investor", InvestedShares: 25, PortfolioShares: 100},
			{InvestorName: "Sam Holder", InvestedShares: 3, PortfolioShares: 1000},
			{InvestorName: "Ghost Row", InvestedShares: 5, PortfolioShares: 0},
		},
	}
	svc := NewPaymentService(repo, Registry{})

	entries, err := svc.Capital(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Jordan Investor", entries[0].InvestorName)
	assert.Equal(t, 25, entries[0].TotalSharesOwned)
	assert.InDelta(t, 25.0, entries[0].PercentageOwnership, 0.001)
	assert.InDelta(t, 0.3, entries[1].PercentageOwnership, 0.001)
	// A zero-share portfolio must not divide by zero.
	assert.InDelta(t, 0.0, entries[2].PercentageOwnership, 0.001)
}

func TestRaisedCapitalPassesThrough(t *testing.T) {
	svc := NewPaymentService(&stubPaymentRepository{}, Registry{})

	raised, err := svc.RaisedCapital(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 125000.50, raised, 0.001)
}
