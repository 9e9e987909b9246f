package payments

import (
	"context"
)

type PortfolioValue struct {
	Holdings   []Holding `json:"holdings"`
	TotalValue float64   `json:"total_value"`
	Invested   float64   `json:"invested"`
}

// CapitalEntry is one completed payment in the admin capital report.
type CapitalEntry struct {
	InvestorName        string  `json:"investor_name"`
	TotalSharesOwned    int     `json:"total_shares_owned"`
	PercentageOwnership float64 `json:"percentage_ownership"`
}

type Service interface {
	Provider(kind string) (Provider, error)
	UserTransactions(ctx context.Context, userID string) ([]Payment, error)
	AllTransactions(ctx context.Context) ([]Payment, error)
	RaisedCapital(ctx context.Context) (float64, error)
	Capital(ctx context.Context) ([]CapitalEntry, error)
	UserPortfolioValue(ctx context.Context, userID string) (*PortfolioValue, error)
}

type service struct {
	repo      PaymentRepository
	providers Registry
}

func NewPaymentService(repo PaymentRepository, providers Registry) Service {
	return &service{repo: repo, providers: providers}
}

func (s *service) Provider(kind string) (Provider, error) {
	return s.providers.Get(kind)
}

func (s *service) UserTransactions(ctx context.Context, userID string) ([]Payment, error) {
	return s.repo.FindAllByUserID(ctx, userID)
}

func (s *service) AllTransactions(ctx context.Context) ([]Payment, error) {
	return s.repo.FindAll(ctx)
}

// RaisedCapital sums every completed payment across all portfolios.
func (s *service) RaisedCapital(ctx context.Context) (float64, error) {
	return s.repo.TotalCapital(ctx)
}

// Capital lists every completed payment with the investor's name, the
// shares that payment bought and the resulting ownership percentage of the
// portfolio's total share count.
func (s *service) Capital(ctx context.Context) ([]CapitalEntry, error) {
	rows, err := s.repo.CapitalRows(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]CapitalEntry, 0, len(rows))
	for _, row := range rows {
		entry := CapitalEntry{
			InvestorName:     row.InvestorName,
			TotalSharesOwned: row.InvestedShares,
		}
		if row.PortfolioShares > 0 {
			entry.PercentageOwnership = float64(row.InvestedShares) / float64(row.PortfolioShares) * 100
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UserPortfolioValue marks holdings to the current share price, so the total
// moves when an admin reprices a portfolio.
func (s *service) UserPortfolioValue(ctx context.Context, userID string) (*PortfolioValue, error) {
	holdings, err := s.repo.UserHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	value := &PortfolioValue{Holdings: holdings}
	for _, h := range holdings {
		value.TotalValue += h.CurrentValue
		value.Invested += h.Invested
	}
	return value, nil
}
