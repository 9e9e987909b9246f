package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient wallet funds")
	ErrInvalidPeriod     = errors.New("history period is not supported")
)

// BalanceSummary carries the dashboard figures. Balance is the remaining
// amount of the newest ledger row; CashIn and CashOut are full sums over
// CREDIT and DEBIT rows. The asymmetry is deliberate: a NULL-type seed row
// moves the balance without ever appearing in either sum.
type BalanceSummary struct {
	Balance float64 `json:"balance"`
	CashIn  float64 `json:"cash_in"`
	CashOut float64 `json:"cash_out"`
}

type Service interface {
	Open(ctx context.Context, userID string, openingAmount float64) (*Entry, error)
	Credit(ctx context.Context, userID string, amount float64) (*Entry, error)
	Debit(ctx context.Context, userID string, amount float64) (*Entry, error)
	Balance(ctx context.Context, userID string) (*BalanceSummary, error)
	History(ctx context.Context, userID string) ([]Entry, error)
	HistoryMonths(ctx context.Context, userID string, months int) ([]Entry, error)
}

type service struct {
	db   *sql.DB
	repo Repository
}

func NewWalletService(db *sql.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

// Open creates the seed row for a new user's wallet. A second call is a
// no-op so registration can call it unconditionally.
func (s *service) Open(ctx context.Context, userID string, openingAmount float64) (*Entry, error) {
	exists, err := s.repo.seedExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	entry := &Entry{
		UserID:          userID,
		Amount:          openingAmount,
		BalanceType:     nil,
		RemainingAmount: openingAmount,
	}
	if err := s.repo.insert(ctx, s.db, entry); err != nil {
		return nil, fmt.Errorf("could not open wallet: %v", err)
	}
	return entry, nil
}

func (s *service) Credit(ctx context.Context, userID string, amount float64) (*Entry, error) {
	return s.append(ctx, userID, amount, BalanceTypeCredit)
}

func (s *service) Debit(ctx context.Context, userID string, amount float64) (*Entry, error) {
	return s.append(ctx, userID, amount, BalanceTypeDebit)
}

func (s *service) append(ctx context.Context, userID string, amount float64, balanceType string) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	latest, err := s.repo.latestEntry(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var current float64
	if latest != nil {
		current = latest.RemainingAmount
	}

	remaining := current + amount
	if balanceType == BalanceTypeDebit {
		remaining = current - amount
		if remaining < 0 {
			return nil, ErrInsufficientFunds
		}
	}

	bt := balanceType
	entry := &Entry{
		UserID:          userID,
		Amount:          amount,
		BalanceType:     &bt,
		RemainingAmount: remaining,
	}
	if err := s.repo.insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Balance(ctx context.Context, userID string) (*BalanceSummary, error) {
	latest, err := s.repo.latestEntry(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	cashIn, err := s.repo.sumByBalanceType(ctx, userID, BalanceTypeCredit)
	if err != nil {
		return nil, err
	}
	cashOut, err := s.repo.sumByBalanceType(ctx, userID, BalanceTypeDebit)
	if err != nil {
		return nil, err
	}

	summary := &BalanceSummary{CashIn: cashIn, CashOut: cashOut}
	if latest != nil {
		summary.Balance = latest.RemainingAmount
	}
	return summary, nil
}

func (s *service) History(ctx context.Context, userID string) ([]Entry, error) {
	return s.repo.findAllByUserID(ctx, userID)
}

func (s *service) HistoryMonths(ctx context.Context, userID string, months int) ([]Entry, error) {
	if months != 3 && months != 6 {
		return nil, ErrInvalidPeriod
	}
	since := time.Now().AddDate(0, -months, 0)
	return s.repo.findSince(ctx, userID, since)
}
