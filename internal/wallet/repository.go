package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	BalanceTypeCredit = "CREDIT"
	BalanceTypeDebit  = "DEBIT"
)

// Entry is one append-only wallet ledger row. BalanceType is NULL only for
// the seed row created when a wallet is opened; seed rows are excluded from
// cash-in/cash-out sums.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Amount          float64   `json:"amount"`
	BalanceType     *string   `json:"balance_type"`
	RemainingAmount float64   `json:"remaining_amount"`
	CreatedAt       time.Time `json:"created_at"`
}

type Repository interface {
	insert(ctx context.Context, q queryer, entry *Entry) error
	latestEntry(ctx context.Context, q queryer, userID string) (*Entry, error)
	sumByBalanceType(ctx context.Context, userID, balanceType string) (float64, error)
	findAllByUserID(ctx context.Context, userID string) ([]Entry, error)
	findSince(ctx context.Context, userID string, since time.Time) ([]Entry, error)
	seedExists(ctx context.Context, userID string) (bool, error)
	lockUser(ctx context.Context, q queryer, userID string) error
}

// queryer lets ledger writes run on the caller's transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type walletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) Repository {
	return &walletRepository{db: db}
}

// lockUser serializes ledger writes for one user within the surrounding
// transaction. Balance is defined by the newest row, so two concurrent
// writers for the same user would otherwise both read the same prior
// remaining amount.
func (r *walletRepository) lockUser(ctx context.Context, q queryer, userID string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return err
}

func (r *walletRepository) insert(ctx context.Context, q queryer, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO wallets (id, user_id, amount, balance_type, remaining_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query, entry.ID, entry.UserID, entry.Amount, entry.BalanceType, entry.RemainingAmount).Scan(&entry.CreatedAt)
}

func (r *walletRepository) latestEntry(ctx context.Context, q queryer, userID string) (*Entry, error) {
	query := `
		SELECT id, user_id, amount, balance_type, remaining_amount, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var entry Entry
	err := q.QueryRowContext(ctx, query, userID).Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.BalanceType, &entry.RemainingAmount, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *walletRepository) sumByBalanceType(ctx context.Context, userID, balanceType string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallets
		WHERE user_id = $1 AND balance_type = $2
	`
	var total float64
	err := r.db.QueryRowContext(ctx, query, userID, balanceType).Scan(&total)
	return total, err
}

func (r *walletRepository) findAllByUserID(ctx context.Context, userID string) ([]Entry, error) {
	query := `
		SELECT id, user_id, amount, balance_type, remaining_amount, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.BalanceType, &entry.RemainingAmount, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *walletRepository) findSince(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	query := `
		SELECT id, user_id, amount, balance_type, remaining_amount, created_at
		FROM wallets
		WHERE user_id = $1 AND balance_type IS NOT NULL AND created_at >= $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.BalanceType, &entry.RemainingAmount, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *walletRepository) seedExists(ctx context.Context, userID string) (bool, error) {
	query := `SELECT COUNT(1) FROM wallets WHERE user_id = $1 AND balance_type IS NULL`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
