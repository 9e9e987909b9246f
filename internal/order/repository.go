package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	database "github.com/homevest/backend/internal/db"
)

// Cart is the single open order a user can have. One row per user, upserts
// replace the previous contents.
type Cart struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             string          `json:"user_id"`
	PortfolioID        uuid.UUID       `json:"portfolio_id"`
	Shares             int             `json:"shares"`
	BankAccountID      *uuid.UUID      `json:"bank_account_id,omitempty"`
	BankAccountDetails json.RawMessage `json:"bank_account_details,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Checkout is the audit row written at settlement. Portfolio and bank
// details are frozen as JSON so later edits to either do not rewrite
// history.
type Checkout struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             string          `json:"user_id"`
	PortfolioID        uuid.UUID       `json:"portfolio_id"`
	PortfolioDetails   json.RawMessage `json:"portfolio_details"`
	BankAccountID      *uuid.UUID      `json:"bank_account_id,omitempty"`
	BankAccountDetails json.RawMessage `json:"bank_account_details,omitempty"`
	Shares             int             `json:"shares"`
	PaymentID          uuid.UUID       `json:"payment_id"`
	CreatedAt          time.Time       `json:"created_at"`
}

type PendingIntent struct {
	IntentID  string    `json:"intent_id"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderRepository interface {
	UpsertCart(ctx context.Context, cart *Cart) error
	FindCartByUserID(ctx context.Context, userID string) (*Cart, error)
	UpdateCartShares(ctx context.Context, userID string, shares int) (int64, error)
	AttachBankAccount(ctx context.Context, userID string, bankAccountID uuid.UUID, details json.RawMessage) (int64, error)
	DeleteCart(ctx context.Context, q database.Queryer, userID string) error
	CreateCheckout(ctx context.Context, q database.Queryer, checkout *Checkout) error
	FindCheckoutsByUserID(ctx context.Context, userID string) ([]Checkout, error)
	InsertPendingIntent(ctx context.Context, intent *PendingIntent) error
	FindPendingIntent(ctx context.Context, intentID string) (*PendingIntent, error)
	ListPendingIntents(ctx context.Context) ([]PendingIntent, error)
	DeletePendingIntent(ctx context.Context, intentID string) error
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) UpsertCart(ctx context.Context, cart *Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	query := `
		INSERT INTO carts (id, user_id, portfolio_id, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET portfolio_id = EXCLUDED.portfolio_id,
		    shares = EXCLUDED.shares,
		    bank_account_id = NULL,
		    bank_account_details = NULL,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, cart.ID, cart.UserID, cart.PortfolioID, cart.Shares).
		Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
}

func (r *orderRepository) FindCartByUserID(ctx context.Context, userID string) (*Cart, error) {
	query := `
		SELECT id, user_id, portfolio_id, shares, bank_account_id, bank_account_details, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`
	var cart Cart
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID, &cart.UserID, &cart.PortfolioID, &cart.Shares,
		&cart.BankAccountID, &cart.BankAccountDetails, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *orderRepository) UpdateCartShares(ctx context.Context, userID string, shares int) (int64, error) {
	query := `UPDATE carts SET shares = $2, updated_at = NOW() WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID, shares)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *orderRepository) AttachBankAccount(ctx context.Context, userID string, bankAccountID uuid.UUID, details json.RawMessage) (int64, error) {
	query := `
		UPDATE carts
		SET bank_account_id = $2, bank_account_details = $3, updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, bankAccountID, details)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *orderRepository) DeleteCart(ctx context.Context, q database.Queryer, userID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return err
}

func (r *orderRepository) CreateCheckout(ctx context.Context, q database.Queryer, checkout *Checkout) error {
	if checkout.ID == uuid.Nil {
		checkout.ID = uuid.New()
	}
	query := `
		INSERT INTO checkouts (id, user_id, portfolio_id, portfolio_details, bank_account_id,
		                       bank_account_details, shares, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query,
		checkout.ID, checkout.UserID, checkout.PortfolioID, checkout.PortfolioDetails,
		checkout.BankAccountID, checkout.BankAccountDetails, checkout.Shares, checkout.PaymentID,
	).Scan(&checkout.CreatedAt)
}

func (r *orderRepository) FindCheckoutsByUserID(ctx context.Context, userID string) ([]Checkout, error) {
	query := `
		SELECT id, user_id, portfolio_id, portfolio_details, bank_account_id, bank_account_details,
		       shares, payment_id, created_at
		FROM checkouts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkouts []Checkout
	for rows.Next() {
		var c Checkout
		if err := rows.Scan(&c.ID, &c.UserID, &c.PortfolioID, &c.PortfolioDetails, &c.BankAccountID,
			&c.BankAccountDetails, &c.Shares, &c.PaymentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		checkouts = append(checkouts, c)
	}
	return checkouts, rows.Err()
}

func (r *orderRepository) InsertPendingIntent(ctx context.Context, intent *PendingIntent) error {
	query := `
		INSERT INTO pending_transfer_intents (intent_id, user_id, provider)
		VALUES ($1, $2, $3)
		ON CONFLICT (intent_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, intent.IntentID, intent.UserID, intent.Provider)
	return err
}

func (r *orderRepository) FindPendingIntent(ctx context.Context, intentID string) (*PendingIntent, error) {
	query := `
		SELECT intent_id, user_id, provider, created_at
		FROM pending_transfer_intents
		WHERE intent_id = $1
	`
	var intent PendingIntent
	err := r.db.QueryRowContext(ctx, query, intentID).Scan(
		&intent.IntentID, &intent.UserID, &intent.Provider, &intent.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *orderRepository) ListPendingIntents(ctx context.Context) ([]PendingIntent, error) {
	query := `
		SELECT intent_id, user_id, provider, created_at
		FROM pending_transfer_intents
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []PendingIntent
	for rows.Next() {
		var intent PendingIntent
		if err := rows.Scan(&intent.IntentID, &intent.UserID, &intent.Provider, &intent.CreatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

func (r *orderRepository) DeletePendingIntent(ctx context.Context, intentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_transfer_intents WHERE intent_id = $1`, intentID)
	return err
}
