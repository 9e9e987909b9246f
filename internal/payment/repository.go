package payments

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	database "github.com/homevest/backend/internal/db"
)

type Holding struct {
	PortfolioID    uuid.UUID `json:"portfolio_id"`
	PortfolioTitle string    `json:"portfolio_title"`
	Shares         int       `json:"shares"`
	Invested       float64   `json:"invested"`
	CurrentValue   float64   `json:"current_value"`
}

// CapitalRow joins one completed payment with the investor's name and the
// portfolio's total share count. The ownership percentage is derived in the
// service so the arithmetic stays testable without a database.
type CapitalRow struct {
	InvestorName    string
	InvestedShares  int
	PortfolioShares int
}

type PaymentRepository interface {
	Create(ctx context.Context, q database.Queryer, payment *Payment) error
	FindByTransactionID(ctx context.Context, q database.Queryer, transactionID string) (*Payment, error)
	FindAllByUserID(ctx context.Context, userID string) ([]Payment, error)
	FindAll(ctx context.Context) ([]Payment, error)
	TotalCapital(ctx context.Context) (float64, error)
	CapitalRows(ctx context.Context) ([]CapitalRow, error)
	UserHoldings(ctx context.Context, userID string) ([]Holding, error)
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, q database.Queryer, payment *Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	query := `
		INSERT INTO payments (id, user_id, portfolio_id, amount, fee, net_amount, currency,
		                      invested_shares, status, provider, transaction_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query,
		payment.ID, payment.UserID, payment.PortfolioID, payment.Amount, payment.Fee, payment.NetAmount,
		payment.Currency, payment.InvestedShares, payment.Status, payment.Provider, payment.TransactionID,
		payment.Description, payment.Metadata,
	).Scan(&payment.CreatedAt)
}

const paymentColumns = `id, user_id, portfolio_id, amount, fee, net_amount, currency,
	invested_shares, status, provider, transaction_id, description, metadata, created_at`

func (r *paymentRepository) FindByTransactionID(ctx context.Context, q database.Queryer, transactionID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`
	var p Payment
	err := q.QueryRowContext(ctx, query, transactionID).Scan(
		&p.ID, &p.UserID, &p.PortfolioID, &p.Amount, &p.Fee, &p.NetAmount, &p.Currency,
		&p.InvestedShares, &p.Status, &p.Provider, &p.TransactionID, &p.Description, &p.Metadata, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) scanPayments(rows *sql.Rows) ([]Payment, error) {
	defer rows.Close()
	var paymentsList []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.PortfolioID, &p.Amount, &p.Fee, &p.NetAmount, &p.Currency,
			&p.InvestedShares, &p.Status, &p.Provider, &p.TransactionID, &p.Description, &p.Metadata, &p.CreatedAt); err != nil {
			return nil, err
		}
		paymentsList = append(paymentsList, p)
	}
	return paymentsList, rows.Err()
}

func (r *paymentRepository) FindAllByUserID(ctx context.Context, userID string) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return r.scanPayments(rows)
}

func (r *paymentRepository) FindAll(ctx context.Context) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.scanPayments(rows)
}

func (r *paymentRepository) TotalCapital(ctx context.Context) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = $1`
	var total float64
	err := r.db.QueryRowContext(ctx, query, StatusCompleted).Scan(&total)
	return total, err
}

func (r *paymentRepository) CapitalRows(ctx context.Context) ([]CapitalRow, error) {
	query := `
		SELECT u.name, pay.invested_shares, p.shares
		FROM payments pay
		JOIN users u ON u.id = pay.user_id
		JOIN portfolios p ON p.id = pay.portfolio_id
		WHERE pay.status = $1
		ORDER BY pay.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var capitalRows []CapitalRow
	for rows.Next() {
		var row CapitalRow
		if err := rows.Scan(&row.InvestorName, &row.InvestedShares, &row.PortfolioShares); err != nil {
			return nil, err
		}
		capitalRows = append(capitalRows, row)
	}
	return capitalRows, rows.Err()
}

func (r *paymentRepository) UserHoldings(ctx context.Context, userID string) ([]Holding, error) {
	query := `
		SELECT i.portfolio_id, p.title, SUM(i.shares), SUM(i.total_investment),
		       SUM(i.shares) * p.share_price
		FROM investments i
		JOIN portfolios p ON p.id = i.portfolio_id
		WHERE i.investor_id = $1
		GROUP BY i.portfolio_id, p.title, p.share_price
		ORDER BY p.title
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.PortfolioID, &h.PortfolioTitle, &h.Shares, &h.Invested, &h.CurrentValue); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
