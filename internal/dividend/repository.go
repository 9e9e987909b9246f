package dividends

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	database "github.com/homevest/backend/internal/db"
)

// PortfolioDividend is one declared distribution for a portfolio.
type PortfolioDividend struct {
	ID              uuid.UUID `json:"id"`
	PortfolioID     uuid.UUID `json:"portfolio_id"`
	NetRentalIncome float64   `json:"net_rental_income"`
	Expenses        float64   `json:"expenses"`
	TotalRevenue    float64   `json:"total_revenue"`
	CreatedAt       time.Time `json:"created_at"`
}

// UserDividend is one investor's slice of a distribution.
type UserDividend struct {
	ID                  uuid.UUID `json:"id"`
	UserID              string    `json:"user_id"`
	PortfolioID         uuid.UUID `json:"portfolio_id"`
	PortfolioDividendID uuid.UUID `json:"portfolio_dividend_id"`
	TotalShares         int       `json:"total_shares"`
	Dividend            float64   `json:"dividend"`
	CreatedAt           time.Time `json:"created_at"`
}

type DividendRepository interface {
	CreatePortfolioDividend(ctx context.Context, q database.Queryer, dividend *PortfolioDividend) error
	CreateUserDividend(ctx context.Context, q database.Queryer, dividend *UserDividend) error
	FindByPortfolioID(ctx context.Context, portfolioID uuid.UUID) ([]PortfolioDividend, error)
	FindUserDividends(ctx context.Context, userID string) ([]UserDividend, error)
	SumUserDividends(ctx context.Context, userID string) (float64, error)
}

type dividendRepository struct {
	db *sql.DB
}

func NewDividendRepository(db *sql.DB) DividendRepository {
	return &dividendRepository{db: db}
}

func (r *dividendRepository) CreatePortfolioDividend(ctx context.Context, q database.Queryer, dividend *PortfolioDividend) error {
	if dividend.ID == uuid.Nil {
		dividend.ID = uuid.New()
	}
	query := `
		INSERT INTO portfolio_dividends (id, portfolio_id, net_rental_income, expenses, total_revenue)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query,
		dividend.ID, dividend.PortfolioID, dividend.NetRentalIncome, dividend.Expenses, dividend.TotalRevenue,
	).Scan(&dividend.CreatedAt)
}

func (r *dividendRepository) CreateUserDividend(ctx context.Context, q database.Queryer, dividend *UserDividend) error {
	if dividend.ID == uuid.Nil {
		dividend.ID = uuid.New()
	}
	query := `
		INSERT INTO user_dividends (id, user_id, portfolio_id, portfolio_dividend_id, total_shares, dividend)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query,
		dividend.ID, dividend.UserID, dividend.PortfolioID, dividend.PortfolioDividendID,
		dividend.TotalShares, dividend.Dividend,
	).Scan(&dividend.CreatedAt)
}

func (r *dividendRepository) FindByPortfolioID(ctx context.Context, portfolioID uuid.UUID) ([]PortfolioDividend, error) {
	query := `
		SELECT id, portfolio_id, net_rental_income, expenses, total_revenue, created_at
		FROM portfolio_dividends
		WHERE portfolio_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dividendsList []PortfolioDividend
	for rows.Next() {
		var d PortfolioDividend
		if err := rows.Scan(&d.ID, &d.PortfolioID, &d.NetRentalIncome, &d.Expenses, &d.TotalRevenue, &d.CreatedAt); err != nil {
			return nil, err
		}
		dividendsList = append(dividendsList, d)
	}
	return dividendsList, rows.Err()
}

func (r *dividendRepository) SumUserDividends(ctx context.Context, userID string) (float64, error) {
	query := `SELECT COALESCE(SUM(dividend), 0) FROM user_dividends WHERE user_id = $1`
	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *dividendRepository) FindUserDividends(ctx context.Context, userID string) ([]UserDividend, error) {
	query := `
		SELECT id, user_id, portfolio_id, portfolio_dividend_id, total_shares, dividend, created_at
		FROM user_dividends
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dividendsList []UserDividend
	for rows.Next() {
		var d UserDividend
		if err := rows.Scan(&d.ID, &d.UserID, &d.PortfolioID, &d.PortfolioDividendID, &d.TotalShares, &d.Dividend, &d.CreatedAt); err != nil {
			return nil, err
		}
		dividendsList = append(dividendsList, d)
	}
	return dividendsList, rows.Err()
}
