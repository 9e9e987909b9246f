package portfolios

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	database "github.com/homevest/backend/internal/db"
)

type Portfolio struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	Slug                string     `json:"slug"`
	Description         string     `json:"description"`
	Address             string     `json:"address"`
	Shares              int        `json:"shares"`
	SharePrice          float64    `json:"share_price"`
	RemainingShares     int        `json:"remaining_shares"`
	RemainingInvestment float64    `json:"remaining_investment"`
	FeaturedImageID     *uuid.UUID `json:"featured_image_id"`
	Status              string     `json:"status"`
	AuthorID            *string    `json:"author_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type GalleryImage struct {
	PortfolioID  uuid.UUID `json:"portfolio_id"`
	MediaID      uuid.UUID `json:"media_id"`
	DisplayOrder int       `json:"display_order"`
}

// Investment is append-only: the row written at settlement time is what
// dividend eligibility is computed from later.
type Investment struct {
	ID              uuid.UUID `json:"id"`
	InvestorID      string    `json:"investor_id"`
	PortfolioID     uuid.UUID `json:"portfolio_id"`
	Shares          int       `json:"shares"`
	SharePrice      float64   `json:"share_price"`
	TotalInvestment float64   `json:"total_investment"`
	CreatedAt       time.Time `json:"created_at"`
}

type PortfolioRepository interface {
	Create(ctx context.Context, portfolio *Portfolio) error
	FindByID(ctx context.Context, portfolioID uuid.UUID, portfolio *Portfolio) error
	FindBySlug(ctx context.Context, slug string, portfolio *Portfolio) error
	FindAll(ctx context.Context) ([]Portfolio, error)
	Update(ctx context.Context, portfolio *Portfolio) (int64, error)
	Delete(ctx context.Context, portfolioID uuid.UUID) error
	SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error)
	GalleryImages(ctx context.Context, portfolioID uuid.UUID) ([]GalleryImage, error)
	InsertGalleryImages(ctx context.Context, images []GalleryImage) error
	DeleteGalleryImages(ctx context.Context, portfolioID uuid.UUID, mediaIDs []uuid.UUID) error
	ReorderGalleryImages(ctx context.Context, portfolioID uuid.UUID, orderedMediaIDs []uuid.UUID) error
	DeductRemainingShares(ctx context.Context, q database.Queryer, portfolioID uuid.UUID, shares int) (int64, error)
	InsertInvestment(ctx context.Context, q database.Queryer, investment *Investment) error
	InvestmentsBefore(ctx context.Context, portfolioID uuid.UUID, cutoff time.Time) ([]Investment, error)
	TotalRemainingShares(ctx context.Context) (int, error)
}

type portfolioRepository struct {
	db *sql.DB
}

func NewPortfolioRepository(db *sql.DB) PortfolioRepository {
	return &portfolioRepository{db: db}
}

func (r *portfolioRepository) Create(ctx context.Context, portfolio *Portfolio) error {
	query := `
		INSERT INTO portfolios (id, title, slug, description, address, shares, share_price,
		                        remaining_shares, remaining_investment, featured_image_id, status, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		portfolio.ID, portfolio.Title, portfolio.Slug, portfolio.Description, portfolio.Address,
		portfolio.Shares, portfolio.SharePrice, portfolio.RemainingShares, portfolio.RemainingInvestment,
		portfolio.FeaturedImageID, portfolio.Status, portfolio.AuthorID,
	).Scan(&portfolio.CreatedAt, &portfolio.UpdatedAt)
}

const portfolioColumns = `id, title, slug, description, address, shares, share_price,
	remaining_shares, remaining_investment, featured_image_id, status, author_id, created_at, updated_at`

func scanPortfolio(row *sql.Row, p *Portfolio) error {
	return row.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.Address, &p.Shares, &p.SharePrice,
		&p.RemainingShares, &p.RemainingInvestment, &p.FeaturedImageID, &p.Status, &p.AuthorID,
		&p.CreatedAt, &p.UpdatedAt)
}

func (r *portfolioRepository) FindByID(ctx context.Context, portfolioID uuid.UUID, portfolio *Portfolio) error {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`
	return scanPortfolio(r.db.QueryRowContext(ctx, query, portfolioID), portfolio)
}

func (r *portfolioRepository) FindBySlug(ctx context.Context, slug string, portfolio *Portfolio) error {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE slug = $1`
	return scanPortfolio(r.db.QueryRowContext(ctx, query, slug), portfolio)
}

func (r *portfolioRepository) FindAll(ctx context.Context) ([]Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		var p Portfolio
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.Address, &p.Shares, &p.SharePrice,
			&p.RemainingShares, &p.RemainingInvestment, &p.FeaturedImageID, &p.Status, &p.AuthorID,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

func (r *portfolioRepository) Update(ctx context.Context, portfolio *Portfolio) (int64, error) {
	query := `
		UPDATE portfolios
		SET title = $1, slug = $2, description = $3, address = $4, share_price = $5,
		    featured_image_id = $6, status = $7, updated_at = NOW()
		WHERE id = $8
	`
	result, err := r.db.ExecContext(ctx, query,
		portfolio.Title, portfolio.Slug, portfolio.Description, portfolio.Address, portfolio.SharePrice,
		portfolio.FeaturedImageID, portfolio.Status, portfolio.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *portfolioRepository) Delete(ctx context.Context, portfolioID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = $1`, portfolioID)
	return err
}

func (r *portfolioRepository) SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	query := `SELECT COUNT(1) FROM portfolios WHERE slug = $1 AND id != $2`
	var count int
	err := r.db.QueryRowContext(ctx, query, slug, excludeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *portfolioRepository) GalleryImages(ctx context.Context, portfolioID uuid.UUID) ([]GalleryImage, error) {
	query := `
		SELECT portfolio_id, media_id, display_order
		FROM portfolio_gallery_images
		WHERE portfolio_id = $1
		ORDER BY display_order
	`
	rows, err := r.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []GalleryImage
	for rows.Next() {
		var img GalleryImage
		if err := rows.Scan(&img.PortfolioID, &img.MediaID, &img.DisplayOrder); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *portfolioRepository) InsertGalleryImages(ctx context.Context, images []GalleryImage) error {
	query := `
		INSERT INTO portfolio_gallery_images (portfolio_id, media_id, display_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (portfolio_id, media_id) DO UPDATE SET display_order = EXCLUDED.display_order
	`
	for _, img := range images {
		if _, err := r.db.ExecContext(ctx, query, img.PortfolioID, img.MediaID, img.DisplayOrder); err != nil {
			return err
		}
	}
	return nil
}

func (r *portfolioRepository) DeleteGalleryImages(ctx context.Context, portfolioID uuid.UUID, mediaIDs []uuid.UUID) error {
	if len(mediaIDs) == 0 {
		return nil
	}
	query := `DELETE FROM portfolio_gallery_images WHERE portfolio_id = $1 AND media_id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, portfolioID, mediaIDs)
	return err
}

func (r *portfolioRepository) ReorderGalleryImages(ctx context.Context, portfolioID uuid.UUID, orderedMediaIDs []uuid.UUID) error {
	query := `
		UPDATE portfolio_gallery_images
		SET display_order = $3
		WHERE portfolio_id = $1 AND media_id = $2
	`
	for index, mediaID := range orderedMediaIDs {
		if _, err := r.db.ExecContext(ctx, query, portfolioID, mediaID, index); err != nil {
			return err
		}
	}
	return nil
}

// DeductRemainingShares is a compare-and-swap: the guard on remaining_shares
// means two interleaved checkouts cannot oversell the portfolio. Zero rows
// affected tells the caller the inventory was insufficient (or the portfolio
// is gone). remaining_investment is recomputed from the post-decrement share
// count so the price identity holds after every mutation.
func (r *portfolioRepository) DeductRemainingShares(ctx context.Context, q database.Queryer, portfolioID uuid.UUID, shares int) (int64, error) {
	query := `
		UPDATE portfolios
		SET remaining_shares = remaining_shares - $2,
		    remaining_investment = (remaining_shares - $2) * share_price,
		    updated_at = NOW()
		WHERE id = $1 AND remaining_shares >= $2
	`
	result, err := q.ExecContext(ctx, query, portfolioID, shares)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *portfolioRepository) InsertInvestment(ctx context.Context, q database.Queryer, investment *Investment) error {
	if investment.ID == uuid.Nil {
		investment.ID = uuid.New()
	}
	query := `
		INSERT INTO investments (id, investor_id, portfolio_id, shares, share_price, total_investment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return q.QueryRowContext(ctx, query,
		investment.ID, investment.InvestorID, investment.PortfolioID,
		investment.Shares, investment.SharePrice, investment.TotalInvestment,
	).Scan(&investment.CreatedAt)
}

func (r *portfolioRepository) InvestmentsBefore(ctx context.Context, portfolioID uuid.UUID, cutoff time.Time) ([]Investment, error) {
	query := `
		SELECT id, investor_id, portfolio_id, shares, share_price, total_investment, created_at
		FROM investments
		WHERE portfolio_id = $1 AND created_at <= $2
	`
	rows, err := r.db.QueryContext(ctx, query, portfolioID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []Investment
	for rows.Next() {
		var inv Investment
		if err := rows.Scan(&inv.ID, &inv.InvestorID, &inv.PortfolioID, &inv.Shares, &inv.SharePrice, &inv.TotalInvestment, &inv.CreatedAt); err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

func (r *portfolioRepository) TotalRemainingShares(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(remaining_shares), 0) FROM portfolios`).Scan(&total)
	return total, err
}
