package media

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrMediaNotFound = errors.New("media not found")

// Media is the record an object-storage upload leaves behind. The upload
// pipeline itself lives outside this service; portfolios only reference
// these rows for featured and gallery images.
type Media struct {
	ID        uuid.UUID `json:"id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	SecureURL string    `json:"secure_url"`
	StorageID string    `json:"storage_id"`
	Size      int64     `json:"size"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, m *Media) error
	FindByID(ctx context.Context, id uuid.UUID) (*Media, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Media, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type mediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) Repository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, m *Media) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO media (id, file_name, url, secure_url, storage_id, size, format)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query, m.ID, m.FileName, m.URL, m.SecureURL, m.StorageID, m.Size, m.Format).Scan(&m.CreatedAt)
}

func (r *mediaRepository) FindByID(ctx context.Context, id uuid.UUID) (*Media, error) {
	query := `
		SELECT id, file_name, url, secure_url, storage_id, size, format, created_at
		FROM media WHERE id = $1
	`
	var m Media
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.FileName, &m.URL, &m.SecureURL, &m.StorageID, &m.Size, &m.Format, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *mediaRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, file_name, url, secure_url, storage_id, size, format, created_at
		FROM media WHERE id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.FileName, &m.URL, &m.SecureURL, &m.StorageID, &m.Size, &m.Format, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *mediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	return err
}
