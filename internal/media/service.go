package media

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidMediaData = errors.New("invalid media data")

type RegisterMediaRequest struct {
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	SecureURL string `json:"secureUrl"`
	StorageID string `json:"storageId"`
	Size      int64  `json:"size"`
	Format    string `json:"format"`
}

type Service interface {
	RegisterMedia(ctx context.Context, req RegisterMediaRequest) (*Media, error)
	GetMedia(ctx context.Context, id uuid.UUID) (*Media, error)
	ResolveMedia(ctx context.Context, ids []uuid.UUID) ([]Media, error)
	RemoveMedia(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewMediaService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) RegisterMedia(ctx context.Context, req RegisterMediaRequest) (*Media, error) {
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.StorageID) == "" {
		return nil, ErrInvalidMediaData
	}
	m := &Media{
		FileName:  req.FileName,
		URL:       req.URL,
		SecureURL: req.SecureURL,
		StorageID: req.StorageID,
		Size:      req.Size,
		Format:    req.Format,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) GetMedia(ctx context.Context, id uuid.UUID) (*Media, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) ResolveMedia(ctx context.Context, ids []uuid.UUID) ([]Media, error) {
	return s.repo.FindByIDs(ctx, ids)
}

func (s *service) RemoveMedia(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
