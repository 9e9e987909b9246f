package portfolios

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	database "github.com/homevest/backend/internal/db"
)

var (
	ErrPortfolioNotFound     = errors.New("portfolio not found")
	ErrInvalidPortfolioData  = errors.New("invalid portfolio data")
	ErrInsufficientShares    = errors.New("insufficient remaining shares")
	ErrPortfolioHasInvestors = errors.New("portfolio already has investments")
)

const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
	StatusSoldOut   = "SOLD_OUT"
)

// vestingPeriod is how long an investment must be held before it
// participates in a dividend distribution.
const vestingPeriod = 30 * 24 * time.Hour

type CreatePortfolioRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Address         string      `json:"address"`
	Shares          int         `json:"shares"`
	SharePrice      float64     `json:"sharePrice"`
	FeaturedImageID *uuid.UUID  `json:"featuredImageId"`
	GalleryImageIDs []uuid.UUID `json:"galleryImageIds"`
	Status          string      `json:"status"`
}

type UpdatePortfolioRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Address         string      `json:"address"`
	SharePrice      float64     `json:"sharePrice"`
	FeaturedImageID *uuid.UUID  `json:"featuredImageId"`
	GalleryImageIDs []uuid.UUID `json:"galleryImageIds"`
	Status          string      `json:"status"`
}

type Service interface {
	CreatePortfolio(ctx context.Context, authorID string, req CreatePortfolioRequest) (*Portfolio, error)
	UpdatePortfolio(ctx context.Context, portfolioID uuid.UUID, req UpdatePortfolioRequest) (*Portfolio, error)
	GetPortfolioByID(ctx context.Context, portfolioID uuid.UUID) (*Portfolio, error)
	GetPortfolioBySlug(ctx context.Context, slug string) (*Portfolio, error)
	ListPortfolios(ctx context.Context) ([]Portfolio, error)
	DeletePortfolio(ctx context.Context, portfolioID uuid.UUID) error
	GalleryImages(ctx context.Context, portfolioID uuid.UUID) ([]GalleryImage, error)
	DeductInventory(ctx context.Context, q database.Queryer, portfolioID uuid.UUID, shares int) error
	RecordInvestment(ctx context.Context, q database.Queryer, investment *Investment) error
	EligibleInvestments(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]Investment, error)
}

type service struct {
	repo PortfolioRepository
}

func NewPortfolioService(repo PortfolioRepository) Service {
	return &service{repo: repo}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases the title and collapses every run of non-alphanumeric
// characters into a single hyphen.
func slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

var trailingNumber = regexp.MustCompile(`-(\d+)$`)

// uniqueSlug appends an incrementing numeric suffix until the slug is free.
// A base that already ends in "-N" continues counting from N+1 rather than
// stacking a second suffix.
func (s *service) uniqueSlug(ctx context.Context, base string, excludeID uuid.UUID) (string, error) {
	slug := base
	next := 1
	if match := trailingNumber.FindStringSubmatch(base); match != nil {
		n, _ := strconv.Atoi(match[1])
		next = n + 1
		base = strings.TrimSuffix(base, match[0])
	}
	for {
		exists, err := s.repo.SlugExists(ctx, slug, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(next)
		next++
	}
}

func (s *service) CreatePortfolio(ctx context.Context, authorID string, req CreatePortfolioRequest) (*Portfolio, error) {
	if req.Title == "" || req.Shares <= 0 || req.SharePrice <= 0 {
		return nil, ErrInvalidPortfolioData
	}
	status := req.Status
	if status == "" {
		status = StatusDraft
	}

	id := uuid.New()
	slug, err := s.uniqueSlug(ctx, slugify(req.Title), id)
	if err != nil {
		return nil, err
	}

	portfolio := &Portfolio{
		ID:                  id,
		Title:               req.Title,
		Slug:                slug,
		Description:         req.Description,
		Address:             req.Address,
		Shares:              req.Shares,
		SharePrice:          req.SharePrice,
		RemainingShares:     req.Shares,
		RemainingInvestment: float64(req.Shares) * req.SharePrice,
		FeaturedImageID:     req.FeaturedImageID,
		Status:              status,
		AuthorID:            &authorID,
	}
	if err := s.repo.Create(ctx, portfolio); err != nil {
		return nil, err
	}

	if len(req.GalleryImageIDs) > 0 {
		images := make([]GalleryImage, 0, len(req.GalleryImageIDs))
		for order, mediaID := range req.GalleryImageIDs {
			images = append(images, GalleryImage{PortfolioID: id, MediaID: mediaID, DisplayOrder: order})
		}
		if err := s.repo.InsertGalleryImages(ctx, images); err != nil {
			return nil, err
		}
	}
	return portfolio, nil
}

func (s *service) UpdatePortfolio(ctx context.Context, portfolioID uuid.UUID, req UpdatePortfolioRequest) (*Portfolio, error) {
	var existing Portfolio
	if err := s.repo.FindByID(ctx, portfolioID, &existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	if req.Title == "" || req.SharePrice <= 0 {
		return nil, ErrInvalidPortfolioData
	}

	slug := existing.Slug
	if req.Title != existing.Title {
		var err error
		slug, err = s.uniqueSlug(ctx, slugify(req.Title), portfolioID)
		if err != nil {
			return nil, err
		}
	}

	existing.Title = req.Title
	existing.Slug = slug
	existing.Description = req.Description
	existing.Address = req.Address
	existing.SharePrice = req.SharePrice
	existing.FeaturedImageID = req.FeaturedImageID
	if req.Status != "" {
		existing.Status = req.Status
	}
	rows, err := s.repo.Update(ctx, &existing)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrPortfolioNotFound
	}

	if err := s.syncGallery(ctx, portfolioID, req.GalleryImageIDs); err != nil {
		return nil, err
	}
	return &existing, nil
}

// syncGallery diffs the stored gallery against the requested one: removed
// images are deleted, new ones inserted, and display_order follows the
// request ordering for the whole set.
func (s *service) syncGallery(ctx context.Context, portfolioID uuid.UUID, wanted []uuid.UUID) error {
	current, err := s.repo.GalleryImages(ctx, portfolioID)
	if err != nil {
		return err
	}
	wantedSet := make(map[uuid.UUID]bool, len(wanted))
	for _, id := range wanted {
		wantedSet[id] = true
	}

	var removed []uuid.UUID
	currentSet := make(map[uuid.UUID]bool, len(current))
	for _, img := range current {
		currentSet[img.MediaID] = true
		if !wantedSet[img.MediaID] {
			removed = append(removed, img.MediaID)
		}
	}
	if err := s.repo.DeleteGalleryImages(ctx, portfolioID, removed); err != nil {
		return err
	}

	var added []GalleryImage
	for order, mediaID := range wanted {
		if !currentSet[mediaID] {
			added = append(added, GalleryImage{PortfolioID: portfolioID, MediaID: mediaID, DisplayOrder: order})
		}
	}
	if err := s.repo.InsertGalleryImages(ctx, added); err != nil {
		return err
	}
	return s.repo.ReorderGalleryImages(ctx, portfolioID, wanted)
}

func (s *service) GetPortfolioByID(ctx context.Context, portfolioID uuid.UUID) (*Portfolio, error) {
	var portfolio Portfolio
	if err := s.repo.FindByID(ctx, portfolioID, &portfolio); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	return &portfolio, nil
}

func (s *service) GetPortfolioBySlug(ctx context.Context, slug string) (*Portfolio, error) {
	var portfolio Portfolio
	if err := s.repo.FindBySlug(ctx, slug, &portfolio); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	return &portfolio, nil
}

func (s *service) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	return s.repo.FindAll(ctx)
}

func (s *service) DeletePortfolio(ctx context.Context, portfolioID uuid.UUID) error {
	var portfolio Portfolio
	if err := s.repo.FindByID(ctx, portfolioID, &portfolio); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPortfolioNotFound
		}
		return err
	}
	if portfolio.RemainingShares != portfolio.Shares {
		return ErrPortfolioHasInvestors
	}
	return s.repo.Delete(ctx, portfolioID)
}

func (s *service) GalleryImages(ctx context.Context, portfolioID uuid.UUID) ([]GalleryImage, error) {
	return s.repo.GalleryImages(ctx, portfolioID)
}

func (s *service) DeductInventory(ctx context.Context, q database.Queryer, portfolioID uuid.UUID, shares int) error {
	if shares <= 0 {
		return ErrInvalidPortfolioData
	}
	rows, err := s.repo.DeductRemainingShares(ctx, q, portfolioID, shares)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientShares
	}
	return nil
}

func (s *service) RecordInvestment(ctx context.Context, q database.Queryer, investment *Investment) error {
	return s.repo.InsertInvestment(ctx, q, investment)
}

func (s *service) EligibleInvestments(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]Investment, error) {
	return s.repo.InvestmentsBefore(ctx, portfolioID, asOf.Add(-vestingPeriod))
}
