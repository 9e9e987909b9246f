package portfolios

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/homevest/backend/internal/db"
)

type mockPortfolioRepository struct {
	portfolios  map[uuid.UUID]*Portfolio
	gallery     map[uuid.UUID][]GalleryImage
	investments []Investment
	deductRows  int64
	deductErr   error
}

func newMockPortfolioRepository() *mockPortfolioRepository {
	return &mockPortfolioRepository{
		portfolios: make(map[uuid.UUID]*Portfolio),
		gallery:    make(map[uuid.UUID][]GalleryImage),
		deductRows: 1,
	}
}

func (m *mockPortfolioRepository) Create(_ context.Context, portfolio *Portfolio) error {
	portfolio.CreatedAt = time.Now()
	portfolio.UpdatedAt = portfolio.CreatedAt
	copied := *portfolio
	m.portfolios[portfolio.ID] = &copied
	return nil
}

func (m *mockPortfolioRepository) FindByID(_ context.Context, portfolioID uuid.UUID, portfolio *Portfolio) error {
	stored, ok := m.portfolios[portfolioID]
	if !ok {
		return sql.ErrNoRows
	}
	*portfolio = *stored
	return nil
}

func (m *mockPortfolioRepository) FindBySlug(_ context.Context, slug string, portfolio *Portfolio) error {
	for _, stored := range m.portfolios {
		if stored.Slug == slug {
			*portfolio = *stored
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockPortfolioRepository) FindAll(_ context.Context) ([]Portfolio, error) {
	var all []Portfolio
	for _, stored := range m.portfolios {
		all = append(all, *stored)
	}
	return all, nil
}

func (m *mockPortfolioRepository) Update(_ context.Context, portfolio *Portfolio) (int64, error) {
	if _, ok := m.portfolios[portfolio.ID]; !ok {
		return 0, nil
	}
	copied := *portfolio
	m.portfolios[portfolio.ID] = &copied
	return 1, nil
}

func (m *mockPortfolioRepository) Delete(_ context.Context, portfolioID uuid.UUID) error {
	delete(m.portfolios, portfolioID)
	return nil
}

func (m *mockPortfolioRepository) SlugExists(_ context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	for id, stored := range m.portfolios {
		if stored.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPortfolioRepository) GalleryImages(_ context.Context, portfolioID uuid.UUID) ([]GalleryImage, error) {
	return m.gallery[portfolioID], nil
}

func (m *mockPortfolioRepository) InsertGalleryImages(_ context.Context, images []GalleryImage) error {
	for _, img := range images {
		m.gallery[img.PortfolioID] = append(m.gallery[img.PortfolioID], img)
	}
	return nil
}

func (m *mockPortfolioRepository) DeleteGalleryImages(_ context.Context, portfolioID uuid.UUID, mediaIDs []uuid.UUID) error {
	removed := make(map[uuid.UUID]bool, len(mediaIDs))
	for _, id := range mediaIDs {
		removed[id] = true
	}
	var kept []GalleryImage
	for _, img := range m.gallery[portfolioID] {
		if !removed[img.MediaID] {
			kept = append(kept, img)
		}
	}
	m.gallery[portfolioID] = kept
	return nil
}

func (m *mockPortfolioRepository) ReorderGalleryImages(_ context.Context, portfolioID uuid.UUID, orderedMediaIDs []uuid.UUID) error {
	order := make(map[uuid.UUID]int, len(orderedMediaIDs))
	for index, id := range orderedMediaIDs {
		order[id] = index
	}
	for i, img := range m.gallery[portfolioID] {
		if pos, ok := order[img.MediaID]; ok {
			m.gallery[portfolioID][i].DisplayOrder = pos
		}
	}
	return nil
}

func (m *mockPortfolioRepository) DeductRemainingShares(_ context.Context, _ database.Queryer, _ uuid.UUID, _ int) (int64, error) {
	return m.deductRows, m.deductErr
}

func (m *mockPortfolioRepository) InsertInvestment(_ context.Context, _ database.Queryer, investment *Investment) error {
	investment.CreatedAt = time.Now()
	m.investments = append(m.investments, *investment)
	return nil
}

func (m *mockPortfolioRepository) InvestmentsBefore(_ context.Context, portfolioID uuid.UUID, cutoff time.Time) ([]Investment, error) {
	var eligible []Investment
	for _, inv := range m.investments {
		if inv.PortfolioID == portfolioID && !inv.CreatedAt.After(cutoff) {
			eligible = append(eligible, inv)
		}
	}
	return eligible, nil
}

func (m *mockPortfolioRepository) TotalRemainingShares(_ context.Context) (int, error) {
	total := 0
	for _, stored := range m.portfolios {
		total += stored.RemainingShares
	}
	return total, nil
}

func TestCreatePortfolio_Slugify(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	portfolio, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title:      "Downtown  Lofts, Phase #2",
		Shares:     100,
		SharePrice: 250,
	})
	require.NoError(t, err)
	assert.Equal(t, "downtown-lofts-phase-2", portfolio.Slug)
	assert.Equal(t, 100, portfolio.RemainingShares)
	assert.Equal(t, float64(25000), portfolio.RemainingInvestment)
	assert.Equal(t, StatusDraft, portfolio.Status)
}

func TestCreatePortfolio_SlugCollisionGetsNumericSuffix(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	first, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Downtown", Shares: 10, SharePrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "downtown", first.Slug)

	second, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Downtown", Shares: 10, SharePrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "downtown-1", second.Slug)

	third, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Downtown", Shares: 10, SharePrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "downtown-2", third.Slug)
}

func TestCreatePortfolio_TitleEndingInNumberContinuesCounting(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	first, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Tower 7", Shares: 10, SharePrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "tower-7", first.Slug)

	second, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Tower 7", Shares: 10, SharePrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "tower-8", second.Slug)
}

func TestCreatePortfolio_RejectsInvalidData(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	_, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "", Shares: 10, SharePrice: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidPortfolioData)

	_, err = service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "No Shares", Shares: 0, SharePrice: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidPortfolioData)
}

func TestUpdatePortfolio_KeepsSlugWhenTitleUnchanged(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	created, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Harbor View", Shares: 50, SharePrice: 200,
	})
	require.NoError(t, err)

	updated, err := service.UpdatePortfolio(context.Background(), created.ID, UpdatePortfolioRequest{
		Title: "Harbor View", SharePrice: 210, Description: "Updated description",
	})
	require.NoError(t, err)
	assert.Equal(t, "harbor-view", updated.Slug)
	assert.Equal(t, float64(210), updated.SharePrice)
}

func TestUpdatePortfolio_NewTitleAvoidsOwnSlug(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	created, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Harbor View", Shares: 50, SharePrice: 200,
	})
	require.NoError(t, err)

	_, err = service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Sunset Ridge", Shares: 50, SharePrice: 200,
	})
	require.NoError(t, err)

	updated, err := service.UpdatePortfolio(context.Background(), created.ID, UpdatePortfolioRequest{
		Title: "Sunset Ridge", SharePrice: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, "sunset-ridge-1", updated.Slug)
}

func TestUpdatePortfolio_SyncsGallery(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	keep := uuid.New()
	removed := uuid.New()
	added := uuid.New()

	created, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Gallery House", Shares: 50, SharePrice: 200,
		GalleryImageIDs: []uuid.UUID{keep, removed},
	})
	require.NoError(t, err)

	_, err = service.UpdatePortfolio(context.Background(), created.ID, UpdatePortfolioRequest{
		Title: "Gallery House", SharePrice: 200,
		GalleryImageIDs: []uuid.UUID{added, keep},
	})
	require.NoError(t, err)

	images, err := service.GalleryImages(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	byMedia := make(map[uuid.UUID]int, len(images))
	for _, img := range images {
		byMedia[img.MediaID] = img.DisplayOrder
	}
	assert.Equal(t, 0, byMedia[added])
	assert.Equal(t, 1, byMedia[keep])
	assert.NotContains(t, byMedia, removed)
}

func TestDeletePortfolio_RejectedOnceSharesSold(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	created, err := service.CreatePortfolio(context.Background(), "admin-1", CreatePortfolioRequest{
		Title: "Sold House", Shares: 50, SharePrice: 200,
	})
	require.NoError(t, err)

	repo.portfolios[created.ID].RemainingShares = 40

	err = service.DeletePortfolio(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrPortfolioHasInvestors)
}

func TestDeductInventory_InsufficientShares(t *testing.T) {
	repo := newMockPortfolioRepository()
	repo.deductRows = 0
	service := NewPortfolioService(repo)

	err := service.DeductInventory(context.Background(), nil, uuid.New(), 5)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestDeductInventory_RejectsNonPositiveShares(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	err := service.DeductInventory(context.Background(), nil, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInvalidPortfolioData)
}

func TestEligibleInvestments_AppliesVestingCutoff(t *testing.T) {
	repo := newMockPortfolioRepository()
	service := NewPortfolioService(repo)

	portfolioID := uuid.New()
	repo.investments = []Investment{
		{InvestorID: "old", PortfolioID: portfolioID, Shares: 3, CreatedAt: time.Now().Add(-40 * 24 * time.Hour)},
		{InvestorID: "fresh", PortfolioID: portfolioID, Shares: 2, CreatedAt: time.Now().Add(-10 * 24 * time.Hour)},
	}

	eligible, err := service.EligibleInvestments(context.Background(), portfolioID, time.Now())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "old", eligible[0].InvestorID)
}
