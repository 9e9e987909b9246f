package portfolios

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	database "github.com/homevest/backend/internal/db"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("homevest_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.EnsureSchema(ctx, db))
	return db
}

func TestDeductRemainingShares_NeverOversells(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := startPostgres(t)
	repo := NewPortfolioRepository(db)
	ctx := context.Background()

	portfolio := &Portfolio{
		ID:                  uuid.New(),
		Title:               "Contended House",
		Slug:                "contended-house",
		Shares:              20,
		SharePrice:          100,
		RemainingShares:     5,
		RemainingInvestment: 500,
		Status:              StatusPublished,
	}
	require.NoError(t, repo.Create(ctx, portfolio))

	// Ten buyers race for five shares. Exactly five deductions may win.
	const buyers = 10
	results := make(chan int64, buyers)
	for i := 0; i < buyers; i++ {
		go func() {
			rows, err := repo.DeductRemainingShares(ctx, db, portfolio.ID, 1)
			if err != nil {
				rows = -1
			}
			results <- rows
		}()
	}

	won := 0
	for i := 0; i < buyers; i++ {
		rows := <-results
		require.NotEqual(t, int64(-1), rows)
		if rows == 1 {
			won++
		}
	}
	assert.Equal(t, 5, won)

	var remainingShares int
	var remainingInvestment float64
	require.NoError(t, db.QueryRow(
		`SELECT remaining_shares, remaining_investment FROM portfolios WHERE id = $1`, portfolio.ID,
	).Scan(&remainingShares, &remainingInvestment))
	assert.Equal(t, 0, remainingShares)
	assert.Equal(t, 0.0, remainingInvestment)
}

func TestDeductRemainingShares_KeepsPriceIdentity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := startPostgres(t)
	repo := NewPortfolioRepository(db)
	ctx := context.Background()

	portfolio := &Portfolio{
		ID:                  uuid.New(),
		Title:               "Identity House",
		Slug:                "identity-house",
		Shares:              100,
		SharePrice:          250,
		RemainingShares:     100,
		RemainingInvestment: 25000,
		Status:              StatusPublished,
	}
	require.NoError(t, repo.Create(ctx, portfolio))

	rows, err := repo.DeductRemainingShares(ctx, db, portfolio.ID, 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	var fetched Portfolio
	require.NoError(t, repo.FindByID(ctx, portfolio.ID, &fetched))
	assert.Equal(t, 70, fetched.RemainingShares)
	assert.Equal(t, 17500.0, fetched.RemainingInvestment)
}
