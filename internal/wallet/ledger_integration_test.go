package wallet

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

func createTestUser(t *testing.T, db *sql.DB, login string) string {
	t.Helper()
	var userID string
	err := db.QueryRow(`
		INSERT INTO users (email, login, name, password_hash, is_verified)
		VALUES ($1, $2, $3, 'x', TRUE)
		RETURNING id
	`, login+"@example.com", login, "Test "+login).Scan(&userID)
	require.NoError(t, err)
	return userID
}

func TestWalletLedger_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := startPostgres(t)
	service := NewWalletService(db, NewWalletRepository(db))
	ctx := context.Background()
	userID := createTestUser(t, db, "ledger")

	seed, err := service.Open(ctx, userID, 0)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Nil(t, seed.BalanceType)

	// Opening twice is a no-op.
	again, err := service.Open(ctx, userID, 0)
	require.NoError(t, err)
	assert.Nil(t, again)

	credit, err := service.Credit(ctx, userID, 150.50)
	require.NoError(t, err)
	assert.Equal(t, 150.50, credit.RemainingAmount)

	debit, err := service.Debit(ctx, userID, 50.50)
	require.NoError(t, err)
	assert.Equal(t, 100.0, debit.RemainingAmount)

	_, err = service.Debit(ctx, userID, 200)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	summary, err := service.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.Balance)
	assert.Equal(t, 150.50, summary.CashIn)
	assert.Equal(t, 50.50, summary.CashOut)

	history, err := service.History(ctx, userID)
	require.NoError(t, err)
	// Seed row plus two movements.
	assert.Len(t, history, 3)

	recent, err := service.HistoryMonths(ctx, userID, 3)
	require.NoError(t, err)
	// The seed row has no balance type and is excluded.
	assert.Len(t, recent, 2)

	_, err = service.HistoryMonths(ctx, userID, 4)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestWalletLedger_ConcurrentCredits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := startPostgres(t)
	service := NewWalletService(db, NewWalletRepository(db))
	ctx := context.Background()
	userID := createTestUser(t, db, "concurrent")

	_, err := service.Open(ctx, userID, 0)
	require.NoError(t, err)

	const writers = 10
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := service.Credit(ctx, userID, 10)
			done <- err
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	summary, err := service.Balance(ctx, userID)
	require.NoError(t, err)
	// The advisory lock serializes writers, so no credit is lost.
	assert.Equal(t, float64(writers*10), summary.Balance)
}

func TestWalletService_RejectsNonPositiveAmounts(t *testing.T) {
	service := NewWalletService(nil, nil)

	_, err := service.Credit(context.Background(), "user-1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = service.Debit(context.Background(), "user-1", -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
