package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/db"
	"devshop/internal/game"
	"devshop/internal/store/storetest"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(game.ErrInsufficientFunds))
	assert.False(t, isRetryable(nil))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), game.ErrNotFound)
	boom := errors.New("boom")
	assert.Equal(t, boom, notFound(boom))
	assert.NoError(t, notFound(nil))
}

// openTestStore needs a disposable Postgres in DEVSHOP_TEST_DATABASE_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DEVSHOP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DEVSHOP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url, db.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	s := New(pool, nil)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestProgressRoundTripPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var p game.Project
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g := game.Game{Name: "roundtrip", Money: 100}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		p = game.Project{GameID: g.ID, Name: "p", Complexity: 2, Value: 1000, Assigned: true}
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		p.Progress = 0.123456
		return tx.SaveProject(ctx, p)
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.InTx(context.Background(), func(ctx context.Context, tx game.Tx) error {
			return tx.DeleteGame(ctx, p.GameID)
		})
	})

	got, err := s.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.123456, got.Progress)

	_, err = s.Project(ctx, -1)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestRollbackPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var gameID int64
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g := game.Game{Name: "rollback", Money: 100}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		gameID = g.ID
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.Game(ctx, gameID)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestConcurrentScenariosOnPostgres(t *testing.T) {
	t.Run("debits", func(t *testing.T) { storetest.ConcurrentDebits(t, openTestStore(t)) })
	t.Run("ticks complete once", func(t *testing.T) { storetest.ConcurrentTicksCompleteOnce(t, openTestStore(t)) })
	t.Run("hires", func(t *testing.T) { storetest.ConcurrentHires(t, openTestStore(t)) })
	t.Run("unknown game", func(t *testing.T) { storetest.PurchasesOnUnknownGame(t, openTestStore(t)) })
}
