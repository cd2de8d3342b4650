package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/config"
	"devshop/internal/game"
	"devshop/internal/store/memstore"
	"devshop/internal/store/pgstore"
	"devshop/internal/store/sqlitestore"
)

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, game.Event) {}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	local := nopNotifier{}

	b, err := Open(ctx, config.APIConfig{Store: config.StoreMemory}, logger)
	require.NoError(t, err)
	require.IsType(t, &memstore.Store{}, b.Store)
	assert.False(t, b.CrossProcess())
	assert.Equal(t, local, b.Notifier(local))
	require.NoError(t, b.Relay(ctx, local))
	b.Close()

	path := filepath.Join(t.TempDir(), "open.db")
	b, err = Open(ctx, config.APIConfig{Store: config.StoreSQLite, SQLitePath: path}, logger)
	require.NoError(t, err)
	require.IsType(t, &sqlitestore.Store{}, b.Store)
	assert.False(t, b.CrossProcess())
	b.Close()

	_, err = Open(ctx, config.APIConfig{Store: "redis"}, logger)
	require.Error(t, err)
}

func TestOpenPostgresPublishesThroughDatabase(t *testing.T) {
	url := os.Getenv("DEVSHOP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DEVSHOP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := config.APIConfig{Store: config.StorePostgres, DatabaseURL: url, Migrate: true, DBMaxConns: 4}
	b, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	require.IsType(t, &pgstore.Store{}, b.Store)
	assert.True(t, b.CrossProcess())
	assert.IsType(t, &pgstore.Notifier{}, b.Notifier(nopNotifier{}))
	assert.Equal(t, int32(4), b.pool.Config().MaxConns)
}
