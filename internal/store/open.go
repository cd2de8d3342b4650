// Package store picks the game.Store backend named by the configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"devshop/internal/config"
	"devshop/internal/db"
	"devshop/internal/game"
	"devshop/internal/store/memstore"
	"devshop/internal/store/pgstore"
	"devshop/internal/store/sqlitestore"
)

// Backend is an opened store. Postgres backends also carry the pool used to
// pass events between processes.
type Backend struct {
	game.Store
	pool  *pgxpool.Pool
	log   *slog.Logger
	close func()
}

func (b *Backend) Close() {
	b.close()
}

// CrossProcess reports whether events published through Notifier reach
// other processes sharing this store.
func (b *Backend) CrossProcess() bool {
	return b.pool != nil
}

// Notifier returns where services on this backend should publish. Postgres
// routes events through NOTIFY so every API process relays them; other
// backends publish straight to local.
func (b *Backend) Notifier(local game.Notifier) game.Notifier {
	if b.pool == nil {
		return local
	}
	return pgstore.NewNotifier(b.pool, b.log)
}

// Relay forwards events from every process to local until ctx ends. It
// returns at once on backends without a cross-process channel.
func (b *Backend) Relay(ctx context.Context, local game.Notifier) error {
	if b.pool == nil {
		return nil
	}
	return pgstore.Listen(ctx, b.pool, b.log, local)
}

// Open connects the configured backend, applying its schema when cfg.Migrate
// is set.
func Open(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.PoolOptions())
		if err != nil {
			return nil, err
		}
		s := pgstore.New(pool, logger)
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Backend{Store: s, pool: pool, log: logger, close: pool.Close}, nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, log: logger, close: func() {
			if err := s.Close(); err != nil {
				logger.Error("close sqlite failed", "err", err)
			}
		}}, nil
	case config.StoreMemory:
		return &Backend{Store: memstore.New(), log: logger, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
