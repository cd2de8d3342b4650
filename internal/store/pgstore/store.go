// Package pgstore keeps games in Postgres. Row locks are SELECT ... FOR UPDATE
// inside READ COMMITTED transactions; serialization failures and deadlocks are
// retried with backoff.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"devshop/internal/game"
)

//go:embed schema.sql
var schemaSQL string

const maxAttempts = 8

type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

// Migrate creates the devshop schema if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(ctx, &pgTx{tx: tx}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		s.log.Warn("transaction conflict, retrying", "attempt", attempt+1, "err", err)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return game.ErrNotFound
	}
	return err
}

const (
	gameColumns        = `id, name, session_id, money_cents, created_at, updated_at`
	projectColumns     = `id, game_id, name, complexity, value_cents, assigned, progress_micros, completed`
	developerColumns   = `id, game_id, name, seniority, busy, project_id`
	salespersonColumns = `id, game_id, name, experience, busy, progress_micros`
)

func scanGame(row pgx.Row) (game.Game, error) {
	var g game.Game
	var money int64
	err := row.Scan(&g.ID, &g.Name, &g.SessionID, &money, &g.CreatedAt, &g.UpdatedAt)
	g.Money = game.Money(money)
	return g, notFound(err)
}

func scanProject(row pgx.Row) (game.Project, error) {
	var p game.Project
	var value, progress int64
	err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.Complexity, &value, &p.Assigned, &progress, &p.Completed)
	p.Value = game.Money(value)
	p.Progress = game.UnitsToProgress(progress)
	return p, notFound(err)
}

func scanDeveloper(row pgx.Row) (game.Developer, error) {
	var d game.Developer
	err := row.Scan(&d.ID, &d.GameID, &d.Name, &d.Seniority, &d.Busy, &d.ProjectID)
	return d, notFound(err)
}

func scanSalesperson(row pgx.Row) (game.Salesperson, error) {
	var sp game.Salesperson
	var progress int64
	err := row.Scan(&sp.ID, &sp.GameID, &sp.Name, &sp.Experience, &sp.Busy, &progress)
	sp.Progress = game.UnitsToProgress(progress)
	return sp, notFound(err)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Game(ctx context.Context, id int64) (game.Game, error) {
	return scanGame(s.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM devshop.games WHERE id = $1`, id))
}

func (s *Store) ListGames(ctx context.Context, sessionID string) ([]game.Game, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+gameColumns+`
		FROM devshop.games
		WHERE $1 = '' OR session_id = $1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanGame)
}

func (s *Store) ActiveGameIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT game_id FROM devshop.projects WHERE assigned AND NOT completed
		UNION
		SELECT game_id FROM devshop.salespeople WHERE busy
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *Store) Developer(ctx context.Context, id int64) (game.Developer, error) {
	return scanDeveloper(s.db.QueryRow(ctx, `SELECT `+developerColumns+` FROM devshop.developers WHERE id = $1`, id))
}

func (s *Store) Developers(ctx context.Context, gameID int64) ([]game.Developer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+developerColumns+` FROM devshop.developers WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDeveloper)
}

func (s *Store) DeveloperForProject(ctx context.Context, projectID int64) (game.Developer, bool, error) {
	d, err := scanDeveloper(s.db.QueryRow(ctx, `SELECT `+developerColumns+` FROM devshop.developers WHERE project_id = $1`, projectID))
	if errors.Is(err, game.ErrNotFound) {
		return game.Developer{}, false, nil
	}
	return d, err == nil, err
}

func (s *Store) Salesperson(ctx context.Context, id int64) (game.Salesperson, error) {
	return scanSalesperson(s.db.QueryRow(ctx, `SELECT `+salespersonColumns+` FROM devshop.salespeople WHERE id = $1`, id))
}

func (s *Store) Salespeople(ctx context.Context, gameID int64) ([]game.Salesperson, error) {
	rows, err := s.db.Query(ctx, `SELECT `+salespersonColumns+` FROM devshop.salespeople WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSalesperson)
}

func (s *Store) BusySalespeople(ctx context.Context, gameID int64) ([]game.Salesperson, error) {
	rows, err := s.db.Query(ctx, `SELECT `+salespersonColumns+` FROM devshop.salespeople WHERE game_id = $1 AND busy ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSalesperson)
}

func (s *Store) Project(ctx context.Context, id int64) (game.Project, error) {
	return scanProject(s.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM devshop.projects WHERE id = $1`, id))
}

func (s *Store) Projects(ctx context.Context, gameID int64) ([]game.Project, error) {
	rows, err := s.db.Query(ctx, `SELECT `+projectColumns+` FROM devshop.projects WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProject)
}

func (s *Store) ActiveProjects(ctx context.Context, gameID int64) ([]game.Project, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+projectColumns+`
		FROM devshop.projects
		WHERE game_id = $1 AND assigned AND NOT completed
		ORDER BY id
	`, gameID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProject)
}
