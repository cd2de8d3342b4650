// Package sqlitestore keeps games in a single SQLite file. One connection and
// IMMEDIATE transactions serialize writers, so Lock* reads need no row locks.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"devshop/internal/db"
	"devshop/internal/game"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(ctx, &sqliteTx{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
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

func scanGame(row rowScanner) (game.Game, error) {
	var g game.Game
	var money, created, updated int64
	if err := row.Scan(&g.ID, &g.Name, &g.SessionID, &money, &created, &updated); err != nil {
		return game.Game{}, notFound(err)
	}
	g.Money = game.Money(money)
	g.CreatedAt = time.UnixMilli(created).UTC()
	g.UpdatedAt = time.UnixMilli(updated).UTC()
	return g, nil
}

func scanProject(row rowScanner) (game.Project, error) {
	var p game.Project
	var value, progress int64
	if err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.Complexity, &value, &p.Assigned, &progress, &p.Completed); err != nil {
		return game.Project{}, notFound(err)
	}
	p.Value = game.Money(value)
	p.Progress = game.UnitsToProgress(progress)
	return p, nil
}

func scanDeveloper(row rowScanner) (game.Developer, error) {
	var d game.Developer
	var projectID sql.NullInt64
	if err := row.Scan(&d.ID, &d.GameID, &d.Name, &d.Seniority, &d.Busy, &projectID); err != nil {
		return game.Developer{}, notFound(err)
	}
	if projectID.Valid {
		id := projectID.Int64
		d.ProjectID = &id
	}
	return d, nil
}

func scanSalesperson(row rowScanner) (game.Salesperson, error) {
	var sp game.Salesperson
	var progress int64
	if err := row.Scan(&sp.ID, &sp.GameID, &sp.Name, &sp.Experience, &sp.Busy, &progress); err != nil {
		return game.Salesperson{}, notFound(err)
	}
	sp.Progress = game.UnitsToProgress(progress)
	return sp, nil
}

func queryAll[T any](ctx context.Context, q querier, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

func scanID(row rowScanner) (int64, error) {
	var id int64
	err := row.Scan(&id)
	return id, err
}

func (s *Store) Game(ctx context.Context, id int64) (game.Game, error) {
	return scanGame(s.sqlDB.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
}

func (s *Store) ListGames(ctx context.Context, sessionID string) ([]game.Game, error) {
	return queryAll(ctx, s.sqlDB, scanGame, `
SELECT `+gameColumns+`
FROM games
WHERE ? = '' OR session_id = ?
ORDER BY id
`, sessionID, sessionID)
}

func (s *Store) ActiveGameIDs(ctx context.Context) ([]int64, error) {
	return queryAll(ctx, s.sqlDB, scanID, `
SELECT game_id FROM projects WHERE assigned = 1 AND completed = 0
UNION
SELECT game_id FROM salespeople WHERE busy = 1
ORDER BY 1
`)
}

func (s *Store) Developer(ctx context.Context, id int64) (game.Developer, error) {
	return scanDeveloper(s.sqlDB.QueryRowContext(ctx, `SELECT `+developerColumns+` FROM developers WHERE id = ?`, id))
}

func (s *Store) Developers(ctx context.Context, gameID int64) ([]game.Developer, error) {
	return queryAll(ctx, s.sqlDB, scanDeveloper, `SELECT `+developerColumns+` FROM developers WHERE game_id = ? ORDER BY id`, gameID)
}

func (s *Store) DeveloperForProject(ctx context.Context, projectID int64) (game.Developer, bool, error) {
	return developerForProject(ctx, s.sqlDB, projectID)
}

func developerForProject(ctx context.Context, q querier, projectID int64) (game.Developer, bool, error) {
	d, err := scanDeveloper(q.QueryRowContext(ctx, `SELECT `+developerColumns+` FROM developers WHERE project_id = ?`, projectID))
	if errors.Is(err, game.ErrNotFound) {
		return game.Developer{}, false, nil
	}
	return d, err == nil, err
}

func (s *Store) Salesperson(ctx context.Context, id int64) (game.Salesperson, error) {
	return scanSalesperson(s.sqlDB.QueryRowContext(ctx, `SELECT `+salespersonColumns+` FROM salespeople WHERE id = ?`, id))
}

func (s *Store) Salespeople(ctx context.Context, gameID int64) ([]game.Salesperson, error) {
	return queryAll(ctx, s.sqlDB, scanSalesperson, `SELECT `+salespersonColumns+` FROM salespeople WHERE game_id = ? ORDER BY id`, gameID)
}

func (s *Store) BusySalespeople(ctx context.Context, gameID int64) ([]game.Salesperson, error) {
	return queryAll(ctx, s.sqlDB, scanSalesperson, `SELECT `+salespersonColumns+` FROM salespeople WHERE game_id = ? AND busy = 1 ORDER BY id`, gameID)
}

func (s *Store) Project(ctx context.Context, id int64) (game.Project, error) {
	return scanProject(s.sqlDB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
}

func (s *Store) Projects(ctx context.Context, gameID int64) ([]game.Project, error) {
	return queryAll(ctx, s.sqlDB, scanProject, `SELECT `+projectColumns+` FROM projects WHERE game_id = ? ORDER BY id`, gameID)
}

func (s *Store) ActiveProjects(ctx context.Context, gameID int64) ([]game.Project, error) {
	return queryAll(ctx, s.sqlDB, scanProject, `
SELECT `+projectColumns+`
FROM projects
WHERE game_id = ? AND assigned = 1 AND completed = 0
ORDER BY id
`, gameID)
}
