package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"devshop/internal/game"
)

type sqliteTx struct {
	q   querier
	now func() time.Time
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) nowMillis() int64 {
	return t.now().UTC().UnixMilli()
}

func (t *sqliteTx) LockGame(ctx context.Context, id int64) (game.Game, error) {
	return scanGame(t.q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
}

func (t *sqliteTx) InsertGame(ctx context.Context, g *game.Game) error {
	now := t.nowMillis()
	res, err := t.q.ExecContext(ctx, `
INSERT INTO games (name, session_id, money_cents, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, g.Name, g.SessionID, int64(g.Money), now, now)
	if err != nil {
		return err
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	g.CreatedAt = time.UnixMilli(now).UTC()
	g.UpdatedAt = g.CreatedAt
	return nil
}

func (t *sqliteTx) SaveGameMoney(ctx context.Context, id int64, money game.Money) error {
	return affected(t.q.ExecContext(ctx, `UPDATE games SET money_cents = ?, updated_at = ? WHERE id = ?`, int64(money), t.nowMillis(), id))
}

func (t *sqliteTx) DeleteGame(ctx context.Context, id int64) error {
	return affected(t.q.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id))
}

func (t *sqliteTx) LockProject(ctx context.Context, id int64) (game.Project, error) {
	return scanProject(t.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
}

func (t *sqliteTx) InsertProject(ctx context.Context, p *game.Project) error {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO projects (game_id, name, complexity, value_cents, assigned, progress_micros, completed)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, p.GameID, p.Name, p.Complexity, int64(p.Value), p.Assigned, game.ProgressToUnits(p.Progress), p.Completed)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (t *sqliteTx) SaveProject(ctx context.Context, p game.Project) error {
	return affected(t.q.ExecContext(ctx, `
UPDATE projects SET assigned = ?, progress_micros = ?, completed = ? WHERE id = ?
`, p.Assigned, game.ProgressToUnits(p.Progress), p.Completed, p.ID))
}

func (t *sqliteTx) DeleteProject(ctx context.Context, id int64) error {
	return affected(t.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id))
}

func (t *sqliteTx) LockDeveloper(ctx context.Context, id int64) (game.Developer, error) {
	return scanDeveloper(t.q.QueryRowContext(ctx, `SELECT `+developerColumns+` FROM developers WHERE id = ?`, id))
}

func (t *sqliteTx) LockDeveloperForProject(ctx context.Context, projectID int64) (game.Developer, bool, error) {
	return developerForProject(ctx, t.q, projectID)
}

func (t *sqliteTx) InsertDeveloper(ctx context.Context, d *game.Developer) error {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO developers (game_id, name, seniority, busy, project_id)
VALUES (?, ?, ?, ?, ?)
`, d.GameID, d.Name, d.Seniority, d.Busy, d.ProjectID)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (t *sqliteTx) SaveDeveloper(ctx context.Context, d game.Developer) error {
	return affected(t.q.ExecContext(ctx, `UPDATE developers SET busy = ?, project_id = ? WHERE id = ?`, d.Busy, d.ProjectID, d.ID))
}

func (t *sqliteTx) DeleteDeveloper(ctx context.Context, id int64) error {
	return affected(t.q.ExecContext(ctx, `DELETE FROM developers WHERE id = ?`, id))
}

func (t *sqliteTx) LockSalesperson(ctx context.Context, id int64) (game.Salesperson, error) {
	return scanSalesperson(t.q.QueryRowContext(ctx, `SELECT `+salespersonColumns+` FROM salespeople WHERE id = ?`, id))
}

func (t *sqliteTx) InsertSalesperson(ctx context.Context, sp *game.Salesperson) error {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO salespeople (game_id, name, experience, busy, progress_micros)
VALUES (?, ?, ?, ?, ?)
`, sp.GameID, sp.Name, sp.Experience, sp.Busy, game.ProgressToUnits(sp.Progress))
	if err != nil {
		return err
	}
	sp.ID, err = res.LastInsertId()
	return err
}

func (t *sqliteTx) SaveSalesperson(ctx context.Context, sp game.Salesperson) error {
	return affected(t.q.ExecContext(ctx, `
UPDATE salespeople SET busy = ?, progress_micros = ? WHERE id = ?
`, sp.Busy, game.ProgressToUnits(sp.Progress), sp.ID))
}

func (t *sqliteTx) DeleteSalesperson(ctx context.Context, id int64) error {
	return affected(t.q.ExecContext(ctx, `DELETE FROM salespeople WHERE id = ?`, id))
}

func (t *sqliteTx) AppendLedger(ctx context.Context, e game.LedgerEntry) error {
	var ref sql.NullInt64
	if e.RefID != 0 {
		ref = sql.NullInt64{Int64: e.RefID, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
INSERT INTO ledger_entries (tx_group_id, game_id, delta_cents, reason, ref_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, e.TxGroupID, e.GameID, int64(e.Delta), e.Reason, ref, t.nowMillis())
	return err
}

func (t *sqliteTx) ClaimIdempotency(ctx context.Context, gameID int64, key, action string) error {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO idempotency_keys (game_id, key, action, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (game_id, key) DO NOTHING
`, gameID, key, action, t.nowMillis())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}
