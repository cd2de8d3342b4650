package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"devshop/internal/game"
)

type pgTx struct {
	tx pgx.Tx
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return game.ErrNotFound
	}
	return nil
}

func (t *pgTx) LockGame(ctx context.Context, id int64) (game.Game, error) {
	return scanGame(t.tx.QueryRow(ctx, `
		SELECT `+gameColumns+`
		FROM devshop.games
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) InsertGame(ctx context.Context, g *game.Game) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO devshop.games (name, session_id, money_cents)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, g.Name, g.SessionID, int64(g.Money)).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

func (t *pgTx) SaveGameMoney(ctx context.Context, id int64, money game.Money) error {
	return affected(t.tx.Exec(ctx, `
		UPDATE devshop.games
		SET money_cents = $1, updated_at = now()
		WHERE id = $2
	`, int64(money), id))
}

func (t *pgTx) DeleteGame(ctx context.Context, id int64) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM devshop.games WHERE id = $1`, id))
}

func (t *pgTx) LockProject(ctx context.Context, id int64) (game.Project, error) {
	return scanProject(t.tx.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM devshop.projects
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) InsertProject(ctx context.Context, p *game.Project) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO devshop.projects (game_id, name, complexity, value_cents, assigned, progress_micros, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.GameID, p.Name, p.Complexity, int64(p.Value), p.Assigned, game.ProgressToUnits(p.Progress), p.Completed).Scan(&p.ID)
}

func (t *pgTx) SaveProject(ctx context.Context, p game.Project) error {
	return affected(t.tx.Exec(ctx, `
		UPDATE devshop.projects
		SET assigned = $1, progress_micros = $2, completed = $3
		WHERE id = $4
	`, p.Assigned, game.ProgressToUnits(p.Progress), p.Completed, p.ID))
}

func (t *pgTx) DeleteProject(ctx context.Context, id int64) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM devshop.projects WHERE id = $1`, id))
}

func (t *pgTx) LockDeveloper(ctx context.Context, id int64) (game.Developer, error) {
	return scanDeveloper(t.tx.QueryRow(ctx, `
		SELECT `+developerColumns+`
		FROM devshop.developers
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) LockDeveloperForProject(ctx context.Context, projectID int64) (game.Developer, bool, error) {
	d, err := scanDeveloper(t.tx.QueryRow(ctx, `
		SELECT `+developerColumns+`
		FROM devshop.developers
		WHERE project_id = $1
		FOR UPDATE
	`, projectID))
	if errors.Is(err, game.ErrNotFound) {
		return game.Developer{}, false, nil
	}
	return d, err == nil, err
}

func (t *pgTx) InsertDeveloper(ctx context.Context, d *game.Developer) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO devshop.developers (game_id, name, seniority, busy, project_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, d.GameID, d.Name, d.Seniority, d.Busy, d.ProjectID).Scan(&d.ID)
}

func (t *pgTx) SaveDeveloper(ctx context.Context, d game.Developer) error {
	return affected(t.tx.Exec(ctx, `
		UPDATE devshop.developers
		SET busy = $1, project_id = $2
		WHERE id = $3
	`, d.Busy, d.ProjectID, d.ID))
}

func (t *pgTx) DeleteDeveloper(ctx context.Context, id int64) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM devshop.developers WHERE id = $1`, id))
}

func (t *pgTx) LockSalesperson(ctx context.Context, id int64) (game.Salesperson, error) {
	return scanSalesperson(t.tx.QueryRow(ctx, `
		SELECT `+salespersonColumns+`
		FROM devshop.salespeople
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) InsertSalesperson(ctx context.Context, sp *game.Salesperson) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO devshop.salespeople (game_id, name, experience, busy, progress_micros)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sp.GameID, sp.Name, sp.Experience, sp.Busy, game.ProgressToUnits(sp.Progress)).Scan(&sp.ID)
}

func (t *pgTx) SaveSalesperson(ctx context.Context, sp game.Salesperson) error {
	return affected(t.tx.Exec(ctx, `
		UPDATE devshop.salespeople
		SET busy = $1, progress_micros = $2
		WHERE id = $3
	`, sp.Busy, game.ProgressToUnits(sp.Progress), sp.ID))
}

func (t *pgTx) DeleteSalesperson(ctx context.Context, id int64) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM devshop.salespeople WHERE id = $1`, id))
}

func (t *pgTx) AppendLedger(ctx context.Context, e game.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO devshop.ledger_entries (tx_group_id, game_id, delta_cents, reason, ref_id)
		VALUES ($1::uuid, $2, $3, $4, NULLIF($5::bigint, 0))
	`, e.TxGroupID, e.GameID, int64(e.Delta), e.Reason, e.RefID)
	return err
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, gameID int64, key, action string) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO devshop.idempotency_keys (game_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (game_id, key) DO NOTHING
	`, gameID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}
