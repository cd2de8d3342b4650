package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// debitTx takes amount out of the game's treasury. The game row stays locked
// until tx ends, so the balance check and the write cannot interleave with
// another mutation of the same game.
func debitTx(ctx context.Context, tx Tx, gameID int64, amount Money, reason string, refID int64) (Game, error) {
	if amount < 0 {
		return Game{}, ErrInvalidAmount
	}
	g, err := tx.LockGame(ctx, gameID)
	if err != nil {
		return Game{}, persistErr("lock game", err)
	}
	if g.Money < amount {
		return g, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, g.Money, amount)
	}
	g.Money -= amount
	if err := tx.SaveGameMoney(ctx, g.ID, g.Money); err != nil {
		return Game{}, persistErr("save game money", err)
	}
	if err := appendLedgerEntry(ctx, tx, gameID, -amount, reason, refID); err != nil {
		return Game{}, err
	}
	return g, nil
}

// creditTx adds amount to the game's treasury under the same lock as debitTx.
func creditTx(ctx context.Context, tx Tx, gameID int64, amount Money, reason string, refID int64) (Game, error) {
	if amount < 0 {
		return Game{}, ErrInvalidAmount
	}
	g, err := tx.LockGame(ctx, gameID)
	if err != nil {
		return Game{}, persistErr("lock game", err)
	}
	g.Money += amount
	if err := tx.SaveGameMoney(ctx, g.ID, g.Money); err != nil {
		return Game{}, persistErr("save game money", err)
	}
	if err := appendLedgerEntry(ctx, tx, gameID, amount, reason, refID); err != nil {
		return Game{}, err
	}
	return g, nil
}

func appendLedgerEntry(ctx context.Context, tx Tx, gameID int64, delta Money, reason string, refID int64) error {
	err := tx.AppendLedger(ctx, LedgerEntry{
		GameID:    gameID,
		TxGroupID: uuid.NewString(),
		Delta:     delta,
		Reason:    reason,
		RefID:     refID,
	})
	return persistErr("append ledger", err)
}

// Debit removes amount from the game's treasury in its own transaction.
func (s *Service) Debit(ctx context.Context, gameID int64, amount Money) (Game, error) {
	var out Game
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		g, err := debitTx(ctx, tx, gameID, amount, ReasonManualDebit, 0)
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return Game{}, persistErr("debit", err)
	}
	s.publish(ctx, gameEvent(out))
	return out, nil
}

// Credit adds amount to the game's treasury in its own transaction.
func (s *Service) Credit(ctx context.Context, gameID int64, amount Money) (Game, error) {
	var out Game
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		g, err := creditTx(ctx, tx, gameID, amount, ReasonManualCredit, 0)
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return Game{}, persistErr("credit", err)
	}
	s.publish(ctx, gameEvent(out))
	return out, nil
}
