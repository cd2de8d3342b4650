package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/game"
	"devshop/internal/store/memstore"
	"devshop/internal/store/storetest"
)

func seedGame(t *testing.T, s *memstore.Store, money game.Money) game.Game {
	t.Helper()
	g := game.Game{Name: "Acme", Money: money}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx game.Tx) error {
		return tx.InsertGame(ctx, &g)
	}))
	return g
}

// holdGame opens a transaction that keeps the game lock until release is
// closed. It returns once the lock is held.
func holdGame(t *testing.T, s *memstore.Store, gameID int64) (release chan struct{}, done chan error) {
	t.Helper()
	locked := make(chan struct{})
	release = make(chan struct{})
	done = make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(ctx context.Context, tx game.Tx) error {
			if _, err := tx.LockGame(ctx, gameID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	select {
	case <-locked:
	case <-time.After(2 * time.Second):
		t.Fatal("game lock never acquired")
	}
	return release, done
}

func TestGamesDoNotShareLocks(t *testing.T) {
	s := memstore.New()
	a := seedGame(t, s, 100)
	b := seedGame(t, s, 100)

	release, done := holdGame(t, s, a.ID)
	defer func() {
		close(release)
		require.NoError(t, <-done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g, err := tx.LockGame(ctx, b.ID)
		if err != nil {
			return err
		}
		return tx.SaveGameMoney(ctx, g.ID, g.Money+50)
	})
	require.NoError(t, err)

	got, err := s.Game(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Money(150), got.Money)

	_, err = s.Game(context.Background(), a.ID)
	require.NoError(t, err, "reads do not wait on row locks")
}

func TestSameGameLockWaitsForHolder(t *testing.T) {
	s := memstore.New()
	g := seedGame(t, s, 100)

	release, done := holdGame(t, s, g.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		_, err := tx.LockGame(ctx, g.ID)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx game.Tx) error {
		_, err := tx.LockGame(ctx, g.ID)
		return err
	}))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := memstore.New()
	g := seedGame(t, s, 100)
	boom := errors.New("boom")

	var devID int64
	err := s.InTx(context.Background(), func(ctx context.Context, tx game.Tx) error {
		if err := tx.SaveGameMoney(ctx, g.ID, 1); err != nil {
			return err
		}
		d := game.Developer{GameID: g.ID, Name: "Ada", Seniority: 1}
		if err := tx.InsertDeveloper(ctx, &d); err != nil {
			return err
		}
		devID = d.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Game(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Money(100), got.Money)
	_, err = s.Developer(context.Background(), devID)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestDeleteProjectDetachesDeveloper(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	g := seedGame(t, s, 100)

	p := game.Project{GameID: g.ID, Name: "Site", Complexity: 1, Value: 100}
	d := game.Developer{GameID: g.ID, Name: "Ada", Seniority: 1}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		if err := tx.InsertProject(ctx, &p); err != nil {
			return err
		}
		d.Busy = true
		d.ProjectID = &p.ID
		return tx.InsertDeveloper(ctx, &d)
	}))

	found, ok, err := s.DeveloperForProject(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.ID, found.ID)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.DeleteProject(ctx, p.ID)
	}))
	got, err := s.Developer(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ProjectID)
	_, ok, err = s.DeveloperForProject(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteGameRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	g := seedGame(t, s, 100)
	other := seedGame(t, s, 100)

	sp := game.Salesperson{GameID: g.ID, Name: "Sam", Experience: 1, Busy: true}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		if err := tx.InsertSalesperson(ctx, &sp); err != nil {
			return err
		}
		return tx.ClaimIdempotency(ctx, g.ID, "k", "hire")
	}))
	ids, err := s.ActiveGameIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{g.ID}, ids)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		if _, err := tx.LockGame(ctx, g.ID); err != nil {
			return err
		}
		return tx.DeleteGame(ctx, g.ID)
	}))

	_, err = s.Game(ctx, g.ID)
	require.ErrorIs(t, err, game.ErrNotFound)
	_, err = s.Salesperson(ctx, sp.ID)
	require.ErrorIs(t, err, game.ErrNotFound)
	games, err := s.ListGames(ctx, "")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, other.ID, games[0].ID)
}

func TestIdempotencyKeyIsPerGame(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	a := seedGame(t, s, 100)
	b := seedGame(t, s, 100)

	claim := func(gameID int64) error {
		return s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
			return tx.ClaimIdempotency(ctx, gameID, "same", "hire")
		})
	}
	require.NoError(t, claim(a.ID))
	require.NoError(t, claim(b.ID))
	require.ErrorIs(t, claim(a.ID), game.ErrDuplicateIdempotency)
	require.ErrorIs(t, claim(404), game.ErrNotFound)
}

func TestConcurrentScenarios(t *testing.T) {
	t.Run("debits", func(t *testing.T) { storetest.ConcurrentDebits(t, memstore.New()) })
	t.Run("ticks complete once", func(t *testing.T) { storetest.ConcurrentTicksCompleteOnce(t, memstore.New()) })
	t.Run("hires", func(t *testing.T) { storetest.ConcurrentHires(t, memstore.New()) })
	t.Run("unknown game", func(t *testing.T) { storetest.PurchasesOnUnknownGame(t, memstore.New()) })
}
