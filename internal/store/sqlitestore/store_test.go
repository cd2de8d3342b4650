package sqlitestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/game"
	"devshop/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "devshop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	values := []float64{0, 0.01, 0.05, 0.123456, 0.5, 0.95, 0.99, 1.0}
	var gameID int64
	var projectIDs, salespersonIDs []int64
	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g := game.Game{Name: "roundtrip", Money: game.MoneyFromUnits(10)}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		gameID = g.ID
		for _, v := range values {
			p := game.Project{GameID: g.ID, Name: "p", Complexity: 1, Value: 100, Assigned: true, Progress: v}
			if err := tx.InsertProject(ctx, &p); err != nil {
				return err
			}
			projectIDs = append(projectIDs, p.ID)
			sp := game.Salesperson{GameID: g.ID, Name: "s", Experience: 1, Busy: true}
			if err := tx.InsertSalesperson(ctx, &sp); err != nil {
				return err
			}
			sp.Progress = v
			if err := tx.SaveSalesperson(ctx, sp); err != nil {
				return err
			}
			salespersonIDs = append(salespersonIDs, sp.ID)
		}
		return nil
	})
	require.NoError(t, err)

	for i, v := range values {
		p, err := s.Project(ctx, projectIDs[i])
		require.NoError(t, err)
		assert.Equal(t, v, p.Progress)
		assert.Equal(t, gameID, p.GameID)

		sp, err := s.Salesperson(ctx, salespersonIDs[i])
		require.NoError(t, err)
		assert.Equal(t, v, sp.Progress)
	}
}

func TestMissingRowsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Game(ctx, 1)
	require.ErrorIs(t, err, game.ErrNotFound)
	_, err = s.Project(ctx, 1)
	require.ErrorIs(t, err, game.ErrNotFound)
	_, ok, err := s.DeveloperForProject(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.SaveGameMoney(ctx, 1, 10)
	})
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g := game.Game{Name: "gone", Money: 1}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	games, err := s.ListGames(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestIdempotencyAndCascade(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var g game.Game
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		g = game.Game{Name: "cascade", SessionID: "abc", Money: 100}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return err
		}
		return tx.ClaimIdempotency(ctx, g.ID, "k1", "hire_developer")
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, g.ID, "k1", "hire_developer")
	})
	require.ErrorIs(t, err, game.ErrDuplicateIdempotency)

	games, err := s.ListGames(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "cascade", games[0].Name)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx game.Tx) error {
		return tx.DeleteGame(ctx, g.ID)
	}))
	_, err = s.Game(ctx, g.ID)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestServiceScenarioOnSQLite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	svc := game.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))

	st, err := svc.CreateGame(ctx, game.CreateGameInput{Name: "Acme"})
	require.NoError(t, err)
	hired, err := svc.HireDeveloper(ctx, game.HireDeveloperInput{GameID: st.Game.ID, Name: "Senior", Seniority: 10})
	require.NoError(t, err)
	p, err := svc.CreateProject(ctx, game.CreateProjectInput{GameID: st.Game.ID, Name: "Shop", Complexity: 2, Value: game.MoneyFromUnits(3000)})
	require.NoError(t, err)
	_, err = svc.AssignDeveloper(ctx, p.ID, hired.Worker.ID)
	require.NoError(t, err)

	active, err := s.ActiveGameIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{st.Game.ID}, active)

	completed := false
	for i := 0; i < 20 && !completed; i++ {
		report, err := svc.RunTick(ctx, st.Game.ID)
		require.NoError(t, err)
		require.Empty(t, report.Failures)
		completed = report.ProjectsCompleted == 1
	}
	require.True(t, completed)

	g, err := s.Game(ctx, st.Game.ID)
	require.NoError(t, err)
	assert.Equal(t, game.MoneyFromUnits(7700), g.Money)

	dev, err := s.Developer(ctx, hired.Worker.ID)
	require.NoError(t, err)
	assert.False(t, dev.Busy)
	assert.Nil(t, dev.ProjectID)

	got, err := s.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, 1.0, got.Progress)
}

func TestConcurrentScenariosOnSQLite(t *testing.T) {
	t.Run("debits", func(t *testing.T) { storetest.ConcurrentDebits(t, openTestStore(t)) })
	t.Run("ticks complete once", func(t *testing.T) { storetest.ConcurrentTicksCompleteOnce(t, openTestStore(t)) })
	t.Run("hires", func(t *testing.T) { storetest.ConcurrentHires(t, openTestStore(t)) })
	t.Run("unknown game", func(t *testing.T) { storetest.PurchasesOnUnknownGame(t, openTestStore(t)) })
}
