// Package storetest holds concurrency scenarios every game.Store backend must
// pass. Backend test files call them with a fresh store.
package storetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/game"
)

func newService(s game.Store) *game.Service {
	return game.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newGame creates a game with the default 5000.00 and deletes it when the
// test ends, so shared databases stay clean.
func newGame(t *testing.T, svc *game.Service) game.GameState {
	t.Helper()
	st, err := svc.CreateGame(context.Background(), game.CreateGameInput{Name: t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.DeleteGame(context.Background(), st.Game.ID) })
	return st
}

func money(t *testing.T, s game.Store, gameID int64) game.Money {
	t.Helper()
	g, err := s.Game(context.Background(), gameID)
	require.NoError(t, err)
	return g.Money
}

// ConcurrentDebits runs two debits of 3000.00 against a 5000.00 balance at
// once. Exactly one must fail with ErrInsufficientFunds.
func ConcurrentDebits(t *testing.T, s game.Store) {
	ctx := context.Background()
	svc := newService(s)
	g := newGame(t, svc).Game

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Debit(ctx, g.ID, game.MoneyFromUnits(3000))
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, game.ErrInsufficientFunds)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, game.MoneyFromUnits(2000), money(t, s, g.ID))
}

// ConcurrentTicksCompleteOnce runs eight ticks at once on a project one
// advance away from completion. It must complete and pay exactly once.
func ConcurrentTicksCompleteOnce(t *testing.T, s game.Store) {
	ctx := context.Background()
	svc := newService(s)
	g := newGame(t, svc).Game

	hired, err := svc.HireDeveloper(ctx, game.HireDeveloperInput{GameID: g.ID, Name: "Senior", Seniority: 10})
	require.NoError(t, err)
	p, err := svc.CreateProject(ctx, game.CreateProjectInput{GameID: g.ID, Name: "Shop", Complexity: 1, Value: game.MoneyFromUnits(1000)})
	require.NoError(t, err)
	_, err = svc.AssignDeveloper(ctx, p.ID, hired.Worker.ID)
	require.NoError(t, err)
	adv, err := svc.AdvanceProject(ctx, g.ID, p.ID, 0.95)
	require.NoError(t, err)
	require.False(t, adv.Completed)
	before := money(t, s, g.ID)

	reports := make([]game.TickReport, 8)
	errs := make([]error, len(reports))
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = svc.RunTick(ctx, g.ID)
		}()
	}
	wg.Wait()

	completions := 0
	for i, r := range reports {
		require.NoError(t, errs[i])
		assert.Empty(t, r.Failures)
		completions += r.ProjectsCompleted
	}
	assert.Equal(t, 1, completions)
	assert.Equal(t, before+game.MoneyFromUnits(1000), money(t, s, g.ID))

	got, err := s.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, 1.0, got.Progress)
	dev, err := s.Developer(ctx, hired.Worker.ID)
	require.NoError(t, err)
	assert.False(t, dev.Busy)
}

// ConcurrentHires hires developers on one game in parallel. Every distinct
// key succeeds, a repeated key succeeds once, and the treasury matches.
func ConcurrentHires(t *testing.T, s game.Store) {
	ctx := context.Background()
	svc := newService(s)
	g := newGame(t, svc).Game

	const hires = 8
	keys := make([]string, hires)
	for i := range keys {
		keys[i] = fmt.Sprintf("hire-%d", i)
	}
	keys[hires-1] = keys[0]

	errs := make([]error, hires)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.HireDeveloper(ctx, game.HireDeveloperInput{
				GameID:         g.ID,
				Name:           fmt.Sprintf("Dev %d", i),
				Seniority:      2,
				Cost:           game.MoneyFromUnits(100),
				IdempotencyKey: keys[i],
			})
		}()
	}
	wg.Wait()

	dupes := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, game.ErrDuplicateIdempotency)
			dupes++
		}
	}
	assert.Equal(t, 1, dupes)
	assert.Equal(t, game.MoneyFromUnits(5000-100*(hires-1)), money(t, s, g.ID))

	devs, err := s.Developers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, devs, hires)
}

// PurchasesOnUnknownGame checks that keyed purchases against a missing game
// report ErrNotFound rather than a storage failure.
func PurchasesOnUnknownGame(t *testing.T, s game.Store) {
	ctx := context.Background()
	svc := newService(s)
	const missing = int64(1) << 40

	_, err := svc.HireDeveloper(ctx, game.HireDeveloperInput{GameID: missing, Name: "Ada", Seniority: 1, IdempotencyKey: "k"})
	require.ErrorIs(t, err, game.ErrNotFound)
	_, err = svc.HireSalesperson(ctx, game.HireSalespersonInput{GameID: missing, Name: "Sam", Experience: 1, IdempotencyKey: "k"})
	require.ErrorIs(t, err, game.ErrNotFound)
	_, err = svc.CreateProject(ctx, game.CreateProjectInput{GameID: missing, Name: "Site", Complexity: 1, Value: 100, IdempotencyKey: "k"})
	require.ErrorIs(t, err, game.ErrNotFound)
}
