package game_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/game"
)

func eventKey(ev game.Event) string {
	switch d := ev.Data.(type) {
	case game.ProjectPayload:
		return fmt.Sprintf("project:%d", d.ID)
	case game.SalespersonPayload:
		return fmt.Sprintf("salesperson:%d", d.ID)
	case game.DeveloperPayload:
		return fmt.Sprintf("developer:%d", d.ID)
	case game.GamePayload:
		return fmt.Sprintf("game:%d", d.ID)
	}
	return ev.Name
}

func countByKey(events []game.Event) map[string]int {
	out := map[string]int{}
	for _, ev := range events {
		out[eventKey(ev)]++
	}
	return out
}

func TestRunTickAdvancesAndPublishesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	st := h.newGame(t, "Acme")
	g := st.Game
	dev := h.hireDeveloper(t, g.ID, 4)
	p := h.newProject(t, g.ID, 2, 1000)
	_, err := h.svc.AssignDeveloper(ctx, p.ID, dev.ID)
	require.NoError(t, err)
	sp := st.Salespeople[0]
	_, err = h.svc.StartSelling(ctx, sp.ID)
	require.NoError(t, err)
	h.events.reset()

	report, err := h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProjectsAdvanced)
	assert.Equal(t, 1, report.SalespeopleAdvanced)
	assert.Zero(t, report.ProjectsCompleted)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Published)

	counts := countByKey(h.events.snapshot())
	assert.Equal(t, map[string]int{
		fmt.Sprintf("project:%d", p.ID):      1,
		fmt.Sprintf("salesperson:%d", sp.ID): 1,
	}, counts)

	gotP, err := h.svc.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, gotP.Progress, 1e-9)
	gotSP, err := h.svc.Salesperson(ctx, sp.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, gotSP.Progress, 1e-9)
}

func TestRunTickCompletionPublishesEveryTouchedEntity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	g := h.newGame(t, "Acme").Game
	dev := h.hireDeveloper(t, g.ID, 10)
	p := h.newProject(t, g.ID, 1, 1000)
	_, err := h.svc.AssignDeveloper(ctx, p.ID, dev.ID)
	require.NoError(t, err)
	_, err = h.svc.AdvanceProject(ctx, g.ID, p.ID, 0.9)
	require.NoError(t, err)
	moneyBefore := h.money(t, g.ID)
	h.events.reset()

	report, err := h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProjectsCompleted)
	assert.Equal(t, moneyBefore+p.Value, h.money(t, g.ID))

	events := h.events.snapshot()
	assert.Equal(t, map[string]int{
		fmt.Sprintf("project:%d", p.ID):     1,
		fmt.Sprintf("developer:%d", dev.ID): 1,
		fmt.Sprintf("game:%d", g.ID):        1,
	}, countByKey(events))
	for _, ev := range events {
		if payload, ok := ev.Data.(game.ProjectPayload); ok {
			assert.True(t, payload.Completed)
			assert.Equal(t, 1.0, payload.Progress)
			assert.False(t, payload.Assigned)
			assert.InDelta(t, 1000.0, payload.Value, 1e-9)
		}
		if payload, ok := ev.Data.(game.GamePayload); ok {
			assert.InDelta(t, (moneyBefore + p.Value).Units(), payload.Money, 1e-9)
			assert.Equal(t, game.GameChannel(g.ID), ev.Channel)
		}
	}

	report, err = h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	assert.Zero(t, report.ProjectsAdvanced)
	assert.Zero(t, report.Published)
}

func TestRunTickSpawnsProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	g := h.newGame(t, "Acme").Game
	res, err := h.svc.HireSalesperson(ctx, game.HireSalespersonInput{GameID: g.ID, Name: "Closer", Experience: 50})
	require.NoError(t, err)
	_, err = h.svc.StartSelling(ctx, res.Worker.ID)
	require.NoError(t, err)

	report, err := h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ProjectsSpawned)
	report, err = h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProjectsSpawned)

	projects, err := h.svc.Projects(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 5, projects[0].Complexity)

	sp, err := h.svc.Salesperson(ctx, res.Worker.ID)
	require.NoError(t, err)
	assert.False(t, sp.Busy)
	assert.Zero(t, sp.Progress)
}

func TestRunTickIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	g := h.newGame(t, "Acme").Game
	devA := h.hireDeveloper(t, g.ID, 2)
	devB := h.hireDeveloper(t, g.ID, 2)
	pA := h.newProject(t, g.ID, 1, 100)
	pB := h.newProject(t, g.ID, 1, 100)
	_, err := h.svc.AssignDeveloper(ctx, pA.ID, devA.ID)
	require.NoError(t, err)
	_, err = h.svc.AssignDeveloper(ctx, pB.ID, devB.ID)
	require.NoError(t, err)
	h.events.reset()

	boom := errors.New("row corrupted")
	h.store.FailOnce("SaveProject", boom)

	report, err := h.svc.RunTick(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "project", report.Failures[0].Kind)
	assert.Equal(t, pA.ID, report.Failures[0].ID)
	assert.ErrorIs(t, report.Failures[0].Err, game.ErrPersistence)
	assert.Equal(t, 1, report.ProjectsAdvanced)

	gotA, err := h.svc.Project(ctx, pA.ID)
	require.NoError(t, err)
	assert.Zero(t, gotA.Progress)
	gotB, err := h.svc.Project(ctx, pB.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, gotB.Progress, 1e-9)

	assert.Equal(t, map[string]int{fmt.Sprintf("project:%d", pB.ID): 1}, countByKey(h.events.snapshot()))
}

func TestRunTickUnknownGame(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RunTick(context.Background(), 42)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestRunTickAllCoversEveryActiveGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	var ids []int64
	for i := range 3 {
		st := h.newGame(t, fmt.Sprintf("Game %d", i))
		_, err := h.svc.StartSelling(ctx, st.Salespeople[0].ID)
		require.NoError(t, err)
		ids = append(ids, st.Game.ID)
	}
	h.newGame(t, "Idle")

	reports, err := h.svc.RunTickAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, ids[i], r.GameID)
		assert.Equal(t, 1, r.SalespeopleAdvanced)
		assert.Empty(t, r.Failures)
	}
}
