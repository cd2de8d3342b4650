package game

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeveloperIncrementMonotonic(t *testing.T) {
	for complexity := MinComplexity; complexity <= MaxComplexity; complexity++ {
		prev := 0.0
		for seniority := 1; seniority <= 20; seniority++ {
			got, err := DeveloperIncrement(seniority, complexity)
			require.NoError(t, err)
			if got <= prev {
				t.Fatalf("seniority=%d complexity=%d got=%v not above %v", seniority, complexity, got, prev)
			}
			prev = got
		}
	}
	for seniority := 1; seniority <= 20; seniority++ {
		prev, err := DeveloperIncrement(seniority, MinComplexity)
		require.NoError(t, err)
		for complexity := MinComplexity + 1; complexity <= MaxComplexity; complexity++ {
			got, err := DeveloperIncrement(seniority, complexity)
			require.NoError(t, err)
			if got >= prev {
				t.Fatalf("seniority=%d complexity=%d got=%v not below %v", seniority, complexity, got, prev)
			}
			prev = got
		}
	}
}

func TestDeveloperIncrementRejectsZeroComplexity(t *testing.T) {
	_, err := DeveloperIncrement(3, 0)
	require.ErrorIs(t, err, ErrInvalidComplexity)
	_, err = DeveloperIncrement(3, -1)
	require.ErrorIs(t, err, ErrInvalidComplexity)
}

func TestSalespersonIncrement(t *testing.T) {
	assert.InDelta(t, 0.20, SalespersonIncrement(20), 1e-12)
	assert.InDelta(t, 0.01, SalespersonIncrement(1), 1e-12)
}

func TestStepProgress(t *testing.T) {
	tests := []struct {
		current, inc float64
		ceiling      int64
		want         float64
		reached      bool
	}{
		{current: 0, inc: 0.05, ceiling: projectCeilingUnits, want: 0.05},
		{current: 0.95, inc: 0.05, ceiling: projectCeilingUnits, want: 0.99, reached: true},
		{current: 0.98, inc: 0.01, ceiling: projectCeilingUnits, want: 0.99, reached: true},
		{current: 0.97, inc: 0.01, ceiling: projectCeilingUnits, want: 0.98},
		{current: 0.95, inc: 0.20, ceiling: salespersonCeilingUnits, want: 1.0, reached: true},
		{current: 0.5, inc: 0.2, ceiling: salespersonCeilingUnits, want: 0.7},
	}
	for _, tc := range tests {
		got, reached := stepProgress(tc.current, tc.inc, tc.ceiling)
		assert.InDelta(t, tc.want, got, 1e-9, "current=%v inc=%v", tc.current, tc.inc)
		assert.Equal(t, tc.reached, reached, "current=%v inc=%v", tc.current, tc.inc)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	for _, p := range []float64{0, 0.05, 0.123456, 0.95, 0.99, 1.0} {
		assert.Equal(t, p, UnitsToProgress(ProgressToUnits(p)))
	}
}

func TestSpawnComplexity(t *testing.T) {
	tests := []struct {
		experience int
		want       int
	}{
		{experience: 0, want: 1},
		{experience: 1, want: 1},
		{experience: 3, want: 2},
		{experience: 6, want: 3},
		{experience: 9, want: 5},
		{experience: 20, want: 5},
	}
	for _, tc := range tests {
		if got := SpawnComplexity(tc.experience); got != tc.want {
			t.Fatalf("experience=%d got=%d want=%d", tc.experience, got, tc.want)
		}
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, Money(500_000), MoneyFromUnits(5000))
	assert.Equal(t, "5000.00", Money(500_000).String())
	assert.Equal(t, "0.10", MoneyFromUnits(0.1).String())
}

func TestValidateComplexity(t *testing.T) {
	for c := MinComplexity; c <= MaxComplexity; c++ {
		require.NoError(t, ValidateComplexity(c))
	}
	require.ErrorIs(t, ValidateComplexity(0), ErrInvalidComplexity)
	require.ErrorIs(t, ValidateComplexity(6), ErrInvalidComplexity)
}

func TestValidateName(t *testing.T) {
	got, err := validateName("  Acme Labs ")
	require.NoError(t, err)
	assert.Equal(t, "Acme Labs", got)

	_, err = validateName("   ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPersistErr(t *testing.T) {
	require.NoError(t, persistErr("op", nil))
	require.Equal(t, ErrNotFound, persistErr("op", ErrNotFound))

	wrapped := fmt.Errorf("%w: have 1.00, need 2.00", ErrInsufficientFunds)
	require.Equal(t, wrapped, persistErr("op", wrapped))

	boom := errors.New("disk on fire")
	err := persistErr("save project", boom)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "save project")

	again := persistErr("outer", err)
	require.Equal(t, err, again)
}

func TestChangeSetKeepsLatestOncePerEntity(t *testing.T) {
	cs := newChangeSet()
	cs.project(Project{ID: 1, GameID: 9, Progress: 0.1})
	cs.developer(Developer{ID: 2, GameID: 9})
	cs.project(Project{ID: 1, GameID: 9, Progress: 0.2})

	require.Len(t, cs.order, 2)
	ev := cs.events[cs.order[0]]
	assert.Equal(t, EventProjectUpdated, ev.Name)
	assert.InDelta(t, 0.2, ev.Data.(ProjectPayload).Progress, 1e-12)
}
