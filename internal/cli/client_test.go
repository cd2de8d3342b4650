package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/api"
	"devshop/internal/config"
	"devshop/internal/game"
	"devshop/internal/store/memstore"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(memstore.New(), logger)
	srv := httptest.NewServer(api.New(config.APIConfig{}, logger, svc, nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClientAgainstAPI(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	state, err := c.CreateGame(ctx, "Garage", "sess")
	require.NoError(t, err)
	require.Len(t, state.Developers, 1)

	games, err := c.ListGames(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Garage", games[0].Name)

	p, err := c.CreateProject(ctx, state.Game.ID, "Landing page", 1, 200, "")
	require.NoError(t, err)

	res, err := c.AssignDeveloper(ctx, p.ID, state.Developers[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Project.Assigned)

	report, err := c.Tick(ctx, state.Game.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProjectsAdvanced)

	projects, err := c.ListProjects(ctx, state.Game.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Greater(t, projects[0].Progress, 0.0)

	hired, err := c.HireSalesperson(ctx, state.Game.ID, "Sam", 4, 50, "hire-sam")
	require.NoError(t, err)
	assert.Equal(t, game.MoneyFromUnits(5000-20-50), hired.RemainingMoney)

	sp, err := c.StartSelling(ctx, hired.Worker.ID)
	require.NoError(t, err)
	assert.True(t, sp.Busy)

	require.NoError(t, c.DeleteGame(ctx, state.Game.ID))
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GameState(context.Background(), 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not found", apiErr.Message)
}

func TestSessionLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first, err := LoadSession()
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)

	again, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, again.SessionID)

	again.GameID = 7
	require.NoError(t, SaveSession(again))
	loaded, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.GameID)

	require.NoError(t, ClearSession())
	fresh, err := LoadSession()
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, fresh.SessionID)
}
