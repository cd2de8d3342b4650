package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devshop/internal/game"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, channels string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channel=" + channels
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() == before+1 }, time.Second, 10*time.Millisecond)
	return conn
}

type wireEvent struct {
	Name    string          `json:"event"`
	Channel string          `json:"channel"`
	GameID  int64           `json:"game_id"`
	Data    json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev wireEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func projectEvent(id, gameID int64) game.Event {
	return game.Event{
		Name:    game.EventProjectUpdated,
		Channel: game.ChannelProjects,
		GameID:  gameID,
		Data:    game.ProjectPayload{ID: id, GameID: gameID, Name: "Shop", Complexity: 2, Value: 1000, Progress: 0.25, Assigned: true},
	}
}

func TestPublishReachesChannelSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, game.ChannelProjects)

	hub.Publish(context.Background(), projectEvent(3, 7))

	ev := readEvent(t, conn)
	assert.Equal(t, game.EventProjectUpdated, ev.Name)
	assert.Equal(t, game.ChannelProjects, ev.Channel)
	var payload game.ProjectPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, int64(3), payload.ID)
	assert.Equal(t, 0.25, payload.Progress)
	assert.Equal(t, 1000.0, payload.Value)
}

func TestGameChannelFiltersByGame(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, game.GameChannel(7))

	hub.Publish(context.Background(), projectEvent(1, 8))
	hub.Publish(context.Background(), projectEvent(2, 7))

	ev := readEvent(t, conn)
	assert.Equal(t, int64(7), ev.GameID)
	var payload game.ProjectPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, int64(2), payload.ID)
}

func TestSubscriberOnBothChannelsGetsOneCopy(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, game.ChannelSalespeople+","+game.GameChannel(4))

	hub.Publish(context.Background(), game.Event{
		Name:    game.EventSalespersonUpdated,
		Channel: game.ChannelSalespeople,
		GameID:  4,
		Data:    game.SalespersonPayload{ID: 9, GameID: 4},
	})
	hub.Publish(context.Background(), projectEvent(5, 4))

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	assert.Equal(t, game.EventSalespersonUpdated, first.Name)
	assert.Equal(t, game.EventProjectUpdated, second.Name)
}

func TestServeWSRequiresChannel(t *testing.T) {
	hub := NewHub(nil)
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, game.ChannelDevelopers)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), game.Event{Name: game.EventDeveloperUpdated, Channel: game.ChannelDevelopers})
}
