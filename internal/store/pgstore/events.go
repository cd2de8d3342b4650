package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"devshop/internal/game"
)

// EventsChannel is the LISTEN/NOTIFY channel carrying game events between
// processes sharing one database.
const EventsChannel = "devshop_events"

// maxPayload keeps a notification under the server's 8000 byte limit.
const maxPayload = 7900

const notifyTimeout = 2 * time.Second

// Notifier publishes events with pg_notify so every process listening on
// EventsChannel receives them. Events are sent after the caller's commit, so
// listeners never see uncommitted state.
type Notifier struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewNotifier(db *pgxpool.Pool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{db: db, log: logger}
}

func (n *Notifier) Publish(ctx context.Context, ev game.Event) {
	payload, err := encodeEvent(ev)
	if err != nil {
		n.log.Error("encode event failed", "event", ev.Name, "game_id", ev.GameID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if _, err := n.db.Exec(ctx, `SELECT pg_notify($1, $2)`, EventsChannel, payload); err != nil {
		n.log.Warn("notify failed", "event", ev.Name, "game_id", ev.GameID, "err", err)
	}
}

// wireEvent keeps Data as raw JSON so relayed events are re-sent byte for byte.
type wireEvent struct {
	Name    string          `json:"event"`
	Channel string          `json:"channel"`
	GameID  int64           `json:"game_id"`
	Data    json.RawMessage `json:"data"`
}

func encodeEvent(ev game.Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if len(b) > maxPayload {
		return "", fmt.Errorf("payload is %d bytes, limit %d", len(b), maxPayload)
	}
	return string(b), nil
}

func decodeEvent(payload string) (game.Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return game.Event{}, err
	}
	if w.Name == "" || w.Channel == "" {
		return game.Event{}, errors.New("event name and channel are required")
	}
	return game.Event{Name: w.Name, Channel: w.Channel, GameID: w.GameID, Data: w.Data}, nil
}

// Listen forwards every event on EventsChannel to n until ctx ends. A lost
// connection is re-established with backoff.
func Listen(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger, n game.Notifier) error {
	if logger == nil {
		logger = slog.Default()
	}
	backoff := 250 * time.Millisecond
	for {
		listened, err := listenOnce(ctx, db, logger, n)
		if ctx.Err() != nil {
			return nil
		}
		if listened {
			backoff = 250 * time.Millisecond
		}
		logger.Warn("event listener disconnected", "err", err, "retry_in", backoff.String())
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

// listenOnce holds one dedicated connection. It reports whether LISTEN
// succeeded before the connection failed.
func listenOnce(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger, n game.Notifier) (bool, error) {
	pooled, err := db.Acquire(ctx)
	if err != nil {
		return false, err
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{EventsChannel}.Sanitize()); err != nil {
		return false, err
	}
	logger.Info("event listener started", "channel", EventsChannel)
	for {
		note, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		ev, err := decodeEvent(note.Payload)
		if err != nil {
			logger.Warn("dropping malformed event", "err", err)
			continue
		}
		n.Publish(ctx, ev)
	}
}
