package game

import (
	"context"
	"fmt"
)

const (
	EventProjectUpdated     = "project.updated"
	EventSalespersonUpdated = "salesperson.updated"
	EventDeveloperUpdated   = "developer.updated"
	EventGameUpdated        = "game.updated"
	EventDeveloperRemoved   = "developer.removed"
	EventSalespersonRemoved = "salesperson.removed"

	ChannelProjects    = "projects"
	ChannelSalespeople = "salespeople"
	ChannelDevelopers  = "developers"
)

// GameChannel is the per-game channel every event is also delivered on.
func GameChannel(gameID int64) string {
	return fmt.Sprintf("game.%d", gameID)
}

// Event is a state-change notification. Data is one of the *Payload types.
type Event struct {
	Name    string `json:"event"`
	Channel string `json:"channel"`
	GameID  int64  `json:"game_id"`
	Data    any    `json:"data"`
}

// Notifier fans events out to observers. Publish must not block the caller
// on slow consumers; delivery failures are the notifier's problem.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, Event) {}

type ProjectPayload struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Complexity int     `json:"complexity"`
	Value      float64 `json:"value"`
	Assigned   bool    `json:"assigned"`
	Progress   float64 `json:"progress"`
	Completed  bool    `json:"completed"`
	GameID     int64   `json:"game_id"`
}

type SalespersonPayload struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Experience int     `json:"experience"`
	Busy       bool    `json:"busy"`
	Progress   float64 `json:"progress"`
	GameID     int64   `json:"game_id"`
}

type DeveloperPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Seniority int    `json:"seniority"`
	Busy      bool   `json:"busy"`
	ProjectID *int64 `json:"project_id"`
	GameID    int64  `json:"game_id"`
}

type GamePayload struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Money float64 `json:"money"`
}

func projectEvent(p Project) Event {
	return Event{
		Name:    EventProjectUpdated,
		Channel: ChannelProjects,
		GameID:  p.GameID,
		Data: ProjectPayload{
			ID:         p.ID,
			Name:       p.Name,
			Complexity: p.Complexity,
			Value:      p.Value.Units(),
			Assigned:   p.Assigned,
			Progress:   p.Progress,
			Completed:  p.Completed,
			GameID:     p.GameID,
		},
	}
}

func salespersonEvent(sp Salesperson) Event {
	return Event{
		Name:    EventSalespersonUpdated,
		Channel: ChannelSalespeople,
		GameID:  sp.GameID,
		Data: SalespersonPayload{
			ID:         sp.ID,
			Name:       sp.Name,
			Experience: sp.Experience,
			Busy:       sp.Busy,
			Progress:   sp.Progress,
			GameID:     sp.GameID,
		},
	}
}

func developerEvent(d Developer) Event {
	return Event{
		Name:    EventDeveloperUpdated,
		Channel: ChannelDevelopers,
		GameID:  d.GameID,
		Data: DeveloperPayload{
			ID:        d.ID,
			Name:      d.Name,
			Seniority: d.Seniority,
			Busy:      d.Busy,
			ProjectID: d.ProjectID,
			GameID:    d.GameID,
		},
	}
}

// Removal events carry the last state of the deleted worker.
func developerRemovedEvent(d Developer) Event {
	ev := developerEvent(d)
	ev.Name = EventDeveloperRemoved
	return ev
}

func salespersonRemovedEvent(sp Salesperson) Event {
	ev := salespersonEvent(sp)
	ev.Name = EventSalespersonRemoved
	return ev
}

func gameEvent(g Game) Event {
	return Event{
		Name:    EventGameUpdated,
		Channel: GameChannel(g.ID),
		GameID:  g.ID,
		Data: GamePayload{
			ID:    g.ID,
			Name:  g.Name,
			Money: g.Money.Units(),
		},
	}
}

// changeSet keeps the latest state of every entity touched during a tick so
// each one is published once, in first-touched order.
type changeSet struct {
	order  []string
	events map[string]Event
}

func newChangeSet() *changeSet {
	return &changeSet{events: make(map[string]Event)}
}

func (c *changeSet) add(key string, ev Event) {
	if _, ok := c.events[key]; !ok {
		c.order = append(c.order, key)
	}
	c.events[key] = ev
}

func (c *changeSet) project(p Project) {
	c.add(fmt.Sprintf("project:%d", p.ID), projectEvent(p))
}

func (c *changeSet) salesperson(sp Salesperson) {
	c.add(fmt.Sprintf("salesperson:%d", sp.ID), salespersonEvent(sp))
}

func (c *changeSet) developer(d Developer) {
	c.add(fmt.Sprintf("developer:%d", d.ID), developerEvent(d))
}

func (c *changeSet) game(g Game) {
	c.add(fmt.Sprintf("game:%d", g.ID), gameEvent(g))
}

func (c *changeSet) flush(ctx context.Context, s *Service) int {
	for _, key := range c.order {
		s.publish(ctx, c.events[key])
	}
	return len(c.order)
}
