package game

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

type TickFailure struct {
	Kind    string `json:"kind"`
	ID      int64  `json:"id"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// TickReport summarizes one pass over a game.
type TickReport struct {
	GameID              int64         `json:"game_id"`
	ProjectsAdvanced    int           `json:"projects_advanced"`
	ProjectsCompleted   int           `json:"projects_completed"`
	SalespeopleAdvanced int           `json:"salespeople_advanced"`
	ProjectsSpawned     int           `json:"projects_spawned"`
	Published           int           `json:"published"`
	Failures            []TickFailure `json:"failures"`
}

func (r *TickReport) fail(kind string, id int64, err error) {
	r.Failures = append(r.Failures, TickFailure{Kind: kind, ID: id, Err: err, Message: err.Error()})
}

// RunTick advances every active project and busy salesperson of a game once.
// A failing entity is logged and recorded, and the pass moves on. Changed
// entities are published once each after the pass, with their final state.
func (s *Service) RunTick(ctx context.Context, gameID int64) (TickReport, error) {
	report := TickReport{GameID: gameID, Failures: []TickFailure{}}
	if _, err := s.store.Game(ctx, gameID); err != nil {
		return report, persistErr("load game", err)
	}
	projects, err := s.store.ActiveProjects(ctx, gameID)
	if err != nil {
		return report, persistErr("list active projects", err)
	}
	salespeople, err := s.store.BusySalespeople(ctx, gameID)
	if err != nil {
		return report, persistErr("list busy salespeople", err)
	}

	changes := newChangeSet()
	err = s.tickEntities(ctx, gameID, projects, salespeople, changes, &report)
	report.Published = changes.flush(ctx, s)
	return report, err
}

func (s *Service) tickEntities(ctx context.Context, gameID int64, projects []Project, salespeople []Salesperson, changes *changeSet, report *TickReport) error {
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tickProject(ctx, gameID, p, changes, report)
	}
	for _, sp := range salespeople {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tickSalesperson(ctx, gameID, sp, changes, report)
	}
	return nil
}

func (s *Service) tickProject(ctx context.Context, gameID int64, p Project, changes *changeSet, report *TickReport) {
	dev, ok, err := s.store.DeveloperForProject(ctx, p.ID)
	if err != nil {
		s.log.Error("tick: load developer failed", "game_id", gameID, "project_id", p.ID, "err", err)
		report.fail("project", p.ID, persistErr("load developer", err))
		return
	}
	if !ok {
		s.log.Warn("tick: active project has no developer", "game_id", gameID, "project_id", p.ID)
		return
	}
	inc, err := DeveloperIncrement(dev.Seniority, p.Complexity)
	if err != nil {
		s.log.Error("tick: bad project", "game_id", gameID, "project_id", p.ID, "err", err)
		report.fail("project", p.ID, err)
		return
	}
	adv, err := s.AdvanceProject(ctx, gameID, p.ID, inc)
	if err != nil {
		s.log.Error("tick: advance project failed", "game_id", gameID, "project_id", p.ID, "err", err)
		report.fail("project", p.ID, err)
		return
	}
	if !adv.Changed {
		return
	}
	report.ProjectsAdvanced++
	changes.project(adv.Project)
	if adv.Developer != nil {
		changes.developer(*adv.Developer)
	}
	if adv.Game != nil {
		changes.game(*adv.Game)
	}
	if adv.Completed {
		report.ProjectsCompleted++
		s.log.Info("project completed", "game_id", gameID, "project_id", p.ID, "value", adv.Project.Value.String())
	}
}

func (s *Service) tickSalesperson(ctx context.Context, gameID int64, sp Salesperson, changes *changeSet, report *TickReport) {
	adv, err := s.AdvanceSalesperson(ctx, gameID, sp.ID, SalespersonIncrement(sp.Experience))
	if err != nil {
		s.log.Error("tick: advance salesperson failed", "game_id", gameID, "salesperson_id", sp.ID, "err", err)
		report.fail("salesperson", sp.ID, err)
		return
	}
	if !adv.Changed {
		return
	}
	report.SalespeopleAdvanced++
	changes.salesperson(adv.Salesperson)
	if adv.Spawned != nil {
		report.ProjectsSpawned++
		changes.project(*adv.Spawned)
		s.log.Info("project spawned", "game_id", gameID, "salesperson_id", sp.ID, "project_id", adv.Spawned.ID, "value", adv.Spawned.Value.String())
	}
}

// RunTickAll ticks every game with active work. Games run concurrently up to
// the configured limit; one game's failure does not stop the others.
func (s *Service) RunTickAll(ctx context.Context) ([]TickReport, error) {
	ids, err := s.store.ActiveGameIDs(ctx)
	if err != nil {
		return nil, persistErr("list active games", err)
	}
	reports := make([]TickReport, len(ids))
	var g errgroup.Group
	g.SetLimit(max(1, s.rules.TickConcurrency))
	for i, id := range ids {
		g.Go(func() error {
			report, err := s.RunTick(ctx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				s.log.Error("tick failed", "game_id", id, "err", err)
				report.fail("game", id, err)
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports, ctx.Err()
}
