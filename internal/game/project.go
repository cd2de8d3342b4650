package game

import (
	"context"
	"errors"
)

// errNeedsGameLock aborts a transaction that discovered, after locking only
// an entity row, that it has to touch the treasury. The caller retries with
// the game row locked first so lock order stays game -> entity.
var errNeedsGameLock = errors.New("game lock required")

// withEntityTx runs fn in a transaction, taking the game lock up front when
// lockGame is set and retrying once with it when fn asks for it.
func (s *Service) withEntityTx(ctx context.Context, gameID int64, lockGame bool, fn func(ctx context.Context, tx Tx, gameLocked bool) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		locked := lockGame
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if locked {
				if _, err := tx.LockGame(ctx, gameID); err != nil {
					return err
				}
			}
			return fn(ctx, tx, locked)
		})
		if errors.Is(err, errNeedsGameLock) && !lockGame {
			lockGame = true
			continue
		}
		return err
	}
	return ErrTxConflict
}

// AssignDeveloper links an idle developer to an unassigned project of the
// same game and restarts the project's progress.
func (s *Service) AssignDeveloper(ctx context.Context, projectID, developerID int64) (AssignResult, error) {
	var out AssignResult
	snapshot, err := s.store.Project(ctx, projectID)
	if err != nil {
		return out, persistErr("load project", err)
	}
	err = s.withEntityTx(ctx, snapshot.GameID, true, func(ctx context.Context, tx Tx, _ bool) error {
		p, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		dev, err := tx.LockDeveloper(ctx, developerID)
		if err != nil {
			return err
		}
		if err := checkAssignable(p, dev); err != nil {
			return err
		}
		dev.assign(p.ID)
		if err := tx.SaveDeveloper(ctx, dev); err != nil {
			return persistErr("save developer", err)
		}
		p.Assigned = true
		p.Progress = 0
		p.Completed = false
		if err := tx.SaveProject(ctx, p); err != nil {
			return persistErr("save project", err)
		}
		out = AssignResult{Project: p, Developer: dev}
		return nil
	})
	if err != nil {
		return AssignResult{}, persistErr("assign developer", err)
	}
	s.publish(ctx, projectEvent(out.Project))
	s.publish(ctx, developerEvent(out.Developer))
	return out, nil
}

func checkAssignable(p Project, dev Developer) error {
	switch {
	case p.Completed:
		return ErrProjectCompleted
	case dev.Busy:
		return ErrDeveloperBusy
	case p.Assigned:
		return ErrAlreadyAssigned
	case dev.GameID != p.GameID:
		return ErrCrossGameMismatch
	}
	return nil
}

// AdvanceProject adds increment to a project's progress. Reaching the 0.99
// ceiling completes the project: it is paid out and its developer released.
// Calling it on a completed project changes nothing and reports completion.
func (s *Service) AdvanceProject(ctx context.Context, gameID, projectID int64, increment float64) (ProjectAdvance, error) {
	snapshot, err := s.store.Project(ctx, projectID)
	if err != nil {
		return ProjectAdvance{}, persistErr("load project", err)
	}
	if snapshot.Completed {
		return ProjectAdvance{Project: snapshot, Completed: true}, nil
	}
	_, crossing := stepProgress(snapshot.Progress, increment, projectCeilingUnits)

	var out ProjectAdvance
	err = s.withEntityTx(ctx, gameID, crossing, func(ctx context.Context, tx Tx, gameLocked bool) error {
		out = ProjectAdvance{}
		p, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p.GameID != gameID {
			return ErrNotFound
		}
		adv, err := advanceProjectTx(ctx, tx, p, increment, gameLocked)
		if err != nil {
			return err
		}
		out = adv
		return nil
	})
	if err != nil {
		return ProjectAdvance{}, persistErr("advance project", err)
	}
	return out, nil
}

func advanceProjectTx(ctx context.Context, tx Tx, p Project, increment float64, gameLocked bool) (ProjectAdvance, error) {
	if p.Completed {
		return ProjectAdvance{Project: p, Completed: true}, nil
	}
	next, reached := stepProgress(p.Progress, increment, projectCeilingUnits)
	if reached {
		if !gameLocked {
			return ProjectAdvance{}, errNeedsGameLock
		}
		return completeProjectTx(ctx, tx, p)
	}
	p.Progress = next
	if err := tx.SaveProject(ctx, p); err != nil {
		return ProjectAdvance{}, persistErr("save project", err)
	}
	return ProjectAdvance{Project: p, Changed: true}, nil
}

// completeProjectTx finishes p inside tx: progress 1, unassigned, value
// credited to the game, developer released. The caller holds the game lock.
func completeProjectTx(ctx context.Context, tx Tx, p Project) (ProjectAdvance, error) {
	p.Progress = 1.0
	p.Completed = true
	p.Assigned = false

	g, err := creditTx(ctx, tx, p.GameID, p.Value, ReasonProjectCompleted, p.ID)
	if err != nil {
		return ProjectAdvance{}, err
	}
	out := ProjectAdvance{Project: p, Completed: true, Changed: true, Game: &g}

	dev, ok, err := tx.LockDeveloperForProject(ctx, p.ID)
	if err != nil {
		return ProjectAdvance{}, persistErr("lock developer", err)
	}
	if ok {
		dev.release()
		if err := tx.SaveDeveloper(ctx, dev); err != nil {
			return ProjectAdvance{}, persistErr("save developer", err)
		}
		out.Developer = &dev
	}
	if err := tx.SaveProject(ctx, p); err != nil {
		return ProjectAdvance{}, persistErr("save project", err)
	}
	return out, nil
}
