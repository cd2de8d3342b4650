package game

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
)

// StartSelling sends an idle salesperson out to find a new project.
func (s *Service) StartSelling(ctx context.Context, salespersonID int64) (Salesperson, error) {
	var out Salesperson
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sp, err := tx.LockSalesperson(ctx, salespersonID)
		if err != nil {
			return err
		}
		if sp.Busy {
			return ErrSalespersonBusy
		}
		sp.Busy = true
		sp.Progress = 0
		if err := tx.SaveSalesperson(ctx, sp); err != nil {
			return persistErr("save salesperson", err)
		}
		out = sp
		return nil
	})
	if err != nil {
		return Salesperson{}, persistErr("start selling", err)
	}
	s.publish(ctx, salespersonEvent(out))
	return out, nil
}

// AdvanceSalesperson adds increment to a busy salesperson's progress. At 1.0
// a new project is spawned for the game and the salesperson goes idle.
// Idle salespeople are left untouched.
func (s *Service) AdvanceSalesperson(ctx context.Context, gameID, salespersonID int64, increment float64) (SalespersonAdvance, error) {
	snapshot, err := s.store.Salesperson(ctx, salespersonID)
	if err != nil {
		return SalespersonAdvance{}, persistErr("load salesperson", err)
	}
	if !snapshot.Busy {
		return SalespersonAdvance{Salesperson: snapshot}, nil
	}
	_, spawning := stepProgress(snapshot.Progress, increment, salespersonCeilingUnits)

	var out SalespersonAdvance
	err = s.withEntityTx(ctx, gameID, spawning, func(ctx context.Context, tx Tx, gameLocked bool) error {
		out = SalespersonAdvance{}
		sp, err := tx.LockSalesperson(ctx, salespersonID)
		if err != nil {
			return err
		}
		if sp.GameID != gameID {
			return ErrNotFound
		}
		adv, err := s.advanceSalespersonTx(ctx, tx, sp, increment, gameLocked)
		if err != nil {
			return err
		}
		out = adv
		return nil
	})
	if err != nil {
		return SalespersonAdvance{}, persistErr("advance salesperson", err)
	}
	return out, nil
}

func (s *Service) advanceSalespersonTx(ctx context.Context, tx Tx, sp Salesperson, increment float64, gameLocked bool) (SalespersonAdvance, error) {
	if !sp.Busy {
		return SalespersonAdvance{Salesperson: sp}, nil
	}
	next, reached := stepProgress(sp.Progress, increment, salespersonCeilingUnits)
	if !reached {
		sp.Progress = next
		if err := tx.SaveSalesperson(ctx, sp); err != nil {
			return SalespersonAdvance{}, persistErr("save salesperson", err)
		}
		return SalespersonAdvance{Salesperson: sp, Changed: true}, nil
	}
	if !gameLocked {
		return SalespersonAdvance{}, errNeedsGameLock
	}
	p, err := s.spawnProjectTx(ctx, tx, sp)
	if err != nil {
		return SalespersonAdvance{}, err
	}
	sp.Busy = false
	sp.Progress = 0
	if err := tx.SaveSalesperson(ctx, sp); err != nil {
		return SalespersonAdvance{}, persistErr("save salesperson", err)
	}
	return SalespersonAdvance{Salesperson: sp, Spawned: &p, Changed: true}, nil
}

// spawnProjectTx creates the project a salesperson brought in. No money moves.
func (s *Service) spawnProjectTx(ctx context.Context, tx Tx, sp Salesperson) (Project, error) {
	complexity := SpawnComplexity(sp.Experience)
	value := int64(complexity)*1000 + int64(s.nextIntn(1001))
	p := Project{
		GameID:     sp.GameID,
		Name:       spawnedProjectName(),
		Complexity: complexity,
		Value:      Money(value * CentsPerUnit),
	}
	if err := tx.InsertProject(ctx, &p); err != nil {
		return Project{}, persistErr("insert project", err)
	}
	return p, nil
}

// SpawnComplexity is round(experience/2) clamped to the valid complexity range.
func SpawnComplexity(experience int) int {
	c := int(math.Round(float64(experience) / 2))
	return min(max(c, MinComplexity), MaxComplexity)
}

func spawnedProjectName() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "Project " + strings.ToUpper(id[:8])
}
