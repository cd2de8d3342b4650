package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"
)

// Rules holds the economy balance knobs that are not part of the core
// progress formulas.
type Rules struct {
	StartingMoney      Money
	ProjectFeeRate     float64
	StarterDeveloper   string
	StarterSeniority   int
	StarterSalesperson string
	StarterExperience  int
	TickConcurrency    int
}

func DefaultRules() Rules {
	return Rules{
		StartingMoney:      5000 * Money(CentsPerUnit),
		ProjectFeeRate:     0.1,
		StarterDeveloper:   "Initial Developer",
		StarterSeniority:   1,
		StarterSalesperson: "Initial Salesperson",
		StarterExperience:  1,
		TickConcurrency:    4,
	}
}

// Rand is the random source used for generated project values.
type Rand interface {
	Intn(n int) int
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithRand(r Rand) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

func WithRules(r Rules) Option {
	return func(s *Service) {
		s.rules = r
	}
}

type Service struct {
	store    Store
	log      *slog.Logger
	notifier Notifier
	rules    Rules
	mu       sync.Mutex
	rand     Rand
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		log:      logger,
		notifier: nopNotifier{},
		rules:    DefaultRules(),
		rand:     mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) nextIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked", "event", ev.Name, "game_id", ev.GameID, "panic", r)
		}
	}()
	s.notifier.Publish(ctx, ev)
}

// CreateGame starts a new game with the starter developer and salesperson.
func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (GameState, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return GameState{}, err
	}
	var out GameState
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		g := Game{Name: name, SessionID: in.SessionID, Money: s.rules.StartingMoney}
		if err := tx.InsertGame(ctx, &g); err != nil {
			return persistErr("insert game", err)
		}
		dev := Developer{GameID: g.ID, Name: s.rules.StarterDeveloper, Seniority: max(1, s.rules.StarterSeniority)}
		if err := tx.InsertDeveloper(ctx, &dev); err != nil {
			return persistErr("insert developer", err)
		}
		sp := Salesperson{GameID: g.ID, Name: s.rules.StarterSalesperson, Experience: max(1, s.rules.StarterExperience)}
		if err := tx.InsertSalesperson(ctx, &sp); err != nil {
			return persistErr("insert salesperson", err)
		}
		out = GameState{
			Game:        g,
			Developers:  []Developer{dev},
			Salespeople: []Salesperson{sp},
			Projects:    []Project{},
		}
		return nil
	})
	if err != nil {
		return GameState{}, err
	}
	s.log.Info("game created", "game_id", out.Game.ID, "money", out.Game.Money.String())
	return out, nil
}

func (s *Service) ListGames(ctx context.Context, sessionID string) ([]Game, error) {
	games, err := s.store.ListGames(ctx, sessionID)
	return games, persistErr("list games", err)
}

func (s *Service) GameState(ctx context.Context, gameID int64) (GameState, error) {
	var out GameState
	g, err := s.store.Game(ctx, gameID)
	if err != nil {
		return out, persistErr("load game", err)
	}
	out.Game = g
	if out.Developers, err = s.store.Developers(ctx, gameID); err != nil {
		return out, persistErr("list developers", err)
	}
	if out.Salespeople, err = s.store.Salespeople(ctx, gameID); err != nil {
		return out, persistErr("list salespeople", err)
	}
	if out.Projects, err = s.store.Projects(ctx, gameID); err != nil {
		return out, persistErr("list projects", err)
	}
	return out, nil
}

func (s *Service) DeleteGame(ctx context.Context, gameID int64) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGame(ctx, gameID); err != nil {
			return err
		}
		return tx.DeleteGame(ctx, gameID)
	})
	return persistErr("delete game", err)
}

// DeleteGamesBySession removes every game of a session and reports how many went.
func (s *Service) DeleteGamesBySession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	games, err := s.store.ListGames(ctx, sessionID)
	if err != nil {
		return 0, persistErr("list games", err)
	}
	deleted := 0
	for _, g := range games {
		if err := s.DeleteGame(ctx, g.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Service) HireDeveloper(ctx context.Context, in HireDeveloperInput) (HireResult[Developer], error) {
	var out HireResult[Developer]
	var g Game
	name, err := validateName(in.Name)
	if err != nil {
		return out, err
	}
	if in.Seniority < 1 {
		return out, fmt.Errorf("%w: seniority must be >= 1", ErrInvalidInput)
	}
	if in.Cost < 0 {
		return out, ErrInvalidAmount
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGame(ctx, in.GameID); err != nil {
			return err
		}
		if err := claimIdempotency(ctx, tx, in.GameID, in.IdempotencyKey, "hire_developer"); err != nil {
			return err
		}
		var err error
		g, err = debitTx(ctx, tx, in.GameID, in.Cost, ReasonDeveloperHire, 0)
		if err != nil {
			return err
		}
		dev := Developer{GameID: in.GameID, Name: name, Seniority: in.Seniority}
		if err := tx.InsertDeveloper(ctx, &dev); err != nil {
			return persistErr("insert developer", err)
		}
		out = HireResult[Developer]{Worker: dev, RemainingMoney: g.Money}
		return nil
	})
	if err != nil {
		return HireResult[Developer]{}, err
	}
	s.publish(ctx, developerEvent(out.Worker))
	s.publish(ctx, gameEvent(g))
	return out, nil
}

func (s *Service) HireSalesperson(ctx context.Context, in HireSalespersonInput) (HireResult[Salesperson], error) {
	var out HireResult[Salesperson]
	var g Game
	name, err := validateName(in.Name)
	if err != nil {
		return out, err
	}
	if in.Experience < 1 {
		return out, fmt.Errorf("%w: experience must be >= 1", ErrInvalidInput)
	}
	if in.Cost < 0 {
		return out, ErrInvalidAmount
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGame(ctx, in.GameID); err != nil {
			return err
		}
		if err := claimIdempotency(ctx, tx, in.GameID, in.IdempotencyKey, "hire_salesperson"); err != nil {
			return err
		}
		var err error
		g, err = debitTx(ctx, tx, in.GameID, in.Cost, ReasonSalespersonHire, 0)
		if err != nil {
			return err
		}
		sp := Salesperson{GameID: in.GameID, Name: name, Experience: in.Experience}
		if err := tx.InsertSalesperson(ctx, &sp); err != nil {
			return persistErr("insert salesperson", err)
		}
		out = HireResult[Salesperson]{Worker: sp, RemainingMoney: g.Money}
		return nil
	})
	if err != nil {
		return HireResult[Salesperson]{}, err
	}
	s.publish(ctx, salespersonEvent(out.Worker))
	s.publish(ctx, gameEvent(g))
	return out, nil
}

// FireDeveloper deletes a developer. An assigned project goes back to the
// unassigned pool with its progress kept.
func (s *Service) FireDeveloper(ctx context.Context, developerID int64) error {
	for attempt := 0; attempt < 3; attempt++ {
		snapshot, err := s.store.Developer(ctx, developerID)
		if err != nil {
			return persistErr("load developer", err)
		}
		released, removed, err := s.fireDeveloperTx(ctx, snapshot)
		if errors.Is(err, errAssignmentMoved) {
			continue
		}
		if err != nil {
			return persistErr("delete developer", err)
		}
		if released != nil {
			s.publish(ctx, projectEvent(*released))
		}
		s.publish(ctx, developerRemovedEvent(removed))
		return nil
	}
	return ErrTxConflict
}

// errAssignmentMoved means the developer changed projects between the
// unlocked snapshot and the locked read.
var errAssignmentMoved = errors.New("developer assignment moved")

func (s *Service) fireDeveloperTx(ctx context.Context, snapshot Developer) (*Project, Developer, error) {
	var (
		released *Project
		removed  Developer
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		released = nil
		if _, err := tx.LockGame(ctx, snapshot.GameID); err != nil {
			return err
		}
		if snapshot.ProjectID != nil {
			p, err := tx.LockProject(ctx, *snapshot.ProjectID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if err == nil && p.Active() {
				p.Assigned = false
				released = &p
			}
		}
		d, err := tx.LockDeveloper(ctx, snapshot.ID)
		if err != nil {
			return err
		}
		if !sameProject(d.ProjectID, snapshot.ProjectID) {
			return errAssignmentMoved
		}
		if released != nil {
			if err := tx.SaveProject(ctx, *released); err != nil {
				return err
			}
		}
		removed = d
		return tx.DeleteDeveloper(ctx, snapshot.ID)
	})
	return released, removed, err
}

func sameProject(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) FireSalesperson(ctx context.Context, salespersonID int64) error {
	snapshot, err := s.store.Salesperson(ctx, salespersonID)
	if err != nil {
		return persistErr("load salesperson", err)
	}
	var removed Salesperson
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGame(ctx, snapshot.GameID); err != nil {
			return err
		}
		sp, err := tx.LockSalesperson(ctx, salespersonID)
		if err != nil {
			return err
		}
		removed = sp
		return tx.DeleteSalesperson(ctx, salespersonID)
	})
	if err != nil {
		return persistErr("delete salesperson", err)
	}
	s.publish(ctx, salespersonRemovedEvent(removed))
	return nil
}

// CreateProject buys a project directly; the fee is a share of its value.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (Project, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return Project{}, err
	}
	if err := ValidateComplexity(in.Complexity); err != nil {
		return Project{}, err
	}
	if in.Value < 0 {
		return Project{}, ErrInvalidAmount
	}
	fee := MoneyFromUnits(in.Value.Units() * s.rules.ProjectFeeRate)
	var out Project
	var g Game
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGame(ctx, in.GameID); err != nil {
			return err
		}
		if err := claimIdempotency(ctx, tx, in.GameID, in.IdempotencyKey, "create_project"); err != nil {
			return err
		}
		var err error
		g, err = debitTx(ctx, tx, in.GameID, fee, ReasonProjectFee, 0)
		if err != nil {
			return err
		}
		out = Project{GameID: in.GameID, Name: name, Complexity: in.Complexity, Value: in.Value}
		if err := tx.InsertProject(ctx, &out); err != nil {
			return persistErr("insert project", err)
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	s.publish(ctx, projectEvent(out))
	s.publish(ctx, gameEvent(g))
	return out, nil
}

// DeleteProject removes a project and frees the developer working on it.
func (s *Service) DeleteProject(ctx context.Context, projectID int64) error {
	p, err := s.store.Project(ctx, projectID)
	if err != nil {
		return persistErr("load project", err)
	}
	var freed *Developer
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		freed = nil
		if _, err := tx.LockGame(ctx, p.GameID); err != nil {
			return err
		}
		if _, err := tx.LockProject(ctx, projectID); err != nil {
			return err
		}
		dev, ok, err := tx.LockDeveloperForProject(ctx, projectID)
		if err != nil {
			return err
		}
		if ok {
			dev.release()
			if err := tx.SaveDeveloper(ctx, dev); err != nil {
				return err
			}
			freed = &dev
		}
		return tx.DeleteProject(ctx, projectID)
	})
	if err != nil {
		return persistErr("delete project", err)
	}
	if freed != nil {
		s.publish(ctx, developerEvent(*freed))
	}
	return nil
}

func (s *Service) Project(ctx context.Context, id int64) (Project, error) {
	p, err := s.store.Project(ctx, id)
	return p, persistErr("load project", err)
}

func (s *Service) Projects(ctx context.Context, gameID int64) ([]Project, error) {
	out, err := s.store.Projects(ctx, gameID)
	return out, persistErr("list projects", err)
}

func (s *Service) Developer(ctx context.Context, id int64) (Developer, error) {
	d, err := s.store.Developer(ctx, id)
	return d, persistErr("load developer", err)
}

func (s *Service) Developers(ctx context.Context, gameID int64) ([]Developer, error) {
	out, err := s.store.Developers(ctx, gameID)
	return out, persistErr("list developers", err)
}

func (s *Service) Salesperson(ctx context.Context, id int64) (Salesperson, error) {
	sp, err := s.store.Salesperson(ctx, id)
	return sp, persistErr("load salesperson", err)
}

func (s *Service) Salespeople(ctx context.Context, gameID int64) ([]Salesperson, error) {
	out, err := s.store.Salespeople(ctx, gameID)
	return out, persistErr("list salespeople", err)
}

// claimIdempotency must run after the game row is locked.
func claimIdempotency(ctx context.Context, tx Tx, gameID int64, key, action string) error {
	if key == "" {
		return nil
	}
	return persistErr("claim idempotency", tx.ClaimIdempotency(ctx, gameID, key, action))
}
