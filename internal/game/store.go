package game

import "context"

// Store is the Entity Store boundary. Reads outside InTx take no locks.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Game(ctx context.Context, id int64) (Game, error)
	ListGames(ctx context.Context, sessionID string) ([]Game, error)
	ActiveGameIDs(ctx context.Context) ([]int64, error)

	Developer(ctx context.Context, id int64) (Developer, error)
	Developers(ctx context.Context, gameID int64) ([]Developer, error)
	DeveloperForProject(ctx context.Context, projectID int64) (Developer, bool, error)

	Salesperson(ctx context.Context, id int64) (Salesperson, error)
	Salespeople(ctx context.Context, gameID int64) ([]Salesperson, error)
	BusySalespeople(ctx context.Context, gameID int64) ([]Salesperson, error)

	Project(ctx context.Context, id int64) (Project, error)
	Projects(ctx context.Context, gameID int64) ([]Project, error)
	ActiveProjects(ctx context.Context, gameID int64) ([]Project, error)
}

// Tx is one all-or-nothing unit of work. Lock* methods return ErrNotFound
// for missing rows and hold an exclusive row lock until commit or rollback.
// Callers take locks in the order game, project, developer, salesperson.
type Tx interface {
	LockGame(ctx context.Context, id int64) (Game, error)
	InsertGame(ctx context.Context, g *Game) error
	SaveGameMoney(ctx context.Context, id int64, money Money) error
	DeleteGame(ctx context.Context, id int64) error

	LockProject(ctx context.Context, id int64) (Project, error)
	InsertProject(ctx context.Context, p *Project) error
	SaveProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, id int64) error

	LockDeveloper(ctx context.Context, id int64) (Developer, error)
	LockDeveloperForProject(ctx context.Context, projectID int64) (Developer, bool, error)
	InsertDeveloper(ctx context.Context, d *Developer) error
	SaveDeveloper(ctx context.Context, d Developer) error
	DeleteDeveloper(ctx context.Context, id int64) error

	LockSalesperson(ctx context.Context, id int64) (Salesperson, error)
	InsertSalesperson(ctx context.Context, s *Salesperson) error
	SaveSalesperson(ctx context.Context, s Salesperson) error
	DeleteSalesperson(ctx context.Context, id int64) error

	AppendLedger(ctx context.Context, e LedgerEntry) error
	ClaimIdempotency(ctx context.Context, gameID int64, key, action string) error
}
