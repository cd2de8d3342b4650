package game

import "time"

type Game struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SessionID string    `json:"session_id,omitempty"`
	Money     Money     `json:"money_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Developer struct {
	ID        int64  `json:"id"`
	GameID    int64  `json:"game_id"`
	Name      string `json:"name"`
	Seniority int    `json:"seniority"`
	Busy      bool   `json:"busy"`
	ProjectID *int64 `json:"project_id"`
}

func (d *Developer) assign(projectID int64) {
	id := projectID
	d.Busy = true
	d.ProjectID = &id
}

func (d *Developer) release() {
	d.Busy = false
	d.ProjectID = nil
}

type Salesperson struct {
	ID         int64   `json:"id"`
	GameID     int64   `json:"game_id"`
	Name       string  `json:"name"`
	Experience int     `json:"experience"`
	Busy       bool    `json:"busy"`
	Progress   float64 `json:"progress"`
}

type Project struct {
	ID         int64   `json:"id"`
	GameID     int64   `json:"game_id"`
	Name       string  `json:"name"`
	Complexity int     `json:"complexity"`
	Value      Money   `json:"value_cents"`
	Assigned   bool    `json:"assigned"`
	Progress   float64 `json:"progress"`
	Completed  bool    `json:"completed"`
}

// Active reports whether the project is being worked on.
func (p Project) Active() bool {
	return p.Assigned && !p.Completed
}

type LedgerEntry struct {
	GameID    int64
	TxGroupID string
	Delta     Money
	Reason    string
	RefID     int64
}

const (
	ReasonDeveloperHire    = "developer_hire"
	ReasonSalespersonHire  = "salesperson_hire"
	ReasonProjectFee       = "project_fee"
	ReasonProjectCompleted = "project_completed"
	ReasonManualDebit      = "manual_debit"
	ReasonManualCredit     = "manual_credit"
)

type GameState struct {
	Game        Game          `json:"game"`
	Developers  []Developer   `json:"developers"`
	Salespeople []Salesperson `json:"salespeople"`
	Projects    []Project     `json:"projects"`
}

type CreateGameInput struct {
	Name      string
	SessionID string
}

type HireDeveloperInput struct {
	GameID         int64
	Name           string
	Seniority      int
	Cost           Money
	IdempotencyKey string
}

type HireSalespersonInput struct {
	GameID         int64
	Name           string
	Experience     int
	Cost           Money
	IdempotencyKey string
}

type CreateProjectInput struct {
	GameID         int64
	Name           string
	Complexity     int
	Value          Money
	IdempotencyKey string
}

type HireResult[T any] struct {
	Worker         T     `json:"worker"`
	RemainingMoney Money `json:"remaining_money_cents"`
}

type AssignResult struct {
	Project   Project   `json:"project"`
	Developer Developer `json:"developer"`
}

// ProjectAdvance is the outcome of one advance call on a project.
type ProjectAdvance struct {
	Project   Project
	Completed bool
	// Changed is false when the project was already completed and nothing was written.
	Changed   bool
	Developer *Developer
	Game      *Game
}

// SalespersonAdvance is the outcome of one advance call on a salesperson.
type SalespersonAdvance struct {
	Salesperson Salesperson
	Spawned     *Project
	Changed     bool
}
