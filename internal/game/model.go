package game

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	CentsPerUnit  = int64(100)
	ProgressScale = int64(1_000_000) // progress 1.0 = 1_000_000 units.

	MinComplexity = 1
	MaxComplexity = 5

	// Reaching this ceiling completes a project; progress never rests above it.
	CompletionThreshold = 0.99

	projectCeilingUnits     = int64(990_000)
	salespersonCeilingUnits = ProgressScale
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNotFound             = errors.New("not found")
	ErrInvalidComplexity    = errors.New("complexity must be between 1 and 5")
	ErrInvalidAmount        = errors.New("amount must be >= 0")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidInput         = errors.New("invalid input")

	ErrAssignmentConflict = errors.New("assignment conflict")
	ErrAlreadyAssigned    = fmt.Errorf("%w: project is already assigned to a developer", ErrAssignmentConflict)
	ErrDeveloperBusy      = fmt.Errorf("%w: developer is already assigned to a project", ErrAssignmentConflict)
	ErrCrossGameMismatch  = fmt.Errorf("%w: developer does not belong to the same game", ErrAssignmentConflict)
	ErrProjectCompleted   = fmt.Errorf("%w: project is already completed", ErrAssignmentConflict)
	ErrSalespersonBusy    = fmt.Errorf("%w: salesperson is already selling", ErrAssignmentConflict)
)

// PersistenceError reports an Entity Store failure during op. Whatever the
// operation had changed inside its transaction was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// persistErr wraps store errors, letting domain sentinels through untouched.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || isDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInsufficientFunds,
		ErrNotFound,
		ErrInvalidComplexity,
		ErrInvalidAmount,
		ErrInvalidInput,
		ErrDuplicateIdempotency,
		ErrTxConflict,
		ErrAssignmentConflict,
		errNeedsGameLock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Money is an amount in cents.
type Money int64

func MoneyFromUnits(v float64) Money {
	return Money(math.Round(v * float64(CentsPerUnit)))
}

func (m Money) Units() float64 {
	return float64(m) / float64(CentsPerUnit)
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f", m.Units())
}

func ProgressToUnits(p float64) int64 {
	return int64(math.Round(p * float64(ProgressScale)))
}

func UnitsToProgress(v int64) float64 {
	return float64(v) / float64(ProgressScale)
}

// stepProgress adds increment to current in fixed-point units, clamped to
// ceiling. reached reports whether the result hit the ceiling.
func stepProgress(current, increment float64, ceiling int64) (next float64, reached bool) {
	units := ProgressToUnits(current) + ProgressToUnits(increment)
	if units >= ceiling {
		return UnitsToProgress(ceiling), true
	}
	if units < 0 {
		units = 0
	}
	return UnitsToProgress(units), false
}

func ValidateComplexity(complexity int) error {
	if complexity < MinComplexity || complexity > MaxComplexity {
		return ErrInvalidComplexity
	}
	return nil
}

func validateName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(clean) > 255 {
		return "", fmt.Errorf("%w: name too long (max 255 chars)", ErrInvalidInput)
	}
	return clean, nil
}
