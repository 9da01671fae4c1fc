package conversation

import "github.com/cockroachdb/errors"

var (
	// ErrTurnInProgress is returned when a user turn is submitted while
	// another one is being resolved on the same Loop.
	ErrTurnInProgress = errors.New("a user turn is already in progress")
	// ErrStepBudgetExceeded is returned with a TurnResult when the model
	// kept requesting tools beyond the step budget.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	// ErrEmptyInput is returned for a blank user turn.
	ErrEmptyInput = errors.New("user input is empty")
)
