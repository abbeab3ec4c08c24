package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrNotEligible is returned when the actor has no standing to decide
	// on the expense in its current evaluation state
	ErrNotEligible = errors.New("approver is not eligible")

	// ErrDuplicateDecision is returned when an approver who already decided
	// submits a conflicting second decision
	ErrDuplicateDecision = errors.New("duplicate decision for approver")

	// ErrConcurrencyConflict is returned after the bounded retry budget for
	// optimistic version conflicts is exhausted
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	// ErrConfiguration is returned when a rule is malformed (for example
	// resolves to zero eligible approvers); the expense stays Pending
	ErrConfiguration = errors.New("approval rule configuration error")

	// ErrAlreadyInProgress is returned when withdrawal is attempted after
	// at least one decision has been recorded
	ErrAlreadyInProgress = errors.New("approval already in progress")

	// ErrNotFound is returned when the referenced expense does not exist
	ErrNotFound = errors.New("expense not found")
)
