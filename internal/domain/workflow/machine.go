package workflow

import "context"

// StateMachine tracks the current lifecycle state of one expense and
// validates transitions against the configured policy
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

// NewExpenseMachine builds the expense lifecycle machine positioned at
// the given state: Draft -> Pending -> {Approved, Rejected}, with
// withdrawal returning a Pending expense to Draft. The withdraw guard is
// supplied by the caller because it depends on ledger contents.
func NewExpenseMachine(initial State, canWithdraw GuardFunc) StateMachine {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		PermitIf(TriggerWithdraw, StateDraft, canWithdraw)

	// Approved and Rejected are terminal: no configuration.

	return b.Build(initial)
}
