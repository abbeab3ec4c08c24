package entity

import "time"

// Transition history action types.
const (
	ActionSubmit   = "SUBMIT"
	ActionDecision = "DECISION"
	ActionWithdraw = "WITHDRAW"
	ActionFlag     = "FLAG"
)

// TransitionHistory is the audit record written alongside every status
// change of an expense, in the same transaction.
type TransitionHistory struct {
	ID         int64     `json:"id"`
	ExpenseID  string    `json:"expense_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActionType string    `json:"action_type"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
