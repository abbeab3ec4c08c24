package entity

import "time"

// Decision outcomes.
const (
	OutcomeApprove = "APPROVE"
	OutcomeReject  = "REJECT"
)

// ApprovalDecision is one immutable ledger entry: a single approver's
// verdict on a single expense. The ledger is append-only and holds at
// most one decision per (expense, approver) pair.
type ApprovalDecision struct {
	ID         string    `json:"id"`
	ExpenseID  string    `json:"expense_id"`
	ApproverID string    `json:"approver_id"`
	StepID     *string   `json:"step_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Comment    string    `json:"comment,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}
