package entity

import "time"

// Expense lifecycle statuses. Approved and Rejected are terminal.
const (
	StatusDraft    = "DRAFT"
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Expense is a single expense claim. Status is mutated only by the
// workflow controller; Version backs optimistic concurrency control and
// is bumped on every mutation.
type Expense struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	SubmitterID string    `json:"submitter_id"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	ExpenseDate time.Time `json:"expense_date"`
	Status      string    `json:"status"`

	// RuleID references the immutable rule version snapshotted at
	// submission time. Later rule edits never affect this expense.
	RuleID string `json:"rule_id,omitempty"`

	Version int64 `json:"version"`

	// FlaggedReason is set when rule evaluation failed with a
	// configuration error and the expense needs admin attention.
	FlaggedReason *string `json:"flagged_reason,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
