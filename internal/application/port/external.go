package port

import (
	"context"
	"time"
)

// StatusNotification describes a committed expense status change
type StatusNotification struct {
	ExpenseID string    `json:"expense_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers status change notifications to submitters and
// approvers. Delivery is at-least-once; implementations must tolerate
// duplicates.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, n StatusNotification) error
}
