package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/port"
)

// LogNotifier is the default Notifier backend. It writes status changes
// to the structured log; deployments that need email or webhook fan-out
// swap in their own port.Notifier implementation.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyStatusChange logs the status change
func (n *LogNotifier) NotifyStatusChange(ctx context.Context, notification port.StatusNotification) error {
	n.logger.Info("Expense status changed",
		zap.String("expense_id", notification.ExpenseID),
		zap.String("old_status", notification.OldStatus),
		zap.String("new_status", notification.NewStatus),
		zap.Time("timestamp", notification.Timestamp))
	return nil
}
