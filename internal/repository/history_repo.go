package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// HistoryRepository handles the expense transition audit trail
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a transition, normally inside the same transaction as
// the status change it describes
func (r *HistoryRepository) Append(tx *sql.Tx, h *entity.TransitionHistory) error {
	query := `
		INSERT INTO transition_history (expense_id, from_status, to_status, actor_id, action_type, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, h.ExpenseID, h.FromStatus, h.ToStatus, h.ActorID, h.ActionType, h.Note)
	} else {
		result, err = r.db.Exec(query, h.ExpenseID, h.FromStatus, h.ToStatus, h.ActorID, h.ActionType, h.Note)
	}

	if err != nil {
		r.logger.Error("Failed to append transition history",
			zap.String("expense_id", h.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to append transition history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// ListByExpense retrieves the transition trail of an expense in order
func (r *HistoryRepository) ListByExpense(expenseID string) ([]*entity.TransitionHistory, error) {
	query := `
		SELECT id, expense_id, from_status, to_status, actor_id, action_type, note, created_at
		FROM transition_history
		WHERE expense_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, expenseID)
	if err != nil {
		r.logger.Error("Failed to list transition history",
			zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list transition history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.TransitionHistory
	for rows.Next() {
		var h entity.TransitionHistory
		if err := rows.Scan(&h.ID, &h.ExpenseID, &h.FromStatus, &h.ToStatus, &h.ActorID, &h.ActionType, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition history: %w", err)
		}
		entries = append(entries, &h)
	}

	return entries, rows.Err()
}
