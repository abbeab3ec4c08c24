package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/pkg/database"
)

// ErrDecisionExists is returned by Append when the approver has already
// decided on the expense. The caller distinguishes an idempotent repeat
// from a conflicting one by reading the existing entry.
var ErrDecisionExists = fmt.Errorf("decision already recorded for this approver")

// DecisionRepository handles the append-only decision ledger
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a new ledger entry. The ledger is append-only: entries
// are never updated or deleted, and the UNIQUE(expense_id, approver_id)
// constraint maps to ErrDecisionExists.
func (r *DecisionRepository) Append(tx *sql.Tx, d *entity.ApprovalDecision) error {
	query := `
		INSERT INTO approval_decisions (id, expense_id, approver_id, step_id, outcome, comment, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, d.ID, d.ExpenseID, d.ApproverID, d.StepID, d.Outcome, d.Comment, d.DecidedAt)
	} else {
		_, err = r.db.Exec(query, d.ID, d.ExpenseID, d.ApproverID, d.StepID, d.Outcome, d.Comment, d.DecidedAt)
	}

	if err != nil {
		if database.IsUniqueViolation(err, "approval_decisions") {
			return ErrDecisionExists
		}
		r.logger.Error("Failed to append decision",
			zap.String("expense_id", d.ExpenseID),
			zap.String("approver_id", d.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}

	return nil
}

// ListByExpense retrieves every decision recorded for an expense in
// insertion order
func (r *DecisionRepository) ListByExpense(tx *sql.Tx, expenseID string) ([]*entity.ApprovalDecision, error) {
	query := `
		SELECT id, expense_id, approver_id, step_id, outcome, comment, decided_at
		FROM approval_decisions
		WHERE expense_id = ?
		ORDER BY decided_at ASC, id ASC
	`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, expenseID)
	} else {
		rows, err = r.db.Query(query, expenseID)
	}
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.ApprovalDecision
	for rows.Next() {
		var d entity.ApprovalDecision
		var stepID sql.NullString

		if err := rows.Scan(&d.ID, &d.ExpenseID, &d.ApproverID, &stepID, &d.Outcome, &d.Comment, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if stepID.Valid {
			d.StepID = &stepID.String
		}
		decisions = append(decisions, &d)
	}

	return decisions, rows.Err()
}

// GetByExpenseAndApprover retrieves a single approver's decision on an
// expense. Returns nil when the approver has not decided yet.
func (r *DecisionRepository) GetByExpenseAndApprover(tx *sql.Tx, expenseID, approverID string) (*entity.ApprovalDecision, error) {
	query := `
		SELECT id, expense_id, approver_id, step_id, outcome, comment, decided_at
		FROM approval_decisions
		WHERE expense_id = ? AND approver_id = ?
	`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, expenseID, approverID)
	} else {
		row = r.db.QueryRow(query, expenseID, approverID)
	}

	var d entity.ApprovalDecision
	var stepID sql.NullString

	err := row.Scan(&d.ID, &d.ExpenseID, &d.ApproverID, &stepID, &d.Outcome, &d.Comment, &d.DecidedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get decision",
			zap.String("expense_id", expenseID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	if stepID.Valid {
		d.StepID = &stepID.String
	}
	return &d, nil
}

// CountByExpense returns the number of ledger entries for an expense
func (r *DecisionRepository) CountByExpense(tx *sql.Tx, expenseID string) (int, error) {
	query := `SELECT COUNT(*) FROM approval_decisions WHERE expense_id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, expenseID)
	} else {
		row = r.db.QueryRow(query, expenseID)
	}

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}
