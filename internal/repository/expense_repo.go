package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// ExpenseRepository handles expense database operations
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

const expenseColumns = `
	id, company_id, submitter_id, category, description, amount_cents,
	currency, expense_date, status, rule_id, version, flagged_reason,
	submitted_at, decided_at, created_at, updated_at
`

// Create inserts a new expense in Draft status
func (r *ExpenseRepository) Create(tx *sql.Tx, exp *entity.Expense) error {
	query := `
		INSERT INTO expenses (
			id, company_id, submitter_id, category, description, amount_cents,
			currency, expense_date, status, rule_id, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query,
			exp.ID, exp.CompanyID, exp.SubmitterID, exp.Category, exp.Description,
			exp.AmountCents, exp.Currency, exp.ExpenseDate, exp.Status,
			nullString(exp.RuleID), exp.Version,
		)
	} else {
		_, err = r.db.Exec(query,
			exp.ID, exp.CompanyID, exp.SubmitterID, exp.Category, exp.Description,
			exp.AmountCents, exp.Currency, exp.ExpenseDate, exp.Status,
			nullString(exp.RuleID), exp.Version,
		)
	}

	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("id", exp.ID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	return nil
}

// GetByID retrieves an expense by ID. Returns nil when not found.
func (r *ExpenseRepository) GetByID(tx *sql.Tx, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	exp, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return exp, nil
}

// UpdateStatusVersion applies a compare-and-swap status transition.
// The update succeeds only when the stored version still equals
// expectedVersion; it returns false when another writer got there first.
func (r *ExpenseRepository) UpdateStatusVersion(tx *sql.Tx, id, newStatus string, expectedVersion int64, decidedAt *time.Time) (bool, error) {
	query := `
		UPDATE expenses
		SET status = ?, version = version + 1, decided_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, newStatus, decidedAt, id, expectedVersion)
	} else {
		result, err = r.db.Exec(query, newStatus, decidedAt, id, expectedVersion)
	}

	if err != nil {
		r.logger.Error("Failed to update expense status",
			zap.String("id", id), zap.String("status", newStatus), zap.Error(err))
		return false, fmt.Errorf("failed to update expense status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// MarkSubmitted records the rule snapshot and submission time together
// with the Draft -> Pending status change, guarded by the version CAS.
func (r *ExpenseRepository) MarkSubmitted(tx *sql.Tx, id, ruleID string, expectedVersion int64, submittedAt time.Time) (bool, error) {
	query := `
		UPDATE expenses
		SET status = ?, rule_id = ?, submitted_at = ?, flagged_reason = NULL,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, entity.StatusPending, ruleID, submittedAt, id, expectedVersion)
	} else {
		result, err = r.db.Exec(query, entity.StatusPending, ruleID, submittedAt, id, expectedVersion)
	}

	if err != nil {
		r.logger.Error("Failed to mark expense submitted", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark expense submitted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// SetFlagged stores the configuration failure reason without changing status
func (r *ExpenseRepository) SetFlagged(tx *sql.Tx, id, reason string) error {
	query := `UPDATE expenses SET flagged_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, reason, id)
	} else {
		_, err = r.db.Exec(query, reason, id)
	}

	if err != nil {
		r.logger.Error("Failed to flag expense", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to flag expense: %w", err)
	}

	return nil
}

// ListByCompany retrieves company expenses, optionally filtered by status
func (r *ExpenseRepository) ListByCompany(companyID, status string, limit, offset int) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE company_id = ?`
	args := []interface{}{companyID}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.list(query, args...)
}

// ListBySubmitter retrieves a user's expenses, newest first
func (r *ExpenseRepository) ListBySubmitter(submitterID string, limit, offset int) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE submitter_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	return r.list(query, submitterID, limit, offset)
}

// ListPendingByCompany retrieves all pending expenses of a company
func (r *ExpenseRepository) ListPendingByCompany(companyID string) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses
		WHERE company_id = ? AND status = ? ORDER BY submitted_at ASC`
	return r.list(query, companyID, entity.StatusPending)
}

func (r *ExpenseRepository) list(query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, exp)
	}

	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var exp entity.Expense
	var ruleID, flaggedReason sql.NullString
	var submittedAt, decidedAt sql.NullTime

	err := row.Scan(
		&exp.ID, &exp.CompanyID, &exp.SubmitterID, &exp.Category, &exp.Description,
		&exp.AmountCents, &exp.Currency, &exp.ExpenseDate, &exp.Status,
		&ruleID, &exp.Version, &flaggedReason,
		&submittedAt, &decidedAt, &exp.CreatedAt, &exp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	exp.RuleID = ruleID.String
	if flaggedReason.Valid {
		exp.FlaggedReason = &flaggedReason.String
	}
	if submittedAt.Valid {
		exp.SubmittedAt = &submittedAt.Time
	}
	if decidedAt.Valid {
		exp.DecidedAt = &decidedAt.Time
	}

	return &exp, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
