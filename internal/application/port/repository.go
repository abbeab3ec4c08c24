package port

import (
	"context"
	"database/sql"
	"time"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// TxRunner executes a function inside a database transaction. Passing
// the *sql.Tx through lets several repositories share one transaction;
// callers outside a transaction pass nil to repository methods.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(tx *sql.Tx, exp *entity.Expense) error
	GetByID(tx *sql.Tx, id string) (*entity.Expense, error)
	MarkSubmitted(tx *sql.Tx, id, ruleID string, expectedVersion int64, submittedAt time.Time) (bool, error)
	UpdateStatusVersion(tx *sql.Tx, id, newStatus string, expectedVersion int64, decidedAt *time.Time) (bool, error)
	SetFlagged(tx *sql.Tx, id, reason string) error
}

// ExpenseReader defines the listing side of the expense store, used by
// query services that never mutate status
type ExpenseReader interface {
	GetByID(tx *sql.Tx, id string) (*entity.Expense, error)
	ListByCompany(companyID, status string, limit, offset int) ([]*entity.Expense, error)
	ListBySubmitter(submitterID string, limit, offset int) ([]*entity.Expense, error)
	ListPendingByCompany(companyID string) ([]*entity.Expense, error)
}

// DecisionRepository defines the append-only decision ledger
type DecisionRepository interface {
	Append(tx *sql.Tx, d *entity.ApprovalDecision) error
	ListByExpense(tx *sql.Tx, expenseID string) ([]*entity.ApprovalDecision, error)
	GetByExpenseAndApprover(tx *sql.Tx, expenseID, approverID string) (*entity.ApprovalDecision, error)
	CountByExpense(tx *sql.Tx, expenseID string) (int, error)
}

// RuleRepository defines read operations for approval rule versions
type RuleRepository interface {
	GetByID(tx *sql.Tx, id string) (*entity.ApprovalRule, error)
	ListActiveByCompany(tx *sql.Tx, companyID string) ([]*entity.ApprovalRule, error)
}

// RuleWriter defines the mutating side of the rule store. Rule versions
// are immutable; editing creates a new version and deactivates the old.
type RuleWriter interface {
	RuleRepository
	Create(tx *sql.Tx, rule *entity.ApprovalRule) error
	Deactivate(tx *sql.Tx, id string) error
}

// HistoryRepository defines the transition audit trail
type HistoryRepository interface {
	Append(tx *sql.Tx, h *entity.TransitionHistory) error
}

// HistoryReader lists the audit trail of an expense
type HistoryReader interface {
	ListByExpense(expenseID string) ([]*entity.TransitionHistory, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(tx *sql.Tx, u *entity.User) error
	GetByID(id string) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	ListByCompany(companyID string) ([]*entity.User, error)
	ListByRole(companyID, role string) ([]*entity.User, error)
	UpdateManager(tx *sql.Tx, userID string, managerID *string) error
}

// CompanyRepository defines persistence operations for Company
type CompanyRepository interface {
	Create(tx *sql.Tx, c *entity.Company) error
	GetByID(id string) (*entity.Company, error)
	List() ([]*entity.Company, error)
}
