package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/internal/domain/rule"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
)

// CreateExpenseInput describes a new draft expense
type CreateExpenseInput struct {
	CompanyID   string
	SubmitterID string
	Category    string
	Description string
	AmountCents int64
	Currency    string
	ExpenseDate time.Time
}

// ExpenseDetail bundles an expense with its ledger and audit trail
type ExpenseDetail struct {
	Expense   *entity.Expense             `json:"expense"`
	Decisions []*entity.ApprovalDecision  `json:"decisions"`
	History   []*entity.TransitionHistory `json:"history"`
}

// Evaluator re-evaluates a rule for eligibility queries
type Evaluator interface {
	Evaluate(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, decisions []*entity.ApprovalDecision) (rule.Result, error)
}

// ExpenseService covers draft creation and read queries. Status
// mutations go through the workflow controller, never through here.
type ExpenseService interface {
	CreateDraft(ctx context.Context, input CreateExpenseInput) (*entity.Expense, error)
	Get(ctx context.Context, id string) (*ExpenseDetail, error)
	ListByCompany(ctx context.Context, companyID, status string, limit, offset int) ([]*entity.Expense, error)
	ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]*entity.Expense, error)

	// PendingForApprover lists the pending expenses the given user is
	// currently eligible to decide on.
	PendingForApprover(ctx context.Context, companyID, approverID string) ([]*entity.Expense, error)
}

type expenseServiceImpl struct {
	expenses  port.ExpenseReader
	creator   port.ExpenseRepository
	decisions port.DecisionRepository
	rules     port.RuleRepository
	history   port.HistoryReader
	evaluator Evaluator
	logger    Logger
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	expenses port.ExpenseReader,
	creator port.ExpenseRepository,
	decisions port.DecisionRepository,
	rules port.RuleRepository,
	history port.HistoryReader,
	evaluator Evaluator,
	logger Logger,
) ExpenseService {
	return &expenseServiceImpl{
		expenses:  expenses,
		creator:   creator,
		decisions: decisions,
		rules:     rules,
		history:   history,
		evaluator: evaluator,
		logger:    logger,
	}
}

// CreateDraft stores a new expense in Draft status
func (s *expenseServiceImpl) CreateDraft(ctx context.Context, input CreateExpenseInput) (*entity.Expense, error) {
	if input.Category == "" {
		return nil, fmt.Errorf("category is required")
	}
	if input.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if input.Currency == "" {
		return nil, fmt.Errorf("currency is required")
	}
	if input.ExpenseDate.IsZero() {
		input.ExpenseDate = time.Now()
	}

	exp := &entity.Expense{
		ID:          uuid.NewString(),
		CompanyID:   input.CompanyID,
		SubmitterID: input.SubmitterID,
		Category:    input.Category,
		Description: input.Description,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		ExpenseDate: input.ExpenseDate,
		Status:      entity.StatusDraft,
	}

	if err := s.creator.Create(nil, exp); err != nil {
		return nil, err
	}

	s.logger.Info("Draft expense created",
		"expense_id", exp.ID,
		"submitter_id", exp.SubmitterID,
		"amount_cents", exp.AmountCents)
	return exp, nil
}

// Get retrieves an expense with its decisions and transition trail
func (s *expenseServiceImpl) Get(ctx context.Context, id string) (*ExpenseDetail, error) {
	exp, err := s.expenses.GetByID(nil, id)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: expense %s", domainwf.ErrNotFound, id)
	}

	decisions, err := s.decisions.ListByExpense(nil, id)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByExpense(id)
	if err != nil {
		return nil, err
	}

	return &ExpenseDetail{Expense: exp, Decisions: decisions, History: history}, nil
}

// ListByCompany lists company expenses, optionally filtered by status
func (s *expenseServiceImpl) ListByCompany(ctx context.Context, companyID, status string, limit, offset int) ([]*entity.Expense, error) {
	return s.expenses.ListByCompany(companyID, status, normalizeLimit(limit), offset)
}

// ListBySubmitter lists a user's own expenses
func (s *expenseServiceImpl) ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]*entity.Expense, error) {
	return s.expenses.ListBySubmitter(submitterID, normalizeLimit(limit), offset)
}

// PendingForApprover re-evaluates each pending expense of the company
// and keeps those where the user is in the eligible set. Misconfigured
// expenses are skipped rather than failing the whole listing.
func (s *expenseServiceImpl) PendingForApprover(ctx context.Context, companyID, approverID string) ([]*entity.Expense, error) {
	pending, err := s.expenses.ListPendingByCompany(companyID)
	if err != nil {
		return nil, err
	}

	var out []*entity.Expense
	for _, exp := range pending {
		r, err := s.rules.GetByID(nil, exp.RuleID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}

		ledger, err := s.decisions.ListByExpense(nil, exp.ID)
		if err != nil {
			return nil, err
		}

		result, err := s.evaluator.Evaluate(ctx, r, exp, ledger)
		if err != nil {
			s.logger.Error("Skipping unevaluable pending expense",
				"expense_id", exp.ID, "error", err)
			continue
		}

		for _, eligible := range result.Eligible {
			if eligible == approverID {
				out = append(out, exp)
				break
			}
		}
	}

	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
