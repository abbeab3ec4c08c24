package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/internal/domain/rule"
)

type mockExpenseReader struct {
	getByIDFn     func(tx *sql.Tx, id string) (*entity.Expense, error)
	listPendingFn func(companyID string) ([]*entity.Expense, error)
}

func (m *mockExpenseReader) GetByID(tx *sql.Tx, id string) (*entity.Expense, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(tx, id)
	}
	return nil, nil
}

func (m *mockExpenseReader) ListByCompany(companyID, status string, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (m *mockExpenseReader) ListBySubmitter(submitterID string, limit, offset int) ([]*entity.Expense, error) {
	return nil, nil
}

func (m *mockExpenseReader) ListPendingByCompany(companyID string) ([]*entity.Expense, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(companyID)
	}
	return nil, nil
}

type mockExpenseWriter struct {
	createFn func(tx *sql.Tx, exp *entity.Expense) error
}

func (m *mockExpenseWriter) Create(tx *sql.Tx, exp *entity.Expense) error {
	if m.createFn != nil {
		return m.createFn(tx, exp)
	}
	return nil
}

func (m *mockExpenseWriter) GetByID(tx *sql.Tx, id string) (*entity.Expense, error) { return nil, nil }

func (m *mockExpenseWriter) MarkSubmitted(tx *sql.Tx, id, ruleID string, expectedVersion int64, submittedAt time.Time) (bool, error) {
	return false, nil
}

func (m *mockExpenseWriter) UpdateStatusVersion(tx *sql.Tx, id, newStatus string, expectedVersion int64, decidedAt *time.Time) (bool, error) {
	return false, nil
}

func (m *mockExpenseWriter) SetFlagged(tx *sql.Tx, id, reason string) error { return nil }

type mockDecisionReader struct {
	listFn func(tx *sql.Tx, expenseID string) ([]*entity.ApprovalDecision, error)
}

func (m *mockDecisionReader) Append(tx *sql.Tx, d *entity.ApprovalDecision) error { return nil }

func (m *mockDecisionReader) ListByExpense(tx *sql.Tx, expenseID string) ([]*entity.ApprovalDecision, error) {
	if m.listFn != nil {
		return m.listFn(tx, expenseID)
	}
	return nil, nil
}

func (m *mockDecisionReader) GetByExpenseAndApprover(tx *sql.Tx, expenseID, approverID string) (*entity.ApprovalDecision, error) {
	return nil, nil
}

func (m *mockDecisionReader) CountByExpense(tx *sql.Tx, expenseID string) (int, error) {
	return 0, nil
}

type mockHistoryReader struct{}

func (m *mockHistoryReader) ListByExpense(expenseID string) ([]*entity.TransitionHistory, error) {
	return nil, nil
}

type emptyResolver struct{}

func (emptyResolver) ManagerOf(ctx context.Context, userID string) (string, error) { return "", nil }
func (emptyResolver) UsersWithRole(ctx context.Context, companyID, role string) ([]string, error) {
	return nil, nil
}

func TestExpenseService_CreateDraft(t *testing.T) {
	var created *entity.Expense
	writer := &mockExpenseWriter{
		createFn: func(tx *sql.Tx, exp *entity.Expense) error {
			created = exp
			return nil
		},
	}

	svc := NewExpenseService(&mockExpenseReader{}, writer, &mockDecisionReader{},
		&mockRuleRepo{}, &mockHistoryReader{}, rule.NewEvaluator(emptyResolver{}), nopLogger{})

	exp, err := svc.CreateDraft(context.Background(), CreateExpenseInput{
		CompanyID:   "co-1",
		SubmitterID: "employee-1",
		Category:    "travel",
		AmountCents: 4200,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, entity.StatusDraft, exp.Status)
	assert.NotEmpty(t, exp.ID)
	assert.False(t, exp.ExpenseDate.IsZero())
}

func TestExpenseService_CreateDraft_Validation(t *testing.T) {
	svc := NewExpenseService(&mockExpenseReader{}, &mockExpenseWriter{}, &mockDecisionReader{},
		&mockRuleRepo{}, &mockHistoryReader{}, rule.NewEvaluator(emptyResolver{}), nopLogger{})

	tests := []struct {
		name  string
		input CreateExpenseInput
	}{
		{"missing category", CreateExpenseInput{AmountCents: 100, Currency: "USD"}},
		{"zero amount", CreateExpenseInput{Category: "travel", Currency: "USD"}},
		{"negative amount", CreateExpenseInput{Category: "travel", AmountCents: -5, Currency: "USD"}},
		{"missing currency", CreateExpenseInput{Category: "travel", AmountCents: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDraft(context.Background(), tt.input)
			assert.Error(t, err)
		})
	}
}

func TestExpenseService_PendingForApprover(t *testing.T) {
	userA, userB := "manager-a", "manager-b"

	ruleFor := func(id, approver string) *entity.ApprovalRule {
		return &entity.ApprovalRule{
			ID: id, CompanyID: "co-1", Kind: entity.RuleSequential, Active: true,
			Steps: []*entity.ApprovalStep{
				{ID: id + "-s1", RuleID: id, Position: 1, ApproverUserID: &approver},
			},
		}
	}
	rules := map[string]*entity.ApprovalRule{
		"rule-a": ruleFor("rule-a", userA),
		"rule-b": ruleFor("rule-b", userB),
	}

	reader := &mockExpenseReader{
		listPendingFn: func(companyID string) ([]*entity.Expense, error) {
			return []*entity.Expense{
				{ID: "exp-1", CompanyID: "co-1", Status: entity.StatusPending, RuleID: "rule-a"},
				{ID: "exp-2", CompanyID: "co-1", Status: entity.StatusPending, RuleID: "rule-b"},
				{ID: "exp-3", CompanyID: "co-1", Status: entity.StatusPending, RuleID: "rule-missing"},
			}, nil
		},
	}
	ruleRepo := &mockRuleRepo{
		getByIDFn: func(tx *sql.Tx, id string) (*entity.ApprovalRule, error) {
			return rules[id], nil
		},
	}

	svc := NewExpenseService(reader, &mockExpenseWriter{}, &mockDecisionReader{},
		ruleRepo, &mockHistoryReader{}, rule.NewEvaluator(emptyResolver{}), nopLogger{})

	pending, err := svc.PendingForApprover(context.Background(), "co-1", userA)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "exp-1", pending[0].ID)
}

func TestExpenseService_Get_NotFound(t *testing.T) {
	svc := NewExpenseService(&mockExpenseReader{}, &mockExpenseWriter{}, &mockDecisionReader{},
		&mockRuleRepo{}, &mockHistoryReader{}, rule.NewEvaluator(emptyResolver{}), nopLogger{})

	_, err := svc.Get(context.Background(), "missing")
	assert.Error(t, err)
}
