package workflow

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/dispatcher"
	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/internal/domain/event"
	"github.com/expensio/expenseflow/internal/domain/rule"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
)

// memStore is a shared in-memory backing store for the repository
// mocks. The fake transaction runner snapshots it before each
// transaction and restores it on error, mimicking a rollback.
type memStore struct {
	mu        sync.Mutex
	expenses  map[string]*entity.Expense
	decisions []*entity.ApprovalDecision
	rules     map[string]*entity.ApprovalRule
	ruleOrder []string
	history   []*entity.TransitionHistory
}

func newMemStore() *memStore {
	return &memStore{
		expenses: make(map[string]*entity.Expense),
		rules:    make(map[string]*entity.ApprovalRule),
	}
}

type memSnapshot struct {
	expenses  map[string]entity.Expense
	decisions []*entity.ApprovalDecision
	history   []*entity.TransitionHistory
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memSnapshot{
		expenses:  make(map[string]entity.Expense, len(s.expenses)),
		decisions: append([]*entity.ApprovalDecision{}, s.decisions...),
		history:   append([]*entity.TransitionHistory{}, s.history...),
	}
	for id, exp := range s.expenses {
		snap.expenses[id] = *exp
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expenses = make(map[string]*entity.Expense, len(snap.expenses))
	for id, exp := range snap.expenses {
		cp := exp
		s.expenses[id] = &cp
	}
	s.decisions = snap.decisions
	s.history = snap.history
}

type memTxRunner struct {
	store *memStore
}

func (t *memTxRunner) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memExpenseRepo struct {
	store *memStore

	// Optional override to simulate lost version races
	updateStatusVersionFn func(id, newStatus string, expectedVersion int64) (bool, error)
}

func (m *memExpenseRepo) Create(tx *sql.Tx, exp *entity.Expense) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	cp := *exp
	m.store.expenses[exp.ID] = &cp
	return nil
}

func (m *memExpenseRepo) GetByID(tx *sql.Tx, id string) (*entity.Expense, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	exp, ok := m.store.expenses[id]
	if !ok {
		return nil, nil
	}
	cp := *exp
	return &cp, nil
}

func (m *memExpenseRepo) MarkSubmitted(tx *sql.Tx, id, ruleID string, expectedVersion int64, submittedAt time.Time) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	exp, ok := m.store.expenses[id]
	if !ok || exp.Version != expectedVersion {
		return false, nil
	}
	exp.Status = entity.StatusPending
	exp.RuleID = ruleID
	exp.SubmittedAt = &submittedAt
	exp.FlaggedReason = nil
	exp.Version++
	return true, nil
}

func (m *memExpenseRepo) UpdateStatusVersion(tx *sql.Tx, id, newStatus string, expectedVersion int64, decidedAt *time.Time) (bool, error) {
	if m.updateStatusVersionFn != nil {
		return m.updateStatusVersionFn(id, newStatus, expectedVersion)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	exp, ok := m.store.expenses[id]
	if !ok || exp.Version != expectedVersion {
		return false, nil
	}
	exp.Status = newStatus
	exp.DecidedAt = decidedAt
	exp.Version++
	return true, nil
}

func (m *memExpenseRepo) SetFlagged(tx *sql.Tx, id, reason string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if exp, ok := m.store.expenses[id]; ok {
		exp.FlaggedReason = &reason
	}
	return nil
}

type memDecisionRepo struct {
	store *memStore
}

func (m *memDecisionRepo) Append(tx *sql.Tx, d *entity.ApprovalDecision) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, existing := range m.store.decisions {
		if existing.ExpenseID == d.ExpenseID && existing.ApproverID == d.ApproverID {
			return errors.New("decision already recorded for this approver")
		}
	}
	m.store.decisions = append(m.store.decisions, d)
	return nil
}

func (m *memDecisionRepo) ListByExpense(tx *sql.Tx, expenseID string) ([]*entity.ApprovalDecision, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*entity.ApprovalDecision
	for _, d := range m.store.decisions {
		if d.ExpenseID == expenseID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDecisionRepo) GetByExpenseAndApprover(tx *sql.Tx, expenseID, approverID string) (*entity.ApprovalDecision, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, d := range m.store.decisions {
		if d.ExpenseID == expenseID && d.ApproverID == approverID {
			return d, nil
		}
	}
	return nil, nil
}

func (m *memDecisionRepo) CountByExpense(tx *sql.Tx, expenseID string) (int, error) {
	list, _ := m.ListByExpense(tx, expenseID)
	return len(list), nil
}

type memRuleRepo struct {
	store *memStore
}

func (m *memRuleRepo) GetByID(tx *sql.Tx, id string) (*entity.ApprovalRule, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.store.rules[id], nil
}

func (m *memRuleRepo) ListActiveByCompany(tx *sql.Tx, companyID string) ([]*entity.ApprovalRule, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*entity.ApprovalRule
	for _, id := range m.store.ruleOrder {
		r := m.store.rules[id]
		if r.CompanyID == companyID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

type memHistoryRepo struct {
	store *memStore
}

func (m *memHistoryRepo) Append(tx *sql.Tx, h *entity.TransitionHistory) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	h.ID = int64(len(m.store.history) + 1)
	m.store.history = append(m.store.history, h)
	return nil
}

type staticResolver struct {
	managers map[string]string
	roles    map[string][]string
}

func (r *staticResolver) ManagerOf(ctx context.Context, userID string) (string, error) {
	return r.managers[userID], nil
}

func (r *staticResolver) UsersWithRole(ctx context.Context, companyID, role string) ([]string, error) {
	return r.roles[role], nil
}

// fixture wires a controller over the in-memory store with the real
// evaluator and a recording dispatcher.
type fixture struct {
	store      *memStore
	expenses   *memExpenseRepo
	controller *Controller
	dispatcher dispatcher.Dispatcher

	eventMu sync.Mutex
	events  []*event.Event
}

func newFixture(t *testing.T, resolver rule.Resolver) *fixture {
	t.Helper()

	store := newMemStore()
	f := &fixture{
		store:      store,
		expenses:   &memExpenseRepo{store: store},
		dispatcher: dispatcher.NewDispatcher(),
	}

	record := func(ctx context.Context, evt *event.Event) error {
		f.eventMu.Lock()
		defer f.eventMu.Unlock()
		f.events = append(f.events, evt)
		return nil
	}
	for _, typ := range []event.Type{
		event.TypeExpenseSubmitted, event.TypeExpenseApproved, event.TypeExpenseRejected,
		event.TypeExpenseWithdrawn, event.TypeExpenseFlagged, event.TypeDecisionRecorded,
	} {
		f.dispatcher.Subscribe(typ, record)
	}

	if resolver == nil {
		resolver = &staticResolver{}
	}

	f.controller = NewController(
		&memTxRunner{store: store},
		f.expenses,
		&memDecisionRepo{store: store},
		&memRuleRepo{store: store},
		&memHistoryRepo{store: store},
		rule.NewEvaluator(resolver),
		zap.NewNop(),
		WithDispatcher(f.dispatcher),
		WithRetries(3, time.Millisecond),
	)
	return f
}

func (f *fixture) addRule(r *entity.ApprovalRule) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.rules[r.ID] = r
	f.store.ruleOrder = append(f.store.ruleOrder, r.ID)
}

func (f *fixture) addExpense(exp *entity.Expense) {
	cp := *exp
	f.store.expenses[exp.ID] = &cp
}

func (f *fixture) expense(t *testing.T, id string) *entity.Expense {
	t.Helper()
	exp, err := f.expenses.GetByID(nil, id)
	require.NoError(t, err)
	require.NotNil(t, exp)
	return exp
}

// eventsOfType waits for async dispatch to settle, then filters
func (f *fixture) eventsOfType(typ event.Type) []*event.Event {
	_ = f.dispatcher.Close()

	f.eventMu.Lock()
	defer f.eventMu.Unlock()
	var out []*event.Event
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func strRef(s string) *string { return &s }

func sequentialRule(id string, approvers ...string) *entity.ApprovalRule {
	r := &entity.ApprovalRule{
		ID:        id,
		CompanyID: "co-1",
		Name:      "two step",
		Version:   1,
		Kind:      entity.RuleSequential,
		Active:    true,
	}
	for i, a := range approvers {
		r.Steps = append(r.Steps, &entity.ApprovalStep{
			ID: id + "-s" + a, RuleID: id, Position: i + 1, ApproverUserID: strRef(a),
		})
	}
	return r
}

func draftExpense(id string) *entity.Expense {
	return &entity.Expense{
		ID:          id,
		CompanyID:   "co-1",
		SubmitterID: "employee-1",
		Category:    "travel",
		AmountCents: 12500,
		Currency:    "USD",
		ExpenseDate: time.Now(),
		Status:      entity.StatusDraft,
	}
}

func TestController_Submit(t *testing.T) {
	f := newFixture(t, nil)
	f.addRule(sequentialRule("rule-1", "manager-a", "director-b"))
	f.addExpense(draftExpense("exp-1"))

	err := f.controller.Submit(context.Background(), "exp-1", "employee-1")
	require.NoError(t, err)

	exp := f.expense(t, "exp-1")
	assert.Equal(t, entity.StatusPending, exp.Status)
	assert.Equal(t, "rule-1", exp.RuleID)
	assert.NotNil(t, exp.SubmittedAt)
	assert.Equal(t, int64(1), exp.Version)

	require.Len(t, f.store.history, 1)
	assert.Equal(t, entity.ActionSubmit, f.store.history[0].ActionType)

	assert.Len(t, f.eventsOfType(event.TypeExpenseSubmitted), 1)
}

func TestController_Submit_Errors(t *testing.T) {
	t.Run("not the submitter", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a"))
		f.addExpense(draftExpense("exp-1"))

		err := f.controller.Submit(context.Background(), "exp-1", "someone-else")
		assert.ErrorIs(t, err, domainwf.ErrNotEligible)
		assert.Equal(t, entity.StatusDraft, f.expense(t, "exp-1").Status)
	})

	t.Run("already pending", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a"))
		exp := draftExpense("exp-1")
		exp.Status = entity.StatusPending
		f.addExpense(exp)

		err := f.controller.Submit(context.Background(), "exp-1", "employee-1")
		assert.ErrorIs(t, err, domainwf.ErrInvalidState)
	})

	t.Run("unknown expense", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.controller.Submit(context.Background(), "missing", "employee-1")
		assert.ErrorIs(t, err, domainwf.ErrNotFound)
	})

	t.Run("no matching rule", func(t *testing.T) {
		f := newFixture(t, nil)
		r := sequentialRule("rule-1", "manager-a")
		r.Category = strRef("meals")
		f.addRule(r)
		f.addExpense(draftExpense("exp-1"))

		err := f.controller.Submit(context.Background(), "exp-1", "employee-1")
		assert.ErrorIs(t, err, domainwf.ErrConfiguration)
		assert.Equal(t, entity.StatusDraft, f.expense(t, "exp-1").Status)
	})
}

func TestController_Submit_MalformedRuleFlags(t *testing.T) {
	f := newFixture(t, nil)

	// Role step with nobody holding the role resolves to zero approvers.
	r := &entity.ApprovalRule{
		ID: "rule-1", CompanyID: "co-1", Name: "finance", Version: 1,
		Kind: entity.RuleSequential, Active: true,
		Steps: []*entity.ApprovalStep{
			{ID: "s1", RuleID: "rule-1", Position: 1, ApproverRole: strRef(entity.RoleFinance)},
		},
	}
	f.addRule(r)
	f.addExpense(draftExpense("exp-1"))

	err := f.controller.Submit(context.Background(), "exp-1", "employee-1")
	assert.ErrorIs(t, err, domainwf.ErrConfiguration)

	// The submit itself committed: the expense is frozen Pending and
	// flagged, never auto-approved.
	exp := f.expense(t, "exp-1")
	assert.Equal(t, entity.StatusPending, exp.Status)
	require.NotNil(t, exp.FlaggedReason)
	assert.Len(t, f.eventsOfType(event.TypeExpenseFlagged), 1)
}

func submitPending(t *testing.T, f *fixture, expenseID string) {
	t.Helper()
	require.NoError(t, f.controller.Submit(context.Background(), expenseID, "employee-1"))
}

func TestController_RecordDecision_SequentialApproval(t *testing.T) {
	f := newFixture(t, nil)
	f.addRule(sequentialRule("rule-1", "manager-a", "director-b"))
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	receipt, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, receipt.Status)
	assert.Equal(t, []string{"director-b"}, receipt.Eligible)

	receipt, err = f.controller.RecordDecision(context.Background(), "exp-1", "director-b", entity.OutcomeApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, receipt.Status)

	exp := f.expense(t, "exp-1")
	assert.Equal(t, entity.StatusApproved, exp.Status)
	assert.NotNil(t, exp.DecidedAt)

	assert.Len(t, f.eventsOfType(event.TypeExpenseApproved), 1)
}

func TestController_RecordDecision_RejectShortCircuits(t *testing.T) {
	f := newFixture(t, nil)
	f.addRule(sequentialRule("rule-1", "manager-a", "director-b"))
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	receipt, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeReject, "over budget")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, receipt.Status)

	assert.Equal(t, entity.StatusRejected, f.expense(t, "exp-1").Status)
	assert.Len(t, f.eventsOfType(event.TypeExpenseRejected), 1)
}

func TestController_RecordDecision_Quorum(t *testing.T) {
	f := newFixture(t, nil)
	r := &entity.ApprovalRule{
		ID: "rule-q", CompanyID: "co-1", Name: "finance vote", Version: 1,
		Kind: entity.RulePercentageQuorum, ThresholdPct: 60, Active: true,
		Steps: []*entity.ApprovalStep{
			{ID: "q1", RuleID: "rule-q", Position: 1, ApproverUserID: strRef("v1")},
			{ID: "q2", RuleID: "rule-q", Position: 2, ApproverUserID: strRef("v2")},
			{ID: "q3", RuleID: "rule-q", Position: 3, ApproverUserID: strRef("v3")},
		},
	}
	f.addRule(r)
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	receipt, err := f.controller.RecordDecision(context.Background(), "exp-1", "v1", entity.OutcomeApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, receipt.Status)
	assert.ElementsMatch(t, []string{"v2", "v3"}, receipt.Eligible)

	// Two of three approvals meet the 60% threshold (inclusive).
	receipt, err = f.controller.RecordDecision(context.Background(), "exp-1", "v2", entity.OutcomeApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, receipt.Status)
}

func TestController_RecordDecision_Errors(t *testing.T) {
	newPending := func(t *testing.T) *fixture {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a", "director-b"))
		f.addExpense(draftExpense("exp-1"))
		submitPending(t, f, "exp-1")
		return f
	}

	t.Run("terminal expense", func(t *testing.T) {
		f := newPending(t)
		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeReject, "")
		require.NoError(t, err)

		_, err = f.controller.RecordDecision(context.Background(), "exp-1", "director-b", entity.OutcomeApprove, "")
		assert.ErrorIs(t, err, domainwf.ErrInvalidState)
	})

	t.Run("not eligible leaves status unchanged", func(t *testing.T) {
		f := newPending(t)
		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "director-b", entity.OutcomeApprove, "")
		assert.ErrorIs(t, err, domainwf.ErrNotEligible)

		exp := f.expense(t, "exp-1")
		assert.Equal(t, entity.StatusPending, exp.Status)
		assert.Empty(t, f.store.decisions)
	})

	t.Run("duplicate identical decision is idempotent", func(t *testing.T) {
		f := newPending(t)
		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
		require.NoError(t, err)

		receipt, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
		require.NoError(t, err)
		assert.True(t, receipt.Idempotent)
		assert.Equal(t, entity.StatusPending, receipt.Status)

		count := 0
		for _, d := range f.store.decisions {
			if d.ApproverID == "manager-a" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("duplicate conflicting decision", func(t *testing.T) {
		f := newPending(t)
		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
		require.NoError(t, err)

		_, err = f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeReject, "changed my mind")
		assert.ErrorIs(t, err, domainwf.ErrDuplicateDecision)
	})

	t.Run("invalid outcome", func(t *testing.T) {
		f := newPending(t)
		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", "MAYBE", "")
		assert.Error(t, err)
	})
}

func TestController_RecordDecision_ConcurrentDecisions(t *testing.T) {
	f := newFixture(t, nil)
	r := &entity.ApprovalRule{
		ID: "rule-q", CompanyID: "co-1", Name: "vote", Version: 1,
		Kind: entity.RulePercentageQuorum, ThresholdPct: 40, Active: true,
		Steps: []*entity.ApprovalStep{
			{ID: "q1", RuleID: "rule-q", Position: 1, ApproverUserID: strRef("v1")},
			{ID: "q2", RuleID: "rule-q", Position: 2, ApproverUserID: strRef("v2")},
			{ID: "q3", RuleID: "rule-q", Position: 3, ApproverUserID: strRef("v3")},
			{ID: "q4", RuleID: "rule-q", Position: 4, ApproverUserID: strRef("v4")},
			{ID: "q5", RuleID: "rule-q", Position: 5, ApproverUserID: strRef("v5")},
		},
	}
	f.addRule(r)
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	var wg sync.WaitGroup
	for _, approver := range []string{"v1", "v2", "v3", "v4", "v5"} {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			// Late deciders legitimately find the expense already
			// terminal; only unexpected errors fail the test.
			_, err := f.controller.RecordDecision(context.Background(), "exp-1", a, entity.OutcomeApprove, "")
			if err != nil && !errors.Is(err, domainwf.ErrInvalidState) {
				t.Errorf("RecordDecision(%s) unexpected error: %v", a, err)
			}
		}(approver)
	}
	wg.Wait()

	assert.Equal(t, entity.StatusApproved, f.expense(t, "exp-1").Status)

	transitions := 0
	for _, h := range f.store.history {
		if h.ToStatus == entity.StatusApproved {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions, "exactly one writer may apply the terminal transition")
	assert.Len(t, f.eventsOfType(event.TypeExpenseApproved), 1)
}

func TestController_RecordDecision_VersionConflictExhaustsRetries(t *testing.T) {
	f := newFixture(t, nil)
	f.addRule(sequentialRule("rule-1", "manager-a"))
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	f.expenses.updateStatusVersionFn = func(id, newStatus string, expectedVersion int64) (bool, error) {
		return false, nil
	}

	_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
	assert.ErrorIs(t, err, domainwf.ErrConcurrencyConflict)
}

func TestController_Withdraw(t *testing.T) {
	t.Run("pending with empty ledger returns to draft", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a"))
		f.addExpense(draftExpense("exp-1"))
		submitPending(t, f, "exp-1")

		err := f.controller.Withdraw(context.Background(), "exp-1", "employee-1")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusDraft, f.expense(t, "exp-1").Status)
		assert.Len(t, f.eventsOfType(event.TypeExpenseWithdrawn), 1)
	})

	t.Run("blocked once a decision exists", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a", "director-b"))
		f.addExpense(draftExpense("exp-1"))
		submitPending(t, f, "exp-1")

		_, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
		require.NoError(t, err)

		err = f.controller.Withdraw(context.Background(), "exp-1", "employee-1")
		assert.ErrorIs(t, err, domainwf.ErrAlreadyInProgress)
		assert.Equal(t, entity.StatusPending, f.expense(t, "exp-1").Status)
	})

	t.Run("only the submitter may withdraw", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addRule(sequentialRule("rule-1", "manager-a"))
		f.addExpense(draftExpense("exp-1"))
		submitPending(t, f, "exp-1")

		err := f.controller.Withdraw(context.Background(), "exp-1", "manager-a")
		assert.ErrorIs(t, err, domainwf.ErrNotEligible)
	})

	t.Run("draft cannot be withdrawn", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addExpense(draftExpense("exp-1"))

		err := f.controller.Withdraw(context.Background(), "exp-1", "employee-1")
		assert.ErrorIs(t, err, domainwf.ErrInvalidState)
	})
}

func TestController_RecordDecision_SubmitterManagerStep(t *testing.T) {
	resolver := &staticResolver{managers: map[string]string{"employee-1": "manager-a"}}
	f := newFixture(t, resolver)

	r := &entity.ApprovalRule{
		ID: "rule-1", CompanyID: "co-1", Name: "manager approval", Version: 1,
		Kind: entity.RuleSequential, Active: true,
		Steps: []*entity.ApprovalStep{
			{ID: "s1", RuleID: "rule-1", Position: 1, ApproverRole: strRef(entity.StepRoleSubmitterManager)},
		},
	}
	f.addRule(r)
	f.addExpense(draftExpense("exp-1"))
	submitPending(t, f, "exp-1")

	receipt, err := f.controller.RecordDecision(context.Background(), "exp-1", "manager-a", entity.OutcomeApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, receipt.Status)
}
