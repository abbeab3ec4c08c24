package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/dispatcher"
	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/internal/domain/event"
	"github.com/expensio/expenseflow/internal/domain/rule"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
	"github.com/expensio/expenseflow/internal/repository"
)

// Evaluator computes rule outcomes from the decision ledger
type Evaluator interface {
	Evaluate(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, decisions []*entity.ApprovalDecision) (rule.Result, error)
}

// DecisionReceipt is returned by RecordDecision
type DecisionReceipt struct {
	ExpenseID string   `json:"expense_id"`
	Status    string   `json:"status"`
	Eligible  []string `json:"eligible,omitempty"`

	// Idempotent is set when the approver had already recorded the same
	// outcome and nothing changed.
	Idempotent bool `json:"idempotent,omitempty"`
}

// errRetry signals that the optimistic version check lost the race and
// the whole transaction should run again.
var errRetry = errors.New("optimistic version conflict")

// Controller serializes all mutating workflow operations per expense.
// Writes go through a per-expense mutex plus a version compare-and-swap
// on the expenses row, so a lost race is retried a bounded number of
// times before surfacing ErrConcurrencyConflict.
type Controller struct {
	tx        port.TxRunner
	expenses  port.ExpenseRepository
	decisions port.DecisionRepository
	rules     port.RuleRepository
	history   port.HistoryRepository
	evaluator Evaluator

	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger

	locks      *expenseLocks
	maxRetries int
	retryDelay time.Duration
}

// ControllerOption configures the workflow controller
type ControllerOption func(*Controller)

// WithDispatcher sets the event dispatcher for emitting transition events
func WithDispatcher(d dispatcher.Dispatcher) ControllerOption {
	return func(c *Controller) {
		c.dispatcher = d
	}
}

// WithRetries sets the bounded retry policy for version conflicts
func WithRetries(max int, delay time.Duration) ControllerOption {
	return func(c *Controller) {
		c.maxRetries = max
		c.retryDelay = delay
	}
}

// NewController creates a new workflow controller
func NewController(
	tx port.TxRunner,
	expenses port.ExpenseRepository,
	decisions port.DecisionRepository,
	rules port.RuleRepository,
	history port.HistoryRepository,
	evaluator Evaluator,
	logger *zap.Logger,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		tx:         tx,
		expenses:   expenses,
		decisions:  decisions,
		rules:      rules,
		history:    history,
		evaluator:  evaluator,
		logger:     logger,
		locks:      newExpenseLocks(),
		maxRetries: 3,
		retryDelay: 10 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit moves a draft expense to Pending, snapshotting the company's
// matching active rule version onto it. When the matched rule resolves
// to zero eligible approvers the submit still commits, but the expense
// is flagged for admin attention and ErrConfiguration is returned.
func (c *Controller) Submit(ctx context.Context, expenseID, actorID string) error {
	unlock := c.locks.Lock(expenseID)
	defer unlock()

	var flagReason string

	for attempt := 0; ; attempt++ {
		var oldStatus string

		err := c.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
			exp, err := c.expenses.GetByID(tx, expenseID)
			if err != nil {
				return err
			}
			if exp == nil {
				return fmt.Errorf("%w: expense %s", domainwf.ErrNotFound, expenseID)
			}
			if exp.SubmitterID != actorID {
				return fmt.Errorf("%w: only the submitter can submit expense %s", domainwf.ErrNotEligible, expenseID)
			}

			machine := domainwf.NewExpenseMachine(domainwf.State(exp.Status), nil)
			if !machine.CanFire(domainwf.TriggerSubmit) {
				return fmt.Errorf("%w: cannot submit expense in status %s", domainwf.ErrInvalidState, exp.Status)
			}
			oldStatus = exp.Status

			matched, err := c.matchRule(tx, exp)
			if err != nil {
				return err
			}

			ok, err := c.expenses.MarkSubmitted(tx, exp.ID, matched.ID, exp.Version, time.Now())
			if err != nil {
				return err
			}
			if !ok {
				return errRetry
			}

			if err := c.history.Append(tx, &entity.TransitionHistory{
				ExpenseID:  exp.ID,
				FromStatus: oldStatus,
				ToStatus:   entity.StatusPending,
				ActorID:    actorID,
				ActionType: entity.ActionSubmit,
			}); err != nil {
				return err
			}

			// Probe the rule against an empty ledger so misconfiguration
			// surfaces at submission rather than at the first decision.
			exp.RuleID = matched.ID
			if _, evalErr := c.evaluator.Evaluate(ctx, matched, exp, nil); evalErr != nil {
				if errors.Is(evalErr, rule.ErrMalformedRule) {
					flagReason = evalErr.Error()
					return nil
				}
				return evalErr
			}

			return nil
		})

		if errors.Is(err, errRetry) {
			if attempt+1 >= c.maxRetries {
				return fmt.Errorf("%w: submit expense %s", domainwf.ErrConcurrencyConflict, expenseID)
			}
			time.Sleep(c.retryDelay)
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	if flagReason != "" {
		if err := c.expenses.SetFlagged(nil, expenseID, flagReason); err != nil {
			return err
		}
		c.logger.Warn("Expense submitted with unresolvable rule, flagged",
			zap.String("expense_id", expenseID),
			zap.String("reason", flagReason))
		c.emit(ctx, event.TypeExpenseFlagged, expenseID, entity.StatusPending, entity.StatusPending, flagReason)
		return fmt.Errorf("%w: %s", domainwf.ErrConfiguration, flagReason)
	}

	c.emit(ctx, event.TypeExpenseSubmitted, expenseID, entity.StatusDraft, entity.StatusPending, "")
	return nil
}

// RecordDecision appends an approver's verdict to the ledger,
// re-evaluates the rule and applies any resulting status transition,
// all in one transaction. Checks run in order: status, eligibility,
// duplicate. A repeat of an identical decision is an idempotent no-op.
func (c *Controller) RecordDecision(ctx context.Context, expenseID, approverID, outcome, comment string) (*DecisionReceipt, error) {
	if outcome != entity.OutcomeApprove && outcome != entity.OutcomeReject {
		return nil, fmt.Errorf("invalid decision outcome %q", outcome)
	}

	unlock := c.locks.Lock(expenseID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		receipt, flagReason, err := c.recordDecisionOnce(ctx, expenseID, approverID, outcome, comment)

		if errors.Is(err, errRetry) {
			if attempt+1 >= c.maxRetries {
				return nil, fmt.Errorf("%w: decision on expense %s", domainwf.ErrConcurrencyConflict, expenseID)
			}
			time.Sleep(c.retryDelay)
			continue
		}
		if flagReason != "" {
			// The transaction rolled back; freeze the expense Pending
			// and record why, then surface the configuration error.
			if ferr := c.expenses.SetFlagged(nil, expenseID, flagReason); ferr != nil {
				c.logger.Error("Failed to flag misconfigured expense",
					zap.String("expense_id", expenseID), zap.Error(ferr))
			}
			c.emit(ctx, event.TypeExpenseFlagged, expenseID, entity.StatusPending, entity.StatusPending, flagReason)
			return nil, fmt.Errorf("%w: %s", domainwf.ErrConfiguration, flagReason)
		}
		if err != nil {
			return nil, err
		}
		return receipt, nil
	}
}

// recordDecisionOnce runs a single transactional attempt. It returns a
// non-empty flagReason when rule evaluation failed with a configuration
// error, after rolling the attempt back.
func (c *Controller) recordDecisionOnce(ctx context.Context, expenseID, approverID, outcome, comment string) (receipt *DecisionReceipt, flagReason string, err error) {
	var oldStatus, newStatus string

	err = c.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		exp, err := c.expenses.GetByID(tx, expenseID)
		if err != nil {
			return err
		}
		if exp == nil {
			return fmt.Errorf("%w: expense %s", domainwf.ErrNotFound, expenseID)
		}
		if exp.Status != entity.StatusPending {
			return fmt.Errorf("%w: expense %s is %s, decisions require PENDING", domainwf.ErrInvalidState, expenseID, exp.Status)
		}
		oldStatus = exp.Status

		r, err := c.rules.GetByID(tx, exp.RuleID)
		if err != nil {
			return err
		}
		if r == nil {
			flagReason = fmt.Sprintf("rule snapshot %s not found", exp.RuleID)
			return fmt.Errorf("%w: %s", domainwf.ErrConfiguration, flagReason)
		}

		ledger, err := c.decisions.ListByExpense(tx, expenseID)
		if err != nil {
			return err
		}

		// Eligibility is recomputed against the live org on every call.
		current, err := c.evaluator.Evaluate(ctx, r, exp, ledger)
		if err != nil {
			if errors.Is(err, rule.ErrMalformedRule) {
				flagReason = err.Error()
			}
			return err
		}
		if !contains(current.Eligible, approverID) {
			// A repeated identical decision from someone who already
			// decided is a no-op, not an eligibility failure.
			if prior := findDecision(ledger, approverID); prior != nil {
				if prior.Outcome == outcome {
					receipt = &DecisionReceipt{
						ExpenseID:  expenseID,
						Status:     exp.Status,
						Eligible:   current.Eligible,
						Idempotent: true,
					}
					return nil
				}
				return fmt.Errorf("%w: approver %s already decided %s on expense %s",
					domainwf.ErrDuplicateDecision, approverID, prior.Outcome, expenseID)
			}
			return fmt.Errorf("%w: approver %s may not decide on expense %s", domainwf.ErrNotEligible, approverID, expenseID)
		}

		decision := &entity.ApprovalDecision{
			ID:         uuid.NewString(),
			ExpenseID:  expenseID,
			ApproverID: approverID,
			Outcome:    outcome,
			Comment:    comment,
			DecidedAt:  time.Now(),
		}
		if err := c.decisions.Append(tx, decision); err != nil {
			if errors.Is(err, repository.ErrDecisionExists) {
				// Serialized by the lock, so a constraint hit here means
				// another process wrote between our read and write.
				return errRetry
			}
			return err
		}

		result, err := c.evaluator.Evaluate(ctx, r, exp, append(ledger, decision))
		if err != nil {
			if errors.Is(err, rule.ErrMalformedRule) {
				flagReason = err.Error()
			}
			return err
		}

		receipt = &DecisionReceipt{
			ExpenseID: expenseID,
			Status:    exp.Status,
			Eligible:  result.Eligible,
		}

		var trigger domainwf.Trigger
		switch result.Outcome {
		case rule.OutcomeSatisfied:
			trigger = domainwf.TriggerApprove
		case rule.OutcomeViolated:
			trigger = domainwf.TriggerReject
		default:
			return nil
		}

		machine := domainwf.NewExpenseMachine(domainwf.State(exp.Status), nil)
		if err := machine.Fire(ctx, trigger); err != nil {
			return err
		}
		newStatus = machine.State().String()

		now := time.Now()
		ok, err := c.expenses.UpdateStatusVersion(tx, expenseID, newStatus, exp.Version, &now)
		if err != nil {
			return err
		}
		if !ok {
			return errRetry
		}

		if err := c.history.Append(tx, &entity.TransitionHistory{
			ExpenseID:  expenseID,
			FromStatus: oldStatus,
			ToStatus:   newStatus,
			ActorID:    approverID,
			ActionType: entity.ActionDecision,
			Note:       outcome,
		}); err != nil {
			return err
		}

		receipt.Status = newStatus
		receipt.Eligible = nil
		return nil
	})

	if err != nil || receipt == nil {
		return nil, flagReason, err
	}

	if receipt.Idempotent {
		return receipt, "", nil
	}

	c.emit(ctx, event.TypeDecisionRecorded, expenseID, oldStatus, receipt.Status, outcome)
	if newStatus != "" {
		// Exactly one transition event per committed transition: only
		// the writer that won the version CAS reaches this point.
		evtType := event.TypeExpenseApproved
		if newStatus == entity.StatusRejected {
			evtType = event.TypeExpenseRejected
		}
		c.emit(ctx, evtType, expenseID, oldStatus, newStatus, "")
	}

	return receipt, "", nil
}

// Withdraw returns a pending expense to Draft. Allowed only for the
// submitter and only while the decision ledger is still empty.
func (c *Controller) Withdraw(ctx context.Context, expenseID, submitterID string) error {
	unlock := c.locks.Lock(expenseID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		var oldStatus string

		err := c.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
			exp, err := c.expenses.GetByID(tx, expenseID)
			if err != nil {
				return err
			}
			if exp == nil {
				return fmt.Errorf("%w: expense %s", domainwf.ErrNotFound, expenseID)
			}
			if exp.SubmitterID != submitterID {
				return fmt.Errorf("%w: only the submitter can withdraw expense %s", domainwf.ErrNotEligible, expenseID)
			}
			oldStatus = exp.Status

			count, err := c.decisions.CountByExpense(tx, expenseID)
			if err != nil {
				return err
			}

			machine := domainwf.NewExpenseMachine(domainwf.State(exp.Status), func(ctx context.Context) bool {
				return count == 0
			})
			if err := machine.Fire(ctx, domainwf.TriggerWithdraw); err != nil {
				if errors.Is(err, domainwf.ErrGuardFailed) {
					return fmt.Errorf("%w: expense %s already has recorded decisions", domainwf.ErrAlreadyInProgress, expenseID)
				}
				return fmt.Errorf("%w: cannot withdraw expense in status %s", domainwf.ErrInvalidState, exp.Status)
			}

			ok, err := c.expenses.UpdateStatusVersion(tx, expenseID, machine.State().String(), exp.Version, nil)
			if err != nil {
				return err
			}
			if !ok {
				return errRetry
			}

			return c.history.Append(tx, &entity.TransitionHistory{
				ExpenseID:  expenseID,
				FromStatus: oldStatus,
				ToStatus:   machine.State().String(),
				ActorID:    submitterID,
				ActionType: entity.ActionWithdraw,
			})
		})

		if errors.Is(err, errRetry) {
			if attempt+1 >= c.maxRetries {
				return fmt.Errorf("%w: withdraw expense %s", domainwf.ErrConcurrencyConflict, expenseID)
			}
			time.Sleep(c.retryDelay)
			continue
		}
		if err != nil {
			return err
		}

		c.emit(ctx, event.TypeExpenseWithdrawn, expenseID, oldStatus, entity.StatusDraft, "")
		return nil
	}
}

// matchRule finds the newest active rule version whose scope covers the
// expense. No match is a configuration error.
func (c *Controller) matchRule(tx *sql.Tx, exp *entity.Expense) (*entity.ApprovalRule, error) {
	rules, err := c.rules.ListActiveByCompany(tx, exp.CompanyID)
	if err != nil {
		return nil, err
	}

	for _, r := range rules {
		if r.Matches(exp.Category, exp.AmountCents) {
			return r, nil
		}
	}

	return nil, fmt.Errorf("%w: no active rule matches expense %s (category %s)",
		domainwf.ErrConfiguration, exp.ID, exp.Category)
}

func (c *Controller) emit(ctx context.Context, t event.Type, expenseID, oldStatus, newStatus, note string) {
	if c.dispatcher == nil {
		return
	}

	payload := map[string]interface{}{
		"old_status": oldStatus,
		"new_status": newStatus,
	}
	if note != "" {
		payload["note"] = note
	}

	c.dispatcher.DispatchAsync(ctx, event.NewEvent(t, expenseID, "", payload))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func findDecision(ledger []*entity.ApprovalDecision, approverID string) *entity.ApprovalDecision {
	for _, d := range ledger {
		if d.ApproverID == approverID {
			return d
		}
	}
	return nil
}
