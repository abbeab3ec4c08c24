package rule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// ErrMalformedRule is returned when a rule cannot be evaluated, for
// example when it resolves to zero eligible approvers. The caller must
// keep the expense Pending and flag it for admin attention; a malformed
// rule never auto-approves.
var ErrMalformedRule = errors.New("malformed approval rule")

// Outcome of evaluating a rule against the decision ledger.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeSatisfied Outcome = "SATISFIED"
	OutcomeViolated  Outcome = "VIOLATED"
)

// Result is the outcome of one evaluation together with the set of
// approvers currently allowed to decide.
type Result struct {
	Outcome  Outcome
	Eligible []string
}

// Evaluator computes rule outcomes. Evaluation is pure: it never writes
// anything and depends only on the rule snapshot, the ledger contents
// and the injected org resolver.
type Evaluator struct {
	org Resolver
}

// NewEvaluator creates an evaluator backed by the given org resolver.
func NewEvaluator(org Resolver) *Evaluator {
	return &Evaluator{org: org}
}

// Evaluate computes whether the rule is satisfied, violated or still
// pending for the expense, given every decision recorded so far.
func (e *Evaluator) Evaluate(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, decisions []*entity.ApprovalDecision) (Result, error) {
	if r == nil {
		return Result{}, fmt.Errorf("%w: expense %s has no rule snapshot", ErrMalformedRule, exp.ID)
	}

	byApprover := make(map[string]*entity.ApprovalDecision, len(decisions))
	for _, d := range decisions {
		byApprover[d.ApproverID] = d
	}

	switch r.Kind {
	case entity.RuleSequential:
		return e.evalSequential(ctx, r, exp, byApprover)
	case entity.RulePercentageQuorum:
		return e.evalQuorum(ctx, r, exp, byApprover)
	case entity.RuleSpecificApprover:
		return e.evalSpecific(r, byApprover)
	case entity.RuleHybrid:
		return e.evalHybrid(ctx, r, exp, byApprover)
	default:
		return Result{}, fmt.Errorf("%w: unknown rule kind %q", ErrMalformedRule, r.Kind)
	}
}

// evalSequential walks the steps in order. The first step without an
// approval is current; a reject at the current step violates the rule
// and short-circuits the rest.
func (e *Evaluator) evalSequential(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, byApprover map[string]*entity.ApprovalDecision) (Result, error) {
	steps := orderedSteps(r)
	if len(steps) == 0 {
		return Result{}, fmt.Errorf("%w: sequential rule %s has no steps", ErrMalformedRule, r.ID)
	}

	for _, step := range steps {
		approvers, err := e.resolveStep(ctx, r, exp, step)
		if err != nil {
			return Result{}, err
		}

		approved := false
		for _, a := range approvers {
			d, ok := byApprover[a]
			if !ok {
				continue
			}
			if d.Outcome == entity.OutcomeReject {
				return Result{Outcome: OutcomeViolated}, nil
			}
			approved = true
		}

		if !approved {
			return Result{Outcome: OutcomePending, Eligible: approvers}, nil
		}
	}

	return Result{Outcome: OutcomeSatisfied}, nil
}

// evalQuorum counts approvals across the voter pool defined by the
// rule's steps. Comparison is inclusive: approve/total >= threshold.
// The rule is violated as soon as the remaining undecided voters can no
// longer reach the threshold.
func (e *Evaluator) evalQuorum(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, byApprover map[string]*entity.ApprovalDecision) (Result, error) {
	if r.ThresholdPct < 0 || r.ThresholdPct > 100 {
		return Result{}, fmt.Errorf("%w: quorum rule %s threshold %d out of range", ErrMalformedRule, r.ID, r.ThresholdPct)
	}

	pool, err := e.resolvePool(ctx, r, exp)
	if err != nil {
		return Result{}, err
	}

	total := len(pool)
	approves := 0
	decided := 0
	var undecided []string
	for _, a := range pool {
		d, ok := byApprover[a]
		if !ok {
			undecided = append(undecided, a)
			continue
		}
		decided++
		if d.Outcome == entity.OutcomeApprove {
			approves++
		}
	}

	// approve/total >= threshold/100, kept in integers to avoid float
	// tie-break surprises at the boundary.
	if approves*100 >= r.ThresholdPct*total {
		return Result{Outcome: OutcomeSatisfied}, nil
	}
	remaining := total - decided
	if (approves+remaining)*100 < r.ThresholdPct*total {
		return Result{Outcome: OutcomeViolated}, nil
	}

	return Result{Outcome: OutcomePending, Eligible: undecided}, nil
}

// evalSpecific applies the designated approver's decision and ignores
// every other ledger entry. Other decisions stay in the ledger for
// audit but never change the outcome.
func (e *Evaluator) evalSpecific(r *entity.ApprovalRule, byApprover map[string]*entity.ApprovalDecision) (Result, error) {
	if r.SpecificApproverID == nil || *r.SpecificApproverID == "" {
		return Result{}, fmt.Errorf("%w: rule %s has no designated approver", ErrMalformedRule, r.ID)
	}

	d, ok := byApprover[*r.SpecificApproverID]
	if !ok {
		return Result{Outcome: OutcomePending, Eligible: []string{*r.SpecificApproverID}}, nil
	}
	if d.Outcome == entity.OutcomeApprove {
		return Result{Outcome: OutcomeSatisfied}, nil
	}
	return Result{Outcome: OutcomeViolated}, nil
}

// evalHybrid combines the primary sub-rule with the specific-approver
// override, OR-on-satisfy. The override's reject ends the expense only
// when the rule is marked authoritative; otherwise the primary path can
// still satisfy the rule. A non-authoritative designated approver who
// is also a quorum voter has their reject counted in the pool like any
// other voter's.
func (e *Evaluator) evalHybrid(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, byApprover map[string]*entity.ApprovalDecision) (Result, error) {
	var primary Result
	var err error
	switch r.Primary {
	case entity.HybridPrimarySequential:
		primary, err = e.evalSequential(ctx, r, exp, byApprover)
	case entity.HybridPrimaryQuorum:
		primary, err = e.evalQuorum(ctx, r, exp, byApprover)
	default:
		return Result{}, fmt.Errorf("%w: hybrid rule %s has no primary sub-rule", ErrMalformedRule, r.ID)
	}
	if err != nil {
		return Result{}, err
	}

	override, err := e.evalSpecific(r, byApprover)
	if err != nil {
		return Result{}, err
	}

	if r.Authoritative && override.Outcome == OutcomeViolated {
		return Result{Outcome: OutcomeViolated}, nil
	}
	if primary.Outcome == OutcomeSatisfied || override.Outcome == OutcomeSatisfied {
		return Result{Outcome: OutcomeSatisfied}, nil
	}
	if primary.Outcome == OutcomeViolated && override.Outcome == OutcomeViolated {
		return Result{Outcome: OutcomeViolated}, nil
	}

	eligible := mergeEligible(primary.Eligible, override.Eligible)
	if len(eligible) == 0 {
		return Result{}, fmt.Errorf("%w: hybrid rule %s is pending with no eligible approvers", ErrMalformedRule, r.ID)
	}
	return Result{Outcome: OutcomePending, Eligible: eligible}, nil
}

// resolveStep expands a step into the concrete approver IDs allowed to
// satisfy it right now.
func (e *Evaluator) resolveStep(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense, step *entity.ApprovalStep) ([]string, error) {
	if step.ApproverUserID != nil && *step.ApproverUserID != "" {
		return []string{*step.ApproverUserID}, nil
	}
	if step.ApproverRole == nil || *step.ApproverRole == "" {
		return nil, fmt.Errorf("%w: step %d of rule %s names neither a user nor a role", ErrMalformedRule, step.Position, r.ID)
	}

	if *step.ApproverRole == entity.StepRoleSubmitterManager {
		mgr, err := e.org.ManagerOf(ctx, exp.SubmitterID)
		if err != nil {
			return nil, fmt.Errorf("resolve manager of %s: %w", exp.SubmitterID, err)
		}
		if mgr == "" {
			return nil, fmt.Errorf("%w: submitter %s has no manager for step %d", ErrMalformedRule, exp.SubmitterID, step.Position)
		}
		return []string{mgr}, nil
	}

	users, err := e.org.UsersWithRole(ctx, exp.CompanyID, *step.ApproverRole)
	if err != nil {
		return nil, fmt.Errorf("resolve role %s: %w", *step.ApproverRole, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: no users hold role %s for step %d of rule %s", ErrMalformedRule, *step.ApproverRole, step.Position, r.ID)
	}
	return users, nil
}

// resolvePool expands all steps into the deduplicated quorum voter pool.
func (e *Evaluator) resolvePool(ctx context.Context, r *entity.ApprovalRule, exp *entity.Expense) ([]string, error) {
	steps := orderedSteps(r)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: quorum rule %s has no voter pool", ErrMalformedRule, r.ID)
	}

	seen := make(map[string]bool)
	var pool []string
	for _, step := range steps {
		approvers, err := e.resolveStep(ctx, r, exp, step)
		if err != nil {
			return nil, err
		}
		for _, a := range approvers {
			if !seen[a] {
				seen[a] = true
				pool = append(pool, a)
			}
		}
	}
	return pool, nil
}

func orderedSteps(r *entity.ApprovalRule) []*entity.ApprovalStep {
	steps := make([]*entity.ApprovalStep, len(r.Steps))
	copy(steps, r.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })
	return steps
}

func mergeEligible(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
