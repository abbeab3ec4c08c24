package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
)

// RuleStepInput describes one step of a new rule version
type RuleStepInput struct {
	ApproverUserID *string
	ApproverRole   *string
}

// RuleInput describes a new rule or rule revision
type RuleInput struct {
	CompanyID          string
	Name               string
	Kind               entity.RuleKind
	ThresholdPct       int
	SpecificApproverID *string
	Authoritative      bool
	Primary            entity.HybridPrimary
	Category           *string
	MinAmountCents     *int64
	MaxAmountCents     *int64
	Steps              []RuleStepInput
}

// RuleService manages immutable approval rule versions
type RuleService interface {
	CreateRule(ctx context.Context, input RuleInput) (*entity.ApprovalRule, error)

	// ReviseRule creates a new version of an existing rule and
	// deactivates the old one atomically. Expenses referencing the old
	// version keep it.
	ReviseRule(ctx context.Context, ruleID string, input RuleInput) (*entity.ApprovalRule, error)

	GetRule(ctx context.Context, id string) (*entity.ApprovalRule, error)
	ListRules(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error)
}

type ruleServiceImpl struct {
	rules     port.RuleWriter
	txManager port.TxRunner
	logger    Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(rules port.RuleWriter, txManager port.TxRunner, logger Logger) RuleService {
	return &ruleServiceImpl{
		rules:     rules,
		txManager: txManager,
		logger:    logger,
	}
}

// CreateRule validates and stores version 1 of a new rule
func (s *ruleServiceImpl) CreateRule(ctx context.Context, input RuleInput) (*entity.ApprovalRule, error) {
	rule, err := buildRule(input, 1)
	if err != nil {
		return nil, err
	}

	if err := s.rules.Create(nil, rule); err != nil {
		return nil, err
	}

	s.logger.Info("Rule created", "rule_id", rule.ID, "kind", string(rule.Kind))
	return rule, nil
}

// ReviseRule writes the next version and deactivates the previous one
func (s *ruleServiceImpl) ReviseRule(ctx context.Context, ruleID string, input RuleInput) (*entity.ApprovalRule, error) {
	prev, err := s.rules.GetByID(nil, ruleID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, fmt.Errorf("%w: rule %s", domainwf.ErrNotFound, ruleID)
	}
	if prev.CompanyID != input.CompanyID {
		return nil, fmt.Errorf("%w: rule %s", domainwf.ErrNotFound, ruleID)
	}

	next, err := buildRule(input, prev.Version+1)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.rules.Deactivate(tx, prev.ID); err != nil {
			return err
		}
		return s.rules.Create(tx, next)
	})
	if err != nil {
		s.logger.Error("Failed to revise rule", "rule_id", ruleID, "error", err)
		return nil, err
	}

	s.logger.Info("Rule revised", "old_id", prev.ID, "new_id", next.ID, "version", next.Version)
	return next, nil
}

// GetRule retrieves a rule version with its steps
func (s *ruleServiceImpl) GetRule(ctx context.Context, id string) (*entity.ApprovalRule, error) {
	rule, err := s.rules.GetByID(nil, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: rule %s", domainwf.ErrNotFound, id)
	}
	return rule, nil
}

// ListRules retrieves the active rule versions of a company
func (s *ruleServiceImpl) ListRules(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error) {
	return s.rules.ListActiveByCompany(nil, companyID)
}

// buildRule validates the input for its rule kind and assembles the
// entity with fresh identifiers
func buildRule(input RuleInput, version int) (*entity.ApprovalRule, error) {
	if input.CompanyID == "" || input.Name == "" {
		return nil, fmt.Errorf("%w: company and name are required", domainwf.ErrConfiguration)
	}

	needsSteps := false
	switch input.Kind {
	case entity.RuleSequential:
		needsSteps = true
	case entity.RulePercentageQuorum:
		needsSteps = true
		if input.ThresholdPct < 0 || input.ThresholdPct > 100 {
			return nil, fmt.Errorf("%w: threshold must be between 0 and 100", domainwf.ErrConfiguration)
		}
	case entity.RuleSpecificApprover:
		if input.SpecificApproverID == nil || *input.SpecificApproverID == "" {
			return nil, fmt.Errorf("%w: specific approver rule needs a designated approver", domainwf.ErrConfiguration)
		}
	case entity.RuleHybrid:
		needsSteps = true
		if input.SpecificApproverID == nil || *input.SpecificApproverID == "" {
			return nil, fmt.Errorf("%w: hybrid rule needs a designated approver", domainwf.ErrConfiguration)
		}
		switch input.Primary {
		case entity.HybridPrimarySequential:
		case entity.HybridPrimaryQuorum:
			if input.ThresholdPct < 0 || input.ThresholdPct > 100 {
				return nil, fmt.Errorf("%w: threshold must be between 0 and 100", domainwf.ErrConfiguration)
			}
		default:
			return nil, fmt.Errorf("%w: hybrid rule needs a primary sub-rule", domainwf.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", domainwf.ErrConfiguration, input.Kind)
	}

	if needsSteps && len(input.Steps) == 0 {
		return nil, fmt.Errorf("%w: rule kind %s requires at least one step", domainwf.ErrConfiguration, input.Kind)
	}

	rule := &entity.ApprovalRule{
		ID:                 uuid.NewString(),
		CompanyID:          input.CompanyID,
		Name:               input.Name,
		Version:            version,
		Kind:               input.Kind,
		ThresholdPct:       input.ThresholdPct,
		SpecificApproverID: input.SpecificApproverID,
		Authoritative:      input.Authoritative,
		Primary:            input.Primary,
		Category:           input.Category,
		MinAmountCents:     input.MinAmountCents,
		MaxAmountCents:     input.MaxAmountCents,
		Active:             true,
	}

	for i, step := range input.Steps {
		hasUser := step.ApproverUserID != nil && *step.ApproverUserID != ""
		hasRole := step.ApproverRole != nil && *step.ApproverRole != ""
		if hasUser == hasRole {
			return nil, fmt.Errorf("%w: step %d must name exactly one of user or role", domainwf.ErrConfiguration, i+1)
		}

		rule.Steps = append(rule.Steps, &entity.ApprovalStep{
			ID:             uuid.NewString(),
			RuleID:         rule.ID,
			Position:       i + 1,
			ApproverUserID: step.ApproverUserID,
			ApproverRole:   step.ApproverRole,
		})
	}

	return rule, nil
}
