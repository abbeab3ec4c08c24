package entity

import "time"

// RuleKind selects the evaluation semantics of an approval rule.
type RuleKind string

const (
	RuleSequential       RuleKind = "SEQUENTIAL"
	RulePercentageQuorum RuleKind = "PERCENTAGE_QUORUM"
	RuleSpecificApprover RuleKind = "SPECIFIC_APPROVER"
	RuleHybrid           RuleKind = "HYBRID"
)

// HybridPrimary selects which sub-rule a Hybrid combines with its
// specific-approver override.
type HybridPrimary string

const (
	HybridPrimarySequential HybridPrimary = "SEQUENTIAL"
	HybridPrimaryQuorum     HybridPrimary = "PERCENTAGE_QUORUM"
)

// StepRoleSubmitterManager marks a step approved by the submitter's
// direct manager, resolved against the org hierarchy at evaluation time.
const StepRoleSubmitterManager = "SubmitterManager"

// ApprovalStep is one ordered entry of a rule. Exactly one of
// ApproverUserID / ApproverRole is set. For Sequential rules Position is
// the approval order; for PercentageQuorum rules the steps define the
// voter pool and Position only keeps listings stable.
type ApprovalStep struct {
	ID             string  `json:"id"`
	RuleID         string  `json:"rule_id"`
	Position       int     `json:"position"`
	ApproverUserID *string `json:"approver_user_id,omitempty"`
	ApproverRole   *string `json:"approver_role,omitempty"`
}

// ApprovalRule is one immutable version of a company's approval policy.
// Editing a rule creates a new version; versions referenced by an
// expense are never mutated.
type ApprovalRule struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"company_id"`
	Name      string   `json:"name"`
	Version   int      `json:"version"`
	Kind      RuleKind `json:"kind"`

	// ThresholdPct applies to PercentageQuorum and quorum-primary
	// Hybrid rules, 0-100 inclusive.
	ThresholdPct int `json:"threshold_pct,omitempty"`

	// SpecificApproverID applies to SpecificApprover and Hybrid rules.
	// Authoritative makes that approver's Reject final in a Hybrid.
	SpecificApproverID *string `json:"specific_approver_id,omitempty"`
	Authoritative      bool    `json:"authoritative,omitempty"`

	// Primary selects the Hybrid sub-rule evaluated over Steps.
	Primary HybridPrimary `json:"primary,omitempty"`

	// Optional scoping: the rule applies only to matching expenses.
	Category       *string `json:"category,omitempty"`
	MinAmountCents *int64  `json:"min_amount_cents,omitempty"`
	MaxAmountCents *int64  `json:"max_amount_cents,omitempty"`

	Active    bool            `json:"active"`
	Steps     []*ApprovalStep `json:"steps,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Matches reports whether the rule's scope covers the given expense
// category and amount.
func (r *ApprovalRule) Matches(category string, amountCents int64) bool {
	if r.Category != nil && *r.Category != category {
		return false
	}
	if r.MinAmountCents != nil && amountCents < *r.MinAmountCents {
		return false
	}
	if r.MaxAmountCents != nil && amountCents > *r.MaxAmountCents {
		return false
	}
	return true
}
