package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// RuleRepository handles approval rule database operations. Rule rows
// are immutable once written; editing a rule inserts a new version and
// deactivates the previous one.
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a rule version together with its steps
func (r *RuleRepository) Create(tx *sql.Tx, rule *entity.ApprovalRule) error {
	query := `
		INSERT INTO approval_rules (
			id, company_id, name, version, kind, threshold_pct,
			specific_approver_id, authoritative, hybrid_primary,
			category, min_amount_cents, max_amount_cents, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	_, err := exec(query,
		rule.ID, rule.CompanyID, rule.Name, rule.Version, string(rule.Kind),
		rule.ThresholdPct, rule.SpecificApproverID, rule.Authoritative,
		string(rule.Primary), rule.Category, rule.MinAmountCents,
		rule.MaxAmountCents, rule.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create rule", zap.String("id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to create rule: %w", err)
	}

	stepQuery := `
		INSERT INTO approval_steps (id, rule_id, position, approver_user_id, approver_role)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, step := range rule.Steps {
		if _, err := exec(stepQuery, step.ID, rule.ID, step.Position, step.ApproverUserID, step.ApproverRole); err != nil {
			r.logger.Error("Failed to create rule step",
				zap.String("rule_id", rule.ID),
				zap.Int("position", step.Position),
				zap.Error(err))
			return fmt.Errorf("failed to create rule step: %w", err)
		}
	}

	return nil
}

// Deactivate marks a rule version inactive so new submissions stop
// matching it. Expenses already referencing it are unaffected.
func (r *RuleRepository) Deactivate(tx *sql.Tx, id string) error {
	query := `UPDATE approval_rules SET active = 0 WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, id)
	} else {
		_, err = r.db.Exec(query, id)
	}

	if err != nil {
		r.logger.Error("Failed to deactivate rule", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}

	return nil
}

const ruleColumns = `
	id, company_id, name, version, kind, threshold_pct,
	specific_approver_id, authoritative, hybrid_primary,
	category, min_amount_cents, max_amount_cents, active, created_at
`

// GetByID retrieves a rule version with its steps. Returns nil when not
// found.
func (r *RuleRepository) GetByID(tx *sql.Tx, id string) (*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rule", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	if err := r.loadSteps(tx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListActiveByCompany retrieves all active rule versions of a company,
// with steps, newest first
func (r *RuleRepository) ListActiveByCompany(tx *sql.Tx, companyID string) ([]*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules
		WHERE company_id = ? AND active = 1 ORDER BY created_at DESC`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, companyID)
	} else {
		rows, err = r.db.Query(query, companyID)
	}
	if err != nil {
		r.logger.Error("Failed to list rules", zap.String("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if err := r.loadSteps(tx, rule); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func (r *RuleRepository) loadSteps(tx *sql.Tx, rule *entity.ApprovalRule) error {
	query := `
		SELECT id, rule_id, position, approver_user_id, approver_role
		FROM approval_steps
		WHERE rule_id = ?
		ORDER BY position ASC
	`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, rule.ID)
	} else {
		rows, err = r.db.Query(query, rule.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load rule steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step entity.ApprovalStep
		var userID, role sql.NullString

		if err := rows.Scan(&step.ID, &step.RuleID, &step.Position, &userID, &role); err != nil {
			return fmt.Errorf("failed to scan rule step: %w", err)
		}
		if userID.Valid {
			step.ApproverUserID = &userID.String
		}
		if role.Valid {
			step.ApproverRole = &role.String
		}
		rule.Steps = append(rule.Steps, &step)
	}

	return rows.Err()
}

func scanRule(row rowScanner) (*entity.ApprovalRule, error) {
	var rule entity.ApprovalRule
	var kind, primary string
	var specificApprover, category sql.NullString
	var minAmount, maxAmount sql.NullInt64

	err := row.Scan(
		&rule.ID, &rule.CompanyID, &rule.Name, &rule.Version, &kind,
		&rule.ThresholdPct, &specificApprover, &rule.Authoritative, &primary,
		&category, &minAmount, &maxAmount, &rule.Active, &rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Kind = entity.RuleKind(kind)
	rule.Primary = entity.HybridPrimary(primary)
	if specificApprover.Valid {
		rule.SpecificApproverID = &specificApprover.String
	}
	if category.Valid {
		rule.Category = &category.String
	}
	if minAmount.Valid {
		rule.MinAmountCents = &minAmount.Int64
	}
	if maxAmount.Valid {
		rule.MaxAmountCents = &maxAmount.Int64
	}

	return &rule, nil
}
