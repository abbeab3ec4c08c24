package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// CompanyRepository handles company database operations
type CompanyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sql.DB, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new company
func (r *CompanyRepository) Create(tx *sql.Tx, c *entity.Company) error {
	query := `INSERT INTO companies (id, name, default_currency) VALUES (?, ?, ?)`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, c.ID, c.Name, c.DefaultCurrency)
	} else {
		_, err = r.db.Exec(query, c.ID, c.Name, c.DefaultCurrency)
	}

	if err != nil {
		r.logger.Error("Failed to create company", zap.String("name", c.Name), zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

// GetByID retrieves a company by ID. Returns nil when not found.
func (r *CompanyRepository) GetByID(id string) (*entity.Company, error) {
	query := `SELECT id, name, default_currency, created_at FROM companies WHERE id = ?`

	var c entity.Company
	err := r.db.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.DefaultCurrency, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get company", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &c, nil
}

// List retrieves all companies
func (r *CompanyRepository) List() ([]*entity.Company, error) {
	query := `SELECT id, name, default_currency, created_at FROM companies ORDER BY created_at ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list companies", zap.Error(err))
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*entity.Company
	for rows.Next() {
		var c entity.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.DefaultCurrency, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, &c)
	}

	return companies, rows.Err()
}
