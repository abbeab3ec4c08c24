package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/domain/entity"
)

// UserRepository handles user database operations
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, company_id, email, password_hash, role, manager_id, created_at`

// Create inserts a new user
func (r *UserRepository) Create(tx *sql.Tx, u *entity.User) error {
	query := `
		INSERT INTO users (id, company_id, email, password_hash, role, manager_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, u.ID, u.CompanyID, u.Email, u.PasswordHash, u.Role, u.ManagerID)
	} else {
		_, err = r.db.Exec(query, u.ID, u.CompanyID, u.Email, u.PasswordHash, u.Role, u.ManagerID)
	}

	if err != nil {
		r.logger.Error("Failed to create user", zap.String("email", u.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID. Returns nil when not found.
func (r *UserRepository) GetByID(id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.getOne(query, id)
}

// GetByEmail retrieves a user by email. Returns nil when not found.
func (r *UserRepository) GetByEmail(email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.getOne(query, email)
}

func (r *UserRepository) getOne(query string, arg interface{}) (*entity.User, error) {
	var u entity.User
	var managerID sql.NullString

	err := r.db.QueryRow(query, arg).Scan(
		&u.ID, &u.CompanyID, &u.Email, &u.PasswordHash, &u.Role, &managerID, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if managerID.Valid {
		u.ManagerID = &managerID.String
	}
	return &u, nil
}

// ListByCompany retrieves all members of a company
func (r *UserRepository) ListByCompany(companyID string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id = ? ORDER BY created_at ASC`
	return r.list(query, companyID)
}

// ListByRole retrieves company members holding the given role
func (r *UserRepository) ListByRole(companyID, role string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id = ? AND role = ? ORDER BY created_at ASC`
	return r.list(query, companyID, role)
}

// UpdateManager changes a user's direct manager
func (r *UserRepository) UpdateManager(tx *sql.Tx, userID string, managerID *string) error {
	query := `UPDATE users SET manager_id = ? WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, managerID, userID)
	} else {
		_, err = r.db.Exec(query, managerID, userID)
	}

	if err != nil {
		r.logger.Error("Failed to update manager", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to update manager: %w", err)
	}

	return nil
}

func (r *UserRepository) list(query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		var managerID sql.NullString

		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Email, &u.PasswordHash, &u.Role, &managerID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if managerID.Valid {
			u.ManagerID = &managerID.String
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}
