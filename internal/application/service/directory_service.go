package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
)

// CreateUserInput adds a member to an existing company
type CreateUserInput struct {
	CompanyID string
	Email     string
	Password  string
	Role      string
	ManagerID *string
}

// DirectoryService manages companies, users and the manager hierarchy.
// It also answers the org questions rule evaluation needs, so it
// satisfies the evaluator's Resolver interface.
type DirectoryService interface {
	GetCompany(ctx context.Context, id string) (*entity.Company, error)
	CreateUser(ctx context.Context, input CreateUserInput) (*entity.User, error)
	GetUser(ctx context.Context, id string) (*entity.User, error)
	ListUsers(ctx context.Context, companyID string) ([]*entity.User, error)
	SetManager(ctx context.Context, userID string, managerID *string) error

	// Resolver methods used by rule evaluation
	ManagerOf(ctx context.Context, userID string) (string, error)
	UsersWithRole(ctx context.Context, companyID, role string) ([]string, error)
}

var validRoles = map[string]bool{
	entity.RoleAdmin:    true,
	entity.RoleManager:  true,
	entity.RoleFinance:  true,
	entity.RoleDirector: true,
	entity.RoleEmployee: true,
}

type directoryServiceImpl struct {
	users     port.UserRepository
	companies port.CompanyRepository
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(users port.UserRepository, companies port.CompanyRepository, logger Logger) DirectoryService {
	return &directoryServiceImpl{
		users:     users,
		companies: companies,
		logger:    logger,
	}
}

// GetCompany retrieves a company by ID
func (s *directoryServiceImpl) GetCompany(ctx context.Context, id string) (*entity.Company, error) {
	company, err := s.companies.GetByID(id)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("company %s not found", id)
	}
	return company, nil
}

// CreateUser adds a member to a company
func (s *directoryServiceImpl) CreateUser(ctx context.Context, input CreateUserInput) (*entity.User, error) {
	if !validRoles[input.Role] {
		return nil, fmt.Errorf("invalid role %q", input.Role)
	}
	if input.Email == "" || len(input.Password) < 8 {
		return nil, fmt.Errorf("email and a password of at least 8 characters are required")
	}

	if input.ManagerID != nil {
		manager, err := s.users.GetByID(*input.ManagerID)
		if err != nil {
			return nil, err
		}
		if manager == nil || manager.CompanyID != input.CompanyID {
			return nil, fmt.Errorf("manager %s not found in company", *input.ManagerID)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &entity.User{
		ID:           uuid.NewString(),
		CompanyID:    input.CompanyID,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
		ManagerID:    input.ManagerID,
	}

	if err := s.users.Create(nil, user); err != nil {
		s.logger.Error("Failed to create user", "email", input.Email, "error", err)
		return nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// GetUser retrieves a user by ID
func (s *directoryServiceImpl) GetUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.users.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

// ListUsers retrieves all members of a company
func (s *directoryServiceImpl) ListUsers(ctx context.Context, companyID string) ([]*entity.User, error) {
	return s.users.ListByCompany(companyID)
}

// SetManager changes a user's direct manager. A user cannot manage
// themselves.
func (s *directoryServiceImpl) SetManager(ctx context.Context, userID string, managerID *string) error {
	if managerID != nil && *managerID == userID {
		return fmt.Errorf("user cannot be their own manager")
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", userID)
	}

	if managerID != nil {
		manager, err := s.users.GetByID(*managerID)
		if err != nil {
			return err
		}
		if manager == nil || manager.CompanyID != user.CompanyID {
			return fmt.Errorf("manager %s not found in company", *managerID)
		}
	}

	return s.users.UpdateManager(nil, userID, managerID)
}

// ManagerOf returns the user ID of a user's direct manager, or empty
// when the user has none
func (s *directoryServiceImpl) ManagerOf(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil || user.ManagerID == nil {
		return "", nil
	}
	return *user.ManagerID, nil
}

// UsersWithRole returns the IDs of company members holding a role
func (s *directoryServiceImpl) UsersWithRole(ctx context.Context, companyID, role string) ([]string, error) {
	users, err := s.users.ListByRole(companyID, role)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
