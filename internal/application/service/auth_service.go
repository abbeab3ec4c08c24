package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ErrInvalidCredentials is returned on failed login
var ErrInvalidCredentials = errors.New("invalid email or password")

// Claims carried in issued tokens
type Claims struct {
	UserID    string `json:"uid"`
	CompanyID string `json:"cid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// RegisterInput creates a new company with its first admin user
type RegisterInput struct {
	CompanyName     string
	DefaultCurrency string
	Email           string
	Password        string
}

// AuthService handles registration, login and token verification
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*entity.User, string, error)
	Login(ctx context.Context, email, password string) (*entity.User, string, error)
	ParseToken(tokenString string) (*Claims, error)
}

type authServiceImpl struct {
	users     port.UserRepository
	companies port.CompanyRepository
	txManager port.TxRunner
	secret    []byte
	tokenTTL  time.Duration
	logger    Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users port.UserRepository,
	companies port.CompanyRepository,
	txManager port.TxRunner,
	secret string,
	tokenTTL time.Duration,
	logger Logger,
) AuthService {
	return &authServiceImpl{
		users:     users,
		companies: companies,
		txManager: txManager,
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// Register creates a company and its admin user, returning a login token
func (s *authServiceImpl) Register(ctx context.Context, input RegisterInput) (*entity.User, string, error) {
	if input.CompanyName == "" || input.Email == "" || len(input.Password) < 8 {
		return nil, "", fmt.Errorf("company name, email and a password of at least 8 characters are required")
	}
	if input.DefaultCurrency == "" {
		input.DefaultCurrency = "USD"
	}

	existing, err := s.users.GetByEmail(input.Email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", fmt.Errorf("email %s is already registered", input.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	company := &entity.Company{
		ID:              uuid.NewString(),
		Name:            input.CompanyName,
		DefaultCurrency: input.DefaultCurrency,
	}
	user := &entity.User{
		ID:           uuid.NewString(),
		CompanyID:    company.ID,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         entity.RoleAdmin,
	}

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.companies.Create(tx, company); err != nil {
			return err
		}
		return s.users.Create(tx, user)
	})
	if err != nil {
		s.logger.Error("Registration failed", "email", input.Email, "error", err)
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("Company registered", "company_id", company.ID, "admin_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns a signed token
func (s *authServiceImpl) Login(ctx context.Context, email, password string) (*entity.User, string, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// ParseToken validates a token string and returns its claims
func (s *authServiceImpl) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *authServiceImpl) issueToken(user *entity.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
