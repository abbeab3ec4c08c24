package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/expensio/expenseflow/internal/application/service"
	appwf "github.com/expensio/expenseflow/internal/application/workflow"
	"github.com/expensio/expenseflow/internal/domain/entity"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
	"github.com/expensio/expenseflow/internal/report"
)

const claimsKey = "auth_claims"

// Handlers contains all HTTP request handlers
type Handlers struct {
	auth       service.AuthService
	directory  service.DirectoryService
	rules      service.RuleService
	expenses   service.ExpenseService
	controller *appwf.Controller
	exporter   *report.Exporter
	logger     Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	auth service.AuthService,
	directory service.DirectoryService,
	rules service.RuleService,
	expenses service.ExpenseService,
	controller *appwf.Controller,
	exporter *report.Exporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		auth:       auth,
		directory:  directory,
		rules:      rules,
		expenses:   expenses,
		controller: controller,
		exporter:   exporter,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// AuthRequired validates the bearer token and stores the claims in the
// request context
func (h *Handlers) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing bearer token",
			})
			return
		}

		claims, err := h.auth.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "invalid token",
			})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole restricts a route to the given roles
func (h *Handlers) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "insufficient role",
		})
	}
}

func mustClaims(c *gin.Context) *service.Claims {
	return c.MustGet(claimsKey).(*service.Claims)
}

// writeError maps workflow sentinel errors to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domainwf.ErrNotEligible):
		status = http.StatusForbidden
	case errors.Is(err, domainwf.ErrInvalidState),
		errors.Is(err, domainwf.ErrAlreadyInProgress),
		errors.Is(err, domainwf.ErrDuplicateDecision),
		errors.Is(err, domainwf.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, domainwf.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// RegisterRequest is the body for POST /api/v1/auth/register
type RegisterRequest struct {
	CompanyName     string `json:"company_name" binding:"required"`
	DefaultCurrency string `json:"default_currency"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// AuthResponse carries the user and a signed token
type AuthResponse struct {
	User  *entity.User `json:"user"`
	Token string       `json:"token"`
}

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		CompanyName:     req.CompanyName,
		DefaultCurrency: req.DefaultCurrency,
		Email:           req.Email,
		Password:        req.Password,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: AuthResponse{User: user, Token: token}})
}

// LoginRequest is the body for POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: AuthResponse{User: user, Token: token}})
}

// GetCompany handles GET /api/v1/company
func (h *Handlers) GetCompany(c *gin.Context) {
	claims := mustClaims(c)

	company, err := h.directory.GetCompany(c.Request.Context(), claims.CompanyID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: company})
}

// CreateUserRequest is the body for POST /api/v1/users
type CreateUserRequest struct {
	Email     string  `json:"email" binding:"required"`
	Password  string  `json:"password" binding:"required"`
	Role      string  `json:"role" binding:"required"`
	ManagerID *string `json:"manager_id"`
}

// CreateUser handles POST /api/v1/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	claims := mustClaims(c)
	user, err := h.directory.CreateUser(c.Request.Context(), service.CreateUserInput{
		CompanyID: claims.CompanyID,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// GetUser handles GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if user == nil || user.CompanyID != mustClaims(c).CompanyID {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "user not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.directory.ListUsers(c.Request.Context(), mustClaims(c).CompanyID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// SetManagerRequest is the body for PUT /api/v1/users/:id/manager
type SetManagerRequest struct {
	ManagerID *string `json:"manager_id"`
}

// SetManager handles PUT /api/v1/users/:id/manager
func (h *Handlers) SetManager(c *gin.Context) {
	var req SetManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	if err := h.directory.SetManager(c.Request.Context(), c.Param("id"), req.ManagerID); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// RuleStepRequest describes one step of a rule
type RuleStepRequest struct {
	ApproverUserID *string `json:"approver_user_id"`
	ApproverRole   *string `json:"approver_role"`
}

// RuleRequest is the body for rule creation and revision
type RuleRequest struct {
	Name               string            `json:"name" binding:"required"`
	Kind               string            `json:"kind" binding:"required"`
	ThresholdPct       int               `json:"threshold_pct"`
	SpecificApproverID *string           `json:"specific_approver_id"`
	Authoritative      bool              `json:"authoritative"`
	HybridPrimary      string            `json:"hybrid_primary"`
	Category           *string           `json:"category"`
	MinAmountCents     *int64            `json:"min_amount_cents"`
	MaxAmountCents     *int64            `json:"max_amount_cents"`
	Steps              []RuleStepRequest `json:"steps"`
}

func (r RuleRequest) toInput(companyID string) service.RuleInput {
	input := service.RuleInput{
		CompanyID:          companyID,
		Name:               r.Name,
		Kind:               entity.RuleKind(r.Kind),
		ThresholdPct:       r.ThresholdPct,
		SpecificApproverID: r.SpecificApproverID,
		Authoritative:      r.Authoritative,
		Primary:            entity.HybridPrimary(r.HybridPrimary),
		Category:           r.Category,
		MinAmountCents:     r.MinAmountCents,
		MaxAmountCents:     r.MaxAmountCents,
	}
	for _, step := range r.Steps {
		input.Steps = append(input.Steps, service.RuleStepInput{
			ApproverUserID: step.ApproverUserID,
			ApproverRole:   step.ApproverRole,
		})
	}
	return input
}

// CreateRule handles POST /api/v1/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	rule, err := h.rules.CreateRule(c.Request.Context(), req.toInput(mustClaims(c).CompanyID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// ReviseRule handles PUT /api/v1/rules/:id
func (h *Handlers) ReviseRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	rule, err := h.rules.ReviseRule(c.Request.Context(), c.Param("id"), req.toInput(mustClaims(c).CompanyID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// GetRule handles GET /api/v1/rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rule == nil || rule.CompanyID != mustClaims(c).CompanyID {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "rule not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// ListRules handles GET /api/v1/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), mustClaims(c).CompanyID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// CreateExpenseRequest is the body for POST /api/v1/expenses
type CreateExpenseRequest struct {
	Category    string `json:"category" binding:"required"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	ExpenseDate string `json:"expense_date"`
}

// CreateExpense handles POST /api/v1/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	var expenseDate time.Time
	if req.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "expense_date must be YYYY-MM-DD"})
			return
		}
		expenseDate = parsed
	}

	claims := mustClaims(c)
	exp, err := h.expenses.CreateDraft(c.Request.Context(), service.CreateExpenseInput{
		CompanyID:   claims.CompanyID,
		SubmitterID: claims.UserID,
		Category:    req.Category,
		Description: req.Description,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: exp})
}

// ListExpensesRequest represents query parameters for listing expenses
type ListExpensesRequest struct {
	Status     string `form:"status"`
	Mine       bool   `form:"mine"`
	PendingFor string `form:"pending_for"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// ListExpenses handles GET /api/v1/expenses. With mine=true it lists
// the caller's own expenses, with pending_for=me the pending ones the
// caller can currently decide on, otherwise the company's expenses.
func (h *Handlers) ListExpenses(c *gin.Context) {
	var req ListExpensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	claims := mustClaims(c)
	ctx := c.Request.Context()

	var (
		expenses []*entity.Expense
		err      error
	)
	switch {
	case req.PendingFor == "me":
		expenses, err = h.expenses.PendingForApprover(ctx, claims.CompanyID, claims.UserID)
	case req.Mine:
		expenses, err = h.expenses.ListBySubmitter(ctx, claims.UserID, req.Limit, req.Offset)
	default:
		expenses, err = h.expenses.ListByCompany(ctx, claims.CompanyID, req.Status, req.Limit, req.Offset)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	detail, err := h.expenses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if detail.Expense.CompanyID != mustClaims(c).CompanyID {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "expense not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// SubmitExpense handles POST /api/v1/expenses/:id/submit
func (h *Handlers) SubmitExpense(c *gin.Context) {
	claims := mustClaims(c)
	id := c.Param("id")

	if err := h.controller.Submit(c.Request.Context(), id, claims.UserID); err != nil {
		h.writeError(c, err)
		return
	}

	detail, err := h.expenses.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// DecisionRequest is the body for POST /api/v1/expenses/:id/decisions
type DecisionRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Comment string `json:"comment"`
}

// RecordDecision handles POST /api/v1/expenses/:id/decisions
func (h *Handlers) RecordDecision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	claims := mustClaims(c)
	receipt, err := h.controller.RecordDecision(c.Request.Context(), c.Param("id"), claims.UserID, req.Outcome, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: receipt})
}

// WithdrawExpense handles POST /api/v1/expenses/:id/withdraw
func (h *Handlers) WithdrawExpense(c *gin.Context) {
	claims := mustClaims(c)

	if err := h.controller.Withdraw(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ExportExpenses handles GET /api/v1/reports/expenses and streams an
// Excel workbook
func (h *Handlers) ExportExpenses(c *gin.Context) {
	claims := mustClaims(c)
	status := c.Query("status")

	filename := fmt.Sprintf("expenses-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := h.exporter.ExportCompany(c.Request.Context(), c.Writer, claims.CompanyID, status); err != nil {
		h.logger.Error("Report export failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
}
