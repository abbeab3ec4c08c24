package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/expensio/expenseflow/internal/application/service"
	"github.com/expensio/expenseflow/internal/domain/entity"
	domainwf "github.com/expensio/expenseflow/internal/domain/workflow"
)

type fakeAuthService struct {
	claims *service.Claims
}

func (f *fakeAuthService) Register(ctx context.Context, input service.RegisterInput) (*entity.User, string, error) {
	return nil, "", nil
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (*entity.User, string, error) {
	return nil, "", nil
}

func (f *fakeAuthService) ParseToken(token string) (*service.Claims, error) {
	if token == "good-token" && f.claims != nil {
		return f.claims, nil
	}
	return nil, errors.New("invalid token")
}

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestRouter(claims *service.Claims) (*gin.Engine, *Handlers) {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(&fakeAuthService{claims: claims}, nil, nil, nil, nil, nil, testLogger{})
	router := gin.New()
	return router, h
}

func TestAuthRequired(t *testing.T) {
	claims := &service.Claims{UserID: "u1", CompanyID: "co-1", Role: entity.RoleEmployee}
	router, h := newTestRouter(claims)
	router.GET("/protected", h.AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, Response{Success: true, Data: mustClaims(c).UserID})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	claims := &service.Claims{UserID: "u1", CompanyID: "co-1", Role: entity.RoleEmployee}
	router, h := newTestRouter(claims)
	router.GET("/admin-only", h.AuthRequired(), h.RequireRole(entity.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/employee-ok", h.AuthRequired(), h.RequireRole(entity.RoleAdmin, entity.RoleEmployee), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/employee-ok", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteError_StatusMapping(t *testing.T) {
	router, h := newTestRouter(nil)

	var currentErr error
	router.GET("/fail", func(c *gin.Context) {
		h.writeError(c, currentErr)
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domainwf.ErrNotFound, http.StatusNotFound},
		{"not eligible", domainwf.ErrNotEligible, http.StatusForbidden},
		{"invalid state", domainwf.ErrInvalidState, http.StatusConflict},
		{"already in progress", domainwf.ErrAlreadyInProgress, http.StatusConflict},
		{"duplicate decision", domainwf.ErrDuplicateDecision, http.StatusConflict},
		{"concurrency conflict", domainwf.ErrConcurrencyConflict, http.StatusConflict},
		{"configuration", domainwf.ErrConfiguration, http.StatusUnprocessableEntity},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"wrapped", errors.Join(errors.New("ctx"), domainwf.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			currentErr = tt.err
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	router, h := newTestRouter(nil)
	router.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
