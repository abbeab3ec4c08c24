// Package http provides the HTTP server adapter for the application
// layer. It is a thin translation layer between HTTP requests and the
// application services and workflow controller.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/expensio/expenseflow/internal/application/service"
	appwf "github.com/expensio/expenseflow/internal/application/workflow"
	"github.com/expensio/expenseflow/internal/domain/entity"
	"github.com/expensio/expenseflow/internal/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server wired to the given services
func NewServer(
	config ServerConfig,
	authService service.AuthService,
	directoryService service.DirectoryService,
	ruleService service.RuleService,
	expenseService service.ExpenseService,
	controller *appwf.Controller,
	exporter *report.Exporter,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		handlers: NewHandlers(
			authService,
			directoryService,
			ruleService,
			expenseService,
			controller,
			exporter,
			logger,
		),
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1")

	// Public endpoints
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// Everything below requires a valid token
	auth := api.Group("", h.AuthRequired())
	{
		auth.GET("/company", h.GetCompany)

		auth.GET("/users", h.ListUsers)
		auth.GET("/users/:id", h.GetUser)
		auth.POST("/users", h.RequireRole(entity.RoleAdmin), h.CreateUser)
		auth.PUT("/users/:id/manager", h.RequireRole(entity.RoleAdmin), h.SetManager)

		auth.GET("/rules", h.ListRules)
		auth.GET("/rules/:id", h.GetRule)
		auth.POST("/rules", h.RequireRole(entity.RoleAdmin), h.CreateRule)
		auth.PUT("/rules/:id", h.RequireRole(entity.RoleAdmin), h.ReviseRule)

		auth.POST("/expenses", h.CreateExpense)
		auth.GET("/expenses", h.ListExpenses)
		auth.GET("/expenses/:id", h.GetExpense)
		auth.POST("/expenses/:id/submit", h.SubmitExpense)
		auth.POST("/expenses/:id/decisions", h.RecordDecision)
		auth.POST("/expenses/:id/withdraw", h.WithdrawExpense)

		auth.GET("/reports/expenses", h.RequireRole(entity.RoleAdmin, entity.RoleFinance), h.ExportExpenses)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or
// the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
