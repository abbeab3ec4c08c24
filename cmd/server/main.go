package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/dispatcher"
	"github.com/expensio/expenseflow/internal/application/service"
	appwf "github.com/expensio/expenseflow/internal/application/workflow"
	"github.com/expensio/expenseflow/internal/config"
	"github.com/expensio/expenseflow/internal/domain/rule"
	httpapi "github.com/expensio/expenseflow/internal/interfaces/http"
	"github.com/expensio/expenseflow/internal/notifier"
	"github.com/expensio/expenseflow/internal/report"
	"github.com/expensio/expenseflow/internal/repository"
	"github.com/expensio/expenseflow/pkg/database"
	"github.com/expensio/expenseflow/pkg/utils"
)

func main() {
	// Load .env if present; real environment wins over file values
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense approval workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database and migrations
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	companyRepo := repository.NewCompanyRepository(db.DB, logger)
	userRepo := repository.NewUserRepository(db.DB, logger)
	expenseRepo := repository.NewExpenseRepository(db.DB, logger)
	ruleRepo := repository.NewRuleRepository(db.DB, logger)
	decisionRepo := repository.NewDecisionRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)

	svcLogger := &zapLoggerAdapter{logger: logger}

	// Application services
	authService := service.NewAuthService(userRepo, companyRepo, db,
		cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, svcLogger)
	directoryService := service.NewDirectoryService(userRepo, companyRepo, svcLogger)
	ruleService := service.NewRuleService(ruleRepo, db, svcLogger)

	evaluator := rule.NewEvaluator(directoryService)

	expenseService := service.NewExpenseService(expenseRepo, expenseRepo,
		decisionRepo, ruleRepo, historyRepo, evaluator, svcLogger)

	// Event dispatcher and notification worker
	eventDispatcher := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}))

	statusWorker := notifier.NewStatusWorker(
		notifier.NewLogNotifier(logger),
		logger,
		notifier.WithQueueSize(cfg.Notifier.QueueSize),
		notifier.WithDeliveryRetries(cfg.Notifier.MaxAttempts, cfg.Notifier.RetryDelay),
	)
	statusWorker.Subscribe(eventDispatcher)

	workerManager := notifier.NewManager(logger)
	workerManager.Register(statusWorker)

	// Workflow controller
	controller := appwf.NewController(
		db,
		expenseRepo,
		decisionRepo,
		ruleRepo,
		historyRepo,
		evaluator,
		logger,
		appwf.WithDispatcher(eventDispatcher),
		appwf.WithRetries(cfg.Workflow.MaxRetries, cfg.Workflow.RetryDelay),
	)

	exporter := report.NewExporter(expenseRepo, logger)

	// HTTP server
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		authService,
		directoryService,
		ruleService,
		expenseService,
		controller,
		exporter,
		svcLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	if err := server.Stop(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	workerManager.StopAll()
	if err := eventDispatcher.Close(); err != nil {
		logger.Error("Dispatcher close error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// used by the service and HTTP layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
