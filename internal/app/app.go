package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brandcraft/server/internal/domain/orchestrator"
	"github.com/brandcraft/server/internal/shared/config"
)

const shutdownTimeout = 30 * time.Second

// App represents the application.
type App struct {
	config       *config.Config
	router       *gin.Engine
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
	cleanup      func()
}

func newApp(cfg *config.Config, router *gin.Engine, o *orchestrator.Orchestrator, logger *zap.Logger) *App {
	return &App{
		config:       cfg,
		router:       router,
		orchestrator: o,
		logger:       logger,
	}
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	a, cleanup, err := InitializeApp(cfg)
	if err != nil {
		return nil, err
	}
	a.cleanup = cleanup
	a.logger.Info("application initialized",
		zap.String("generation", cfg.Generation.Type),
		zap.String("fingerprint_store", cfg.Stores.Fingerprint),
		zap.String("balance_store", cfg.Stores.Balance),
		zap.String("audit_store", cfg.Stores.Audit),
		zap.Bool("batching", cfg.Batch.Enabled))
	return a, nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop flushes pending batches and audit records, then closes connections.
func (a *App) Stop() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	_ = a.logger.Sync()
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
