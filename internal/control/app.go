// Package control wires the storage, state, client and server components
// into one running application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/framerpc/internal/core/worker"
	"github.com/vietddude/framerpc/internal/health"
	redisclient "github.com/vietddude/framerpc/internal/infra/redis"
	"github.com/vietddude/framerpc/internal/infra/rpc"
	"github.com/vietddude/framerpc/internal/infra/storage"
	"github.com/vietddude/framerpc/internal/infra/storage/memory"
	"github.com/vietddude/framerpc/internal/infra/storage/postgres"
	"github.com/vietddude/framerpc/internal/server"
)

// Config holds the application configuration.
type Config struct {
	Client     rpc.Config
	Listen     string // frame server address; empty disables the server
	HealthPort int    // used only when the client is enabled
	Redis      redisclient.Config
	Database   postgres.Config

	// JournalRetention enables periodic pruning of the call journal.
	JournalRetention time.Duration
}

// App is the main application struct that manages the component lifecycle.
type App struct {
	cfg          Config
	client       *rpc.Client
	frameServer  *server.Server
	healthServer *health.Server
	pruner       *worker.Pruner
	journal      storage.CallJournal
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	served chan error
}

// NewApp creates a new App with all dependencies initialized.
// The client is built only when endpoints are configured.
func NewApp(ctx context.Context, cfg Config) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		a.journal = postgres.NewJournalRepo(db)
		a.log.Info("Using PostgreSQL call journal")
	} else {
		a.journal = memory.NewJournal(memory.DefaultCapacity)
		a.log.Info("Using memory call journal")
	}

	if cfg.JournalRetention > 0 {
		a.pruner = worker.NewPruner(cfg.JournalRetention, a.journal)
	}

	// 2. Initialize Redis endpoint state
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, endpoint state stays local", "error", err)
		} else {
			a.redisClient = rc
		}
	}

	// 3. Initialize Client and Health
	if len(cfg.Client.Endpoints) > 0 {
		opts := []rpc.Option{rpc.WithJournal(a.journal), rpc.WithLogger(a.log)}
		if a.redisClient != nil {
			opts = append(opts, rpc.WithStateStore(a.redisClient))
		}

		client, err := rpc.NewClient(ctx, cfg.Client, opts...)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("failed to init client: %w", err)
		}
		a.client = client
		a.healthServer = health.NewServer(health.NewMonitor(client), cfg.HealthPort)
	}

	// 4. Initialize Frame Server
	if cfg.Listen != "" {
		a.frameServer = server.New(a.log)
		a.frameServer.RegisterBuiltins()
	}

	return a, nil
}

// Client returns the RPC client, or nil when no endpoints are configured.
func (a *App) Client() *rpc.Client {
	return a.client
}

// Journal returns the call journal.
func (a *App) Journal() storage.CallJournal {
	return a.journal
}

// FrameServer returns the frame server, or nil when it is disabled.
func (a *App) FrameServer() *server.Server {
	return a.frameServer
}

// Start starts the background servers. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// Start Health Server
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
		a.log.Info("Health server started", "port", a.cfg.HealthPort)
	}

	// Start Pruner
	if a.pruner != nil {
		a.log.Info("Starting journal pruner", "retention", a.cfg.JournalRetention)
		go a.pruner.Start(ctx)
	}

	// Start Frame Server
	if a.frameServer != nil {
		a.served = make(chan error, 1)
		go func() {
			a.served <- a.frameServer.ListenAndServe(ctx, a.cfg.Listen)
		}()
	}

	return nil
}

// Wait blocks until the frame server stops and returns its error.
// It returns nil at once when the server is disabled or not started.
func (a *App) Wait() error {
	if a.served == nil {
		return nil
	}
	return <-a.served
}

// Stop stops every component.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping framerpc...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.served != nil {
		select {
		case err := <-a.served:
			if err != nil {
				a.log.Warn("Frame server stopped with error", "error", err)
			}
		case <-ctx.Done():
			a.log.Warn("Frame server did not stop in time")
		}
		a.served = nil
	}

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.log.Warn("Failed to close client", "error", err)
		}
	}

	a.closeStores()

	// Stop Health Server
	if a.healthServer != nil {
		return a.healthServer.Stop(ctx)
	}
	return nil
}

func (a *App) closeStores() {
	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
