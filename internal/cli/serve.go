package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/framerpc/internal/control"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo frame server",
	Long: `Run a frame server answering ping, echo, sleep and fail.
When client endpoints are configured, the health and metrics HTTP server
runs as well and reports on them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	appCfg := control.Config{
		Listen:     listen,
		HealthPort: cfg.Server.HealthPort,
		Redis:      cfg.Redis,
		Database:   cfg.Database,

		JournalRetention: cfg.Journal.Retention,
	}
	if len(cfg.Client.Endpoints) > 0 {
		appCfg.Client = cfg.Client.RPCConfig()
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	app, err := control.NewApp(ctx, appCfg)
	if err != nil {
		slog.Error("Failed to initialize framerpc", "error", err)
		return err
	}

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start framerpc", "error", err)
		return err
	}
	slog.Info("framerpc started", "config", cfgPath, "listen", listen)

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		return err
	}

	slog.Info("framerpc stopped gracefully")
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
