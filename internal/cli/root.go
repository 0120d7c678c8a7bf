package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/framerpc/internal/core/config"
)

var (
	cfgPath string
	isDebug bool

	// cfg is loaded before any subcommand runs.
	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "framerpc",
	Short: "Resilient framed RPC client and demo server",
	Long: `framerpc calls methods on framed JSON RPC endpoints with retry and
round-robin failover, and runs a demo frame server to call against.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// setup loads .env and the config file, then initializes logging.
// A missing config file is fine unless --config was given explicitly.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	loaded, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		loaded, err = config.Parse(nil)
	}
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return err
	}
	cfg = loaded

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Debug("Logger initialized", "level", slogLevel.String())

	return nil
}
