package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/framerpc/internal/control"
	"github.com/vietddude/framerpc/internal/core/domain"
)

var (
	callEndpoints []string
	callTimeout   time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <method> [json-params]",
	Short: "Call a method and print its JSON result",
	Example: `  framerpc call ping
  framerpc call echo '["hello", 42]' --endpoint 127.0.0.1:7000`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringSliceVar(&callEndpoints, "endpoint", nil, "endpoint address, repeatable (overrides config)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "receive timeout per attempt (default from config)")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	var params []any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("params must be a JSON array: %w", err)
		}
	}

	clientCfg := cfg.Client.RPCConfig()
	if len(callEndpoints) > 0 {
		clientCfg.Endpoints = callEndpoints
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	app, err := control.NewApp(ctx, control.Config{
		Client:   clientCfg,
		Redis:    cfg.Redis,
		Database: cfg.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	client := app.Client()
	if client == nil {
		return errors.New("no endpoints configured")
	}

	result, err := client.Call(ctx, args[0], params, callTimeout)
	if err != nil {
		var remote *domain.ErrorInfo
		if errors.As(err, &remote) {
			slog.Error("Remote error", "code", remote.Code, "message", remote.Message)
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
