package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/codec"
	"github.com/vietddude/framerpc/internal/infra/rpc/transport"
)

var probeEndpoints []string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Ping every endpoint once, without retry, and report reachability",
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().StringSliceVar(&probeEndpoints, "endpoint", nil, "endpoint address, repeatable (overrides config)")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	endpoints := cfg.Client.Endpoints
	if len(probeEndpoints) > 0 {
		endpoints = probeEndpoints
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	rpcCfg := cfg.Client.RPCConfig()
	tcpCfg := transport.DefaultTCPConfig
	tcpCfg.ConnectTimeout = rpcCfg.ConnectTimeout

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENDPOINT\tSTATUS\tLATENCY\tERROR")

	for _, addr := range endpoints {
		start := time.Now()
		err := probe(ctx, transport.NewTCP(tcpCfg), addr, rpcCfg.ReceiveTimeout)
		latency := time.Since(start).Round(time.Millisecond)

		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", addr, domain.KindOf(err), latency, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\treachable\t%v\t\n", addr, latency)
	}
	return w.Flush()
}

func probe(ctx context.Context, tr transport.Transport, addr string, timeout time.Duration) error {
	defer tr.Close()

	if err := tr.Connect(ctx, domain.Endpoint{Address: addr}); err != nil {
		return err
	}

	req := domain.NewRequest("ping", nil)
	frame, err := codec.Encode(req)
	if err != nil {
		return err
	}
	if err := tr.Send(ctx, frame); err != nil {
		return err
	}

	raw, err := tr.Receive(ctx, timeout)
	if err != nil {
		return err
	}
	resp, err := codec.Decode(raw)
	if err != nil {
		return err
	}
	if resp.ID != req.ID {
		return domain.NewError(domain.KindUnknownField, "probe", addr,
			fmt.Errorf("response id %q does not match request", resp.ID))
	}
	// A remote error still proves the endpoint speaks the protocol.
	return nil
}
