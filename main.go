package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/framerpc/internal/infra/rpc"
	"github.com/vietddude/framerpc/internal/server"
)

// A self-contained failover demo: one dead endpoint, one live in-process server.
// Set DEMO_ENDPOINT to call a real server instead.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoints := []string{os.Getenv("DEMO_ENDPOINT")}
	if endpoints[0] == "" {
		// 1. Start a local frame server
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		srv := server.New(nil)
		srv.RegisterBuiltins()
		go func() { _ = srv.Serve(ctx, ln) }()

		// 2. Put a dead endpoint first so the client has to fail over
		endpoints = []string{"127.0.0.1:1", ln.Addr().String()}
	}

	// 3. Create client
	client, err := rpc.NewClient(ctx, rpc.Config{
		Endpoints: endpoints,
		Retry: rpc.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
		},
		ReceiveTimeout: 2 * time.Second,
	})
	if err != nil {
		log.Fatalf("client: %v", err)
	}
	defer client.Close()

	fmt.Println("=== Calling with failover ===")
	fmt.Println()

	// 4. Make calls
	calls := []struct {
		method string
		params []any
	}{
		{"ping", nil},
		{"echo", []any{"hello", 42}},
		{"sleep", []any{50}},
		{"fail", []any{"demo failure"}},
	}
	for i, c := range calls {
		result, err := client.Call(ctx, c.method, c.params, 0)
		if err != nil {
			log.Printf("Call %d (%s) failed: %v", i+1, c.method, err)
			continue
		}
		fmt.Printf("Call %d (%s): %v\n", i+1, c.method, result)
	}

	fmt.Println()

	// 5. Show endpoint state
	fmt.Println("=== Endpoints ===")
	active := client.ActiveEndpoint().Address
	for _, ep := range client.Endpoints() {
		marker := " "
		if ep.Address == active {
			marker = "*"
		}
		fmt.Printf("%s %s reachable=%v\n", marker, ep.Address, ep.Reachable)
	}

	stats := client.Stats()
	fmt.Printf("\nCalls: %d, attempts: %d, rotations: %d\n", stats.Calls, stats.Attempts, stats.Rotations)
}
