// Package rpc provides a resilient RPC client over length-prefixed JSON frames.
//
// This package offers robust connectivity with:
//   - Multiple endpoint support with round-robin failover
//   - Bounded retries with capped exponential backoff
//   - Correlation of responses to requests by ID
//   - Tagged errors separating transient from protocol failures
//
// # Quick Start
//
//	import "github.com/vietddude/framerpc/internal/infra/rpc"
//
//	client, err := rpc.NewClient(ctx, rpc.Config{
//	    Endpoints: []string{"10.0.0.1:7000", "10.0.0.2:7000"},
//	    Retry:     rpc.RetryConfig{MaxAttempts: 5, InitialBackoff: 500 * time.Millisecond},
//	})
//	defer client.Close()
//
//	result, err := client.Call(ctx, "echo", []any{"hello"}, 2*time.Second)
//	if errors.Is(err, rpc.ErrAllEndpointsExhausted) {
//	    // every attempt hit a transport failure
//	}
//
// # Package Structure
//
//   - codec/     - frame encoding and decoding
//   - transport/ - one connection to one endpoint (TCP, loopback)
//   - routing/   - endpoint pool, rotation, retry controller
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/routing"
	"github.com/vietddude/framerpc/internal/infra/rpc/transport"
)

// =============================================================================
// Re-exported types
// =============================================================================

// Endpoint is one network address the client may connect to.
type Endpoint = domain.Endpoint

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// StateStore persists endpoint reachability.
type StateStore = routing.StateStore

// Transport is a connection to exactly one endpoint.
type Transport = transport.Transport

// TCPConfig holds TCP transport settings.
type TCPConfig = transport.TCPConfig

// Backoff strategy constants
const (
	BackoffExponential = routing.BackoffExponential
	BackoffConstant    = routing.BackoffConstant
)

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// Error sentinels, matched with errors.Is.
var (
	ErrConnectFailure        = domain.ErrConnectFailure
	ErrSendFailure           = domain.ErrSendFailure
	ErrTimeout               = domain.ErrTimeout
	ErrConnectionClosed      = domain.ErrConnectionClosed
	ErrMalformedFrame        = domain.ErrMalformedFrame
	ErrUnknownField          = domain.ErrUnknownField
	ErrAllEndpointsExhausted = domain.ErrAllEndpointsExhausted
)

// NewTCPFactory returns a transport factory for plain TCP connections.
func NewTCPFactory(cfg TCPConfig) transport.Factory {
	return transport.NewTCPFactory(cfg)
}
