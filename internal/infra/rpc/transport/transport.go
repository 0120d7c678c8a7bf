// Package transport owns the single live connection to one endpoint.
//
// Implementations report failures as *domain.Error with one of the transient
// kinds (connect failure, send failure, timeout, connection closed), so the
// retry logic can tell "maybe still processing" apart from "definitely dead".
package transport

import (
	"context"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// Transport is a connection to exactly one endpoint.
// A Transport is used by one goroutine at a time.
type Transport interface {
	// Connect opens the connection. Calling Connect on an open transport
	// closes the previous connection first.
	Connect(ctx context.Context, ep domain.Endpoint) error

	// Send writes one encoded frame.
	Send(ctx context.Context, frame []byte) error

	// Receive reads one frame. timeout is a hard upper bound; the ctx
	// deadline applies too, whichever is sooner.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Factory builds a fresh, unconnected transport.
type Factory func() Transport

// deadline returns the earlier of now+timeout and the ctx deadline, and
// whether the ctx deadline is the one that applies.
func deadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline, true
	}
	return d, false
}
