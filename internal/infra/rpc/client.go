package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/codec"
	"github.com/vietddude/framerpc/internal/infra/rpc/routing"
	"github.com/vietddude/framerpc/internal/infra/rpc/transport"
	"github.com/vietddude/framerpc/internal/infra/storage"
	"github.com/vietddude/framerpc/internal/metrics"
)

// DefaultReceiveTimeout applies when neither the call nor the config sets one.
const DefaultReceiveTimeout = 5 * time.Second

// journalTimeout bounds each journal write.
const journalTimeout = 2 * time.Second

// ErrClientClosed is returned by Call after Close.
var ErrClientClosed = errors.New("client is closed")

// Config holds client settings.
type Config struct {
	Endpoints      []string
	Retry          RetryConfig
	ReceiveTimeout time.Duration
	ConnectTimeout time.Duration
}

// Stats holds counters since the client was created.
type Stats struct {
	Calls     int64
	Successes int64
	Failures  int64
	Attempts  int64
	Rotations int64
}

// Option configures a Client.
type Option func(*Client)

// WithTransportFactory replaces the default TCP transport.
func WithTransportFactory(f transport.Factory) Option {
	return func(c *Client) { c.newTransport = f }
}

// WithStateStore persists endpoint marks in s.
func WithStateStore(s routing.StateStore) Option {
	return func(c *Client) { c.store = s }
}

// WithJournal records every completed call in j.
func WithJournal(j storage.CallJournal) Option {
	return func(c *Client) { c.journal = j }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryConfig overrides Config.Retry.
func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) { c.cfg.Retry = rc }
}

// Client is the high-level interface for making RPC calls.
// Calls are serialized: one request is in flight at a time, and only the
// client replaces the active transport, always closing the old one first.
type Client struct {
	mu           sync.Mutex
	cfg          Config
	pool         *routing.Pool
	newTransport transport.Factory
	store        routing.StateStore
	journal      storage.CallJournal
	log          *slog.Logger

	conn     transport.Transport
	connAddr string
	closed   bool

	calls     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	attempts  atomic.Int64
	rotations atomic.Int64
}

// NewClient creates a client for the configured endpoints.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.ReceiveTimeout <= 0 {
		c.cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	c.cfg.Retry = c.cfg.Retry.WithDefaults()
	if c.newTransport == nil {
		c.newTransport = transport.NewTCPFactory(transport.TCPConfig{ConnectTimeout: c.cfg.ConnectTimeout})
	}

	pool, err := routing.NewPool(ctx, c.cfg.Endpoints, c.store, c.log)
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint pool: %w", err)
	}
	c.pool = pool

	for _, ep := range pool.Endpoints() {
		metrics.EndpointReachable.WithLabelValues(ep.Address).Set(gauge(ep.Reachable))
	}

	return c, nil
}

// Call sends method(params) and returns the remote result.
//
// Transient transport failures are retried on the next endpoint up to
// Retry.MaxAttempts; when they run out the error matches
// ErrAllEndpointsExhausted. Malformed or incomplete frames are returned
// immediately. A remote application error is returned as *domain.ErrorInfo.
// If ctx ends first the error matches ErrTimeout and the ctx error.
// timeout bounds each receive; zero uses Config.ReceiveTimeout.
func (c *Client) Call(ctx context.Context, method string, params []any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = c.cfg.ReceiveTimeout
	}

	req := domain.NewRequest(method, params)
	frame, err := codec.Encode(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	result, rec, err := c.dispatch(ctx, req, frame, timeout)
	c.mu.Unlock()

	c.finish(ctx, rec, err)
	return result, err
}

// dispatch runs the retry loop. The caller holds c.mu.
func (c *Client) dispatch(
	ctx context.Context,
	req domain.Request,
	frame []byte,
	timeout time.Duration,
) (any, *domain.CallRecord, error) {
	rec := &domain.CallRecord{ID: req.ID, Method: req.Method, StartedAt: time.Now()}
	rotationsBefore := c.pool.Rotations()

	ctrl := routing.NewRetryController(c.cfg.Retry)
	ctrl.Begin()

	var (
		result  any
		callErr error
	)

	for {
		ep := c.pool.Current()
		rec.Endpoint = ep.Address
		c.attempts.Add(1)

		resp, err := c.attempt(ctx, ep, req.ID, frame, timeout)
		if err == nil {
			ctrl.OnSuccess()
			metrics.AttemptsTotal.WithLabelValues(ep.Address, "success").Inc()
			c.markReachable(ctx, ep.Address)

			if resp.Error != nil {
				rec.Outcome, callErr = domain.OutcomeRemoteError, resp.Error
			} else {
				rec.Outcome, result = domain.OutcomeSuccess, resp.Result
			}
			break
		}

		c.resetConn()
		metrics.AttemptsTotal.WithLabelValues(ep.Address, domain.KindOf(err).String()).Inc()

		if ctxErr := callerDone(ctx); ctxErr != nil {
			rec.Outcome = domain.OutcomeCanceled
			callErr = domain.NewError(domain.KindTimeout, "call", ep.Address,
				fmt.Errorf("%w after %d attempts, last: %v", ctxErr, ctrl.Attempts(), err))
			break
		}

		wait, again := ctrl.OnFailure(err)
		if !again {
			if domain.IsRetryable(err) {
				rec.Outcome = domain.OutcomeExhausted
				callErr = domain.NewError(domain.KindAllEndpointsExhausted, "call", "",
					fmt.Errorf("%d attempts across %d endpoints: %w", ctrl.Attempts(), c.pool.Len(), ctrl.LastError()))
			} else {
				rec.Outcome, callErr = domain.OutcomeProtocolError, err
			}
			break
		}

		c.log.Warn("RPC attempt failed, retrying",
			"method", req.Method,
			"endpoint", ep.Address,
			"attempt", ctrl.Attempts(),
			"max_attempts", ctrl.Config().MaxAttempts,
			"backoff", wait,
			"error", err,
		)

		if err := ctrl.Wait(ctx, wait); err != nil {
			rec.Outcome = domain.OutcomeCanceled
			callErr = domain.NewError(domain.KindTimeout, "call", ep.Address, err)
			break
		}

		next := c.pool.Rotate(ctx)
		c.rotations.Add(1)
		metrics.RotationsTotal.WithLabelValues(ep.Address, next.Address).Inc()
		metrics.EndpointReachable.WithLabelValues(ep.Address).Set(0)

		ctrl.Resume()
	}

	rec.Attempts = ctrl.RetryState().Attempt
	rec.Rotations = c.pool.Rotations() - rotationsBefore
	rec.Duration = time.Since(rec.StartedAt)
	if callErr != nil {
		rec.ErrorMessage = callErr.Error()
		if rec.Outcome == domain.OutcomeRemoteError {
			rec.ErrorKind = string(domain.OutcomeRemoteError)
		} else {
			rec.ErrorKind = domain.KindOf(callErr).String()
		}
	}

	return result, rec, callErr
}

// callerDone reports why ctx is finished. A passed deadline counts even
// before ctx.Err reports it.
func callerDone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

// attempt performs one send and waits for the correlated response.
func (c *Client) attempt(
	ctx context.Context,
	ep domain.Endpoint,
	id string,
	frame []byte,
	timeout time.Duration,
) (domain.Response, error) {
	if c.conn == nil || c.connAddr != ep.Address {
		c.resetConn()

		conn := c.newTransport()
		if err := conn.Connect(ctx, ep); err != nil {
			return domain.Response{}, err
		}
		c.conn, c.connAddr = conn, ep.Address
	}

	if err := c.conn.Send(ctx, frame); err != nil {
		return domain.Response{}, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.Response{}, domain.NewError(domain.KindTimeout, "receive", ep.Address,
				fmt.Errorf("no correlated response within %v", timeout))
		}

		raw, err := c.conn.Receive(ctx, remaining)
		if err != nil {
			return domain.Response{}, err
		}

		resp, err := codec.Decode(raw)
		if err != nil {
			return domain.Response{}, err
		}
		if resp.ID != id {
			c.log.Debug("Discarding uncorrelated response", "endpoint", ep.Address, "want", id, "got", resp.ID)
			continue
		}
		return resp, nil
	}
}

func (c *Client) markReachable(ctx context.Context, address string) {
	c.pool.MarkReachable(ctx, address)
	metrics.EndpointReachable.WithLabelValues(address).Set(1)
}

// resetConn closes and drops the active transport. The caller holds c.mu.
func (c *Client) resetConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.Debug("Error closing transport", "endpoint", c.connAddr, "error", err)
	}
	c.conn = nil
	c.connAddr = ""
}

func (c *Client) finish(ctx context.Context, rec *domain.CallRecord, err error) {
	c.calls.Add(1)
	if err == nil {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}

	metrics.CallsTotal.WithLabelValues(rec.Method, string(rec.Outcome)).Inc()
	metrics.CallLatency.WithLabelValues(rec.Method).Observe(rec.Duration.Seconds())

	if rec.Outcome == domain.OutcomeExhausted || rec.Outcome == domain.OutcomeProtocolError {
		c.log.Error("RPC call failed",
			"method", rec.Method,
			"id", rec.ID,
			"attempts", rec.Attempts,
			"outcome", rec.Outcome,
			"error", err,
		)
	}

	if c.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if jerr := c.journal.Record(jctx, rec); jerr != nil {
		c.log.Warn("Failed to record call", "id", rec.ID, "error", jerr)
	}
}

// Endpoints returns a snapshot of the endpoint pool.
func (c *Client) Endpoints() []Endpoint {
	return c.pool.Endpoints()
}

// ActiveEndpoint returns the endpoint the next call starts on.
func (c *Client) ActiveEndpoint() Endpoint {
	return c.pool.Current()
}

// Stats returns call counters.
func (c *Client) Stats() Stats {
	return Stats{
		Calls:     c.calls.Load(),
		Successes: c.successes.Load(),
		Failures:  c.failures.Load(),
		Attempts:  c.attempts.Load(),
		Rotations: c.rotations.Load(),
	}
}

// Close closes the active connection. Later calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.resetConn()
	return nil
}

func gauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
