package rpc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/codec"
	"github.com/vietddude/framerpc/internal/infra/rpc/transport"
	"github.com/vietddude/framerpc/internal/infra/storage/memory"
	"github.com/vietddude/framerpc/internal/server"
)

var testEndpoints = []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"}

// fakeDialer hands out loopback transports and records every connect.
type fakeDialer struct {
	mu       sync.Mutex
	connects []string

	// connectErr decides the outcome of the nth connect (0-based).
	connectErr func(n int) error
	handler    transport.Handler
}

func (d *fakeDialer) factory() transport.Factory {
	return func() transport.Transport {
		return &fakeTransport{d: d}
	}
}

func (d *fakeDialer) connected() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.connects...)
}

type fakeTransport struct {
	d  *fakeDialer
	lb *transport.Loopback
}

func (t *fakeTransport) Connect(ctx context.Context, ep domain.Endpoint) error {
	t.d.mu.Lock()
	n := len(t.d.connects)
	t.d.connects = append(t.d.connects, ep.Address)
	t.d.mu.Unlock()

	if t.d.connectErr != nil {
		if err := t.d.connectErr(n); err != nil {
			return err
		}
	}
	t.lb = transport.NewLoopback(t.d.handler)
	return t.lb.Connect(ctx, ep)
}

func (t *fakeTransport) Send(ctx context.Context, frame []byte) error {
	return t.lb.Send(ctx, frame)
}

func (t *fakeTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return t.lb.Receive(ctx, timeout)
}

func (t *fakeTransport) Close() error {
	if t.lb == nil {
		return nil
	}
	return t.lb.Close()
}

func refused(int) error {
	return domain.NewError(domain.KindConnectFailure, "connect", "", errors.New("connection refused"))
}

func builtinHandler() transport.Handler {
	s := server.New(nil)
	s.RegisterBuiltins()
	return s.HandleFrame
}

func newTestClient(t *testing.T, d *fakeDialer, maxAttempts int, opts ...Option) *Client {
	t.Helper()

	cfg := Config{
		Endpoints: testEndpoints,
		Retry: RetryConfig{
			MaxAttempts:    maxAttempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		ReceiveTimeout: time.Second,
	}
	opts = append([]Option{WithTransportFactory(d.factory())}, opts...)

	c, err := NewClient(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_NoEndpoints(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty endpoint list")
	}
}

func TestClient_Call(t *testing.T) {
	d := &fakeDialer{handler: builtinHandler()}
	c := newTestClient(t, d, 3)

	got, err := c.Call(context.Background(), "ping", nil, 0)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "pong" {
		t.Errorf("result = %v, want pong", got)
	}

	got, err = c.Call(context.Background(), "echo", []any{"hello"}, 0)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	echoed, ok := got.([]any)
	if !ok || len(echoed) != 1 || echoed[0] != "hello" {
		t.Errorf("echo result = %#v", got)
	}

	// The connection is reused across calls to the same endpoint.
	if n := len(d.connected()); n != 1 {
		t.Errorf("connects = %d, want 1", n)
	}

	stats := c.Stats()
	if stats.Calls != 2 || stats.Successes != 2 || stats.Attempts != 2 || stats.Rotations != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClient_ExhaustsAfterMaxAttempts(t *testing.T) {
	for _, k := range []int{1, 3, 7} {
		d := &fakeDialer{connectErr: refused, handler: builtinHandler()}
		c := newTestClient(t, d, k)

		_, err := c.Call(context.Background(), "ping", nil, 0)
		if !errors.Is(err, ErrAllEndpointsExhausted) {
			t.Fatalf("k=%d: expected exhaustion, got %v", k, err)
		}
		if !errors.Is(err, ErrConnectFailure) {
			t.Errorf("k=%d: exhaustion should wrap the last failure, got %v", k, err)
		}

		connects := d.connected()
		if len(connects) != k {
			t.Fatalf("k=%d: attempts = %d", k, len(connects))
		}
		for i, addr := range connects {
			if want := testEndpoints[i%len(testEndpoints)]; addr != want {
				t.Errorf("k=%d: attempt %d went to %s, want %s", k, i, addr, want)
			}
		}
		if got := c.Stats().Rotations; got != int64(k-1) {
			t.Errorf("k=%d: rotations = %d, want %d", k, got, k-1)
		}
	}
}

func TestClient_FailOnceThenSucceed(t *testing.T) {
	d := &fakeDialer{
		connectErr: func(n int) error {
			if n == 0 {
				return refused(n)
			}
			return nil
		},
		handler: builtinHandler(),
	}
	c := newTestClient(t, d, 5)

	got, err := c.Call(context.Background(), "ping", nil, 0)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "pong" {
		t.Errorf("result = %v", got)
	}

	if got := c.Stats().Rotations; got != 1 {
		t.Errorf("rotations = %d, want 1", got)
	}
	if active := c.ActiveEndpoint(); active.Address != testEndpoints[1] {
		t.Errorf("active = %s, want %s", active.Address, testEndpoints[1])
	}

	eps := c.Endpoints()
	if eps[0].Reachable || eps[0].LastFailureAt.IsZero() {
		t.Errorf("first endpoint should be marked failed: %+v", eps[0])
	}
	if !eps[1].Reachable {
		t.Errorf("second endpoint should be reachable: %+v", eps[1])
	}
}

func TestClient_ReceiveTimeoutCountsAsAttempt(t *testing.T) {
	builtin := builtinHandler()
	var mu sync.Mutex
	calls := 0

	slowOnce := func(ctx context.Context, frame []byte) ([]byte, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return builtin(ctx, frame)
	}

	t.Run("retried", func(t *testing.T) {
		d := &fakeDialer{handler: slowOnce}
		c := newTestClient(t, d, 3)

		got, err := c.Call(context.Background(), "ping", nil, 20*time.Millisecond)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if got != "pong" {
			t.Errorf("result = %v", got)
		}
		if stats := c.Stats(); stats.Attempts != 2 || stats.Rotations != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("single attempt", func(t *testing.T) {
		d := &fakeDialer{handler: func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		c := newTestClient(t, d, 1)

		_, err := c.Call(context.Background(), "ping", nil, 20*time.Millisecond)
		if !errors.Is(err, ErrAllEndpointsExhausted) || !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected exhausted timeout, got %v", err)
		}
		if got := c.Stats().Attempts; got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})
}

func TestClient_MalformedFrameNotRetried(t *testing.T) {
	d := &fakeDialer{handler: func(context.Context, []byte) ([]byte, error) {
		// Declares 50 payload bytes but carries 2.
		return []byte{0, 0, 0, 50, '{', '}'}, nil
	}}
	c := newTestClient(t, d, 5)

	_, err := c.Call(context.Background(), "ping", nil, 0)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected malformed frame, got %v", err)
	}
	if errors.Is(err, ErrAllEndpointsExhausted) {
		t.Error("protocol errors must not be reported as exhaustion")
	}
	if n := len(d.connected()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if got := c.Stats().Rotations; got != 0 {
		t.Errorf("rotations = %d, want 0", got)
	}
}

func TestClient_RemoteError(t *testing.T) {
	d := &fakeDialer{handler: builtinHandler()}
	c := newTestClient(t, d, 5)

	_, err := c.Call(context.Background(), "fail", []any{"no funds"}, 0)

	var info *domain.ErrorInfo
	if !errors.As(err, &info) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if info.Code != domain.CodeServerError || info.Message != "no funds" {
		t.Errorf("error = %+v", info)
	}
	if n := len(d.connected()); n != 1 {
		t.Errorf("remote errors must not be retried, attempts = %d", n)
	}
	if !c.Endpoints()[0].Reachable {
		t.Error("endpoint answering with a remote error is reachable")
	}
}

func TestClient_ContextEndsDuringBackoff(t *testing.T) {
	d := &fakeDialer{connectErr: refused, handler: builtinHandler()}
	c, err := NewClient(context.Background(), Config{
		Endpoints: testEndpoints,
		Retry:     RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second},
	}, WithTransportFactory(d.factory()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = c.Call(ctx, "ping", nil, 0)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout wrapping deadline exceeded, got %v", err)
	}
	if errors.Is(err, ErrAllEndpointsExhausted) {
		t.Error("cancellation is not exhaustion")
	}
}

func TestClient_Journal(t *testing.T) {
	journal := memory.NewJournal(10)
	d := &fakeDialer{
		connectErr: func(n int) error {
			if n == 0 {
				return refused(n)
			}
			return nil
		},
		handler: builtinHandler(),
	}
	c := newTestClient(t, d, 5, WithJournal(journal))

	if _, err := c.Call(context.Background(), "ping", nil, 0); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	_, _ = c.Call(context.Background(), "fail", nil, 0)

	recs, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	remote, success := recs[0], recs[1]
	if remote.Outcome != domain.OutcomeRemoteError || remote.ErrorMessage == "" {
		t.Errorf("unexpected remote record: %+v", remote)
	}
	if success.Outcome != domain.OutcomeSuccess || success.Attempts != 2 || success.Rotations != 1 {
		t.Errorf("unexpected success record: %+v", success)
	}
	if success.Endpoint != testEndpoints[1] {
		t.Errorf("endpoint = %s, want %s", success.Endpoint, testEndpoints[1])
	}
}

func TestClient_Closed(t *testing.T) {
	d := &fakeDialer{handler: builtinHandler()}
	c := newTestClient(t, d, 1)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := c.Call(context.Background(), "ping", nil, 0); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestClient_DiscardsUncorrelatedResponses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		frame, err := codec.ReadFrame(bufio.NewReader(conn), codec.DefaultMaxFrameSize)
		if err != nil {
			return
		}
		req, err := codec.DecodeRequest(frame)
		if err != nil {
			return
		}

		stale, _ := codec.EncodeResponse(domain.Response{ID: "stale", Result: "wrong"})
		fresh, _ := codec.EncodeResponse(domain.Response{ID: req.ID, Result: "right"})
		_, _ = conn.Write(append(stale, fresh...))

		// Hold the connection open until the client hangs up.
		_, _ = conn.Read(make([]byte, 1))
	}()

	c, err := NewClient(context.Background(), Config{
		Endpoints: []string{ln.Addr().String()},
		Retry:     RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	got, err := c.Call(context.Background(), "anything", nil, time.Second)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "right" {
		t.Errorf("result = %v, want right", got)
	}
}

func TestClient_FailoverOverTCP(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := dead.Addr().String()
	_ = dead.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := server.New(nil)
	srv.RegisterBuiltins()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	c, err := NewClient(context.Background(), Config{
		Endpoints: []string{deadAddr, ln.Addr().String()},
		Retry:     RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	got, err := c.Call(context.Background(), "echo", []any{"over", "tcp"}, time.Second)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if echoed, ok := got.([]any); !ok || len(echoed) != 2 {
		t.Errorf("result = %#v", got)
	}
	if got := c.Stats().Rotations; got != 1 {
		t.Errorf("rotations = %d, want 1", got)
	}
}

func TestClient_ConcurrentCallers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := server.New(nil)
	srv.RegisterBuiltins()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	c, err := NewClient(context.Background(), Config{
		Endpoints: []string{ln.Addr().String()},
		Retry:     RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	const callers = 32
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			want := fmt.Sprintf("caller-%d", i)
			got, err := c.Call(context.Background(), "echo", []any{want}, time.Second)
			if err != nil {
				errs <- fmt.Errorf("%s: %w", want, err)
				return
			}
			echoed, ok := got.([]any)
			if !ok || len(echoed) != 1 || echoed[0] != want {
				errs <- fmt.Errorf("%s: got %#v", want, got)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if stats := c.Stats(); stats.Calls != callers || stats.Successes != callers {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClient_CallerDeadlineShorterThanReceiveTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Read the request, never answer.
		_, _ = codec.ReadFrame(bufio.NewReader(conn), codec.DefaultMaxFrameSize)
		_, _ = conn.Read(make([]byte, 1))
	}()

	var logs bytes.Buffer
	c, err := NewClient(context.Background(), Config{
		Endpoints: []string{ln.Addr().String()},
		Retry:     RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond},
	}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = c.Call(ctx, "ping", nil, 5*time.Second)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout wrapping deadline exceeded, got %v", err)
	}
	if errors.Is(err, ErrAllEndpointsExhausted) {
		t.Error("an expired caller deadline is not exhaustion")
	}
	if stats := c.Stats(); stats.Attempts != 1 || stats.Rotations != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if strings.Contains(logs.String(), "retrying") {
		t.Errorf("no retry should be logged once the caller's deadline passed:\n%s", logs.String())
	}
}
