package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/codec"
)

var errNotConnected = errors.New("not connected")

// TCPConfig holds TCP transport settings.
type TCPConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	MaxFrameSize   uint32
}

// DefaultTCPConfig provides sensible defaults.
var DefaultTCPConfig = TCPConfig{
	ConnectTimeout: 3 * time.Second,
	WriteTimeout:   5 * time.Second,
	MaxFrameSize:   codec.DefaultMaxFrameSize,
}

// TCP implements Transport over a plain TCP stream.
type TCP struct {
	cfg    TCPConfig
	dialer net.Dialer

	conn    net.Conn
	reader  *bufio.Reader
	address string
}

// NewTCP creates an unconnected TCP transport.
func NewTCP(cfg TCPConfig) *TCP {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultTCPConfig.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultTCPConfig.WriteTimeout
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultTCPConfig.MaxFrameSize
	}
	return &TCP{
		cfg:    cfg,
		dialer: net.Dialer{KeepAlive: 30 * time.Second},
	}
}

// NewTCPFactory returns a Factory producing TCP transports with cfg.
func NewTCPFactory(cfg TCPConfig) Factory {
	return func() Transport {
		return NewTCP(cfg)
	}
}

// Connect dials the endpoint.
func (t *TCP) Connect(ctx context.Context, ep domain.Endpoint) error {
	if t.conn != nil {
		_ = t.Close()
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	conn, err := t.dialer.DialContext(dialCtx, "tcp", ep.Address)
	if err != nil {
		return domain.NewError(domain.KindConnectFailure, "connect", ep.Address, err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.address = ep.Address
	return nil
}

// Send writes a frame, bounded by the write timeout and the ctx deadline.
func (t *TCP) Send(ctx context.Context, frame []byte) error {
	if t.conn == nil {
		return domain.NewError(domain.KindSendFailure, "send", t.address, errNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindSendFailure, "send", t.address, err)
	}

	writeBy, _ := deadline(ctx, t.cfg.WriteTimeout)
	if err := t.conn.SetWriteDeadline(writeBy); err != nil {
		return domain.NewError(domain.KindSendFailure, "send", t.address, err)
	}
	if _, err := t.conn.Write(frame); err != nil {
		return domain.NewError(domain.KindSendFailure, "send", t.address, err)
	}
	return nil
}

// Receive reads one frame. Cancelling ctx aborts a blocked read.
func (t *TCP) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, domain.NewError(domain.KindConnectionClosed, "receive", t.address, errNotConnected)
	}

	start := time.Now()
	readBy, ctxWins := deadline(ctx, timeout)
	if err := t.conn.SetReadDeadline(readBy); err != nil {
		return nil, domain.NewError(domain.KindConnectionClosed, "receive", t.address, err)
	}

	conn := t.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frame, err := codec.ReadFrame(t.reader, t.cfg.MaxFrameSize)
	if err == nil {
		return frame, nil
	}

	var kindErr *domain.Error
	if errors.As(err, &kindErr) {
		return nil, err
	}

	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) {
		wait := timeout
		switch ctxErr := ctx.Err(); {
		case ctxErr != nil:
			err, wait = ctxErr, time.Since(start)
		case ctxWins:
			// The read deadline can fire just before ctx reports it.
			err, wait = context.DeadlineExceeded, readBy.Sub(start)
		}
		return nil, domain.NewError(domain.KindTimeout, "receive", t.address,
			fmt.Errorf("no response within %v: %w", wait.Round(time.Millisecond), err))
	}

	return nil, domain.NewError(domain.KindConnectionClosed, "receive", t.address, err)
}

// Close closes the connection if one is open.
func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}
