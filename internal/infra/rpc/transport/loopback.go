package transport

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// Handler produces the reply frame for a request frame.
type Handler func(ctx context.Context, frame []byte) ([]byte, error)

// Loopback is an in-memory Transport that hands each sent frame to a Handler.
// The handler runs during Receive, which returns once the receive timeout
// passes even if the handler is still running.
type Loopback struct {
	handler Handler

	connected bool
	address   string
	pending   [][]byte
}

// NewLoopback creates a loopback transport backed by h.
func NewLoopback(h Handler) *Loopback {
	return &Loopback{handler: h}
}

// NewLoopbackFactory returns a Factory producing loopback transports backed by h.
func NewLoopbackFactory(h Handler) Factory {
	return func() Transport {
		return NewLoopback(h)
	}
}

func (l *Loopback) Connect(_ context.Context, ep domain.Endpoint) error {
	l.connected = true
	l.address = ep.Address
	l.pending = nil
	return nil
}

func (l *Loopback) Send(_ context.Context, frame []byte) error {
	if !l.connected {
		return domain.NewError(domain.KindSendFailure, "send", l.address, errNotConnected)
	}
	l.pending = append(l.pending, frame)
	return nil
}

func (l *Loopback) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if !l.connected {
		return nil, domain.NewError(domain.KindConnectionClosed, "receive", l.address, errNotConnected)
	}
	if len(l.pending) == 0 {
		return nil, domain.NewError(domain.KindConnectionClosed, "receive", l.address,
			errors.New("no request pending"))
	}

	frame := l.pending[0]
	l.pending = l.pending[1:]

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := l.handler(rctx, frame)
		done <- result{reply, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-rctx.Done():
		// The handler may ignore ctx; its late reply is dropped.
		return nil, domain.NewError(domain.KindTimeout, "receive", l.address, rctx.Err())
	}
	if res.err == nil {
		return res.reply, nil
	}
	err := res.err

	var kindErr *domain.Error
	switch {
	case errors.As(err, &kindErr):
		return nil, err
	case rctx.Err() != nil:
		return nil, domain.NewError(domain.KindTimeout, "receive", l.address, rctx.Err())
	default:
		return nil, domain.NewError(domain.KindConnectionClosed, "receive", l.address, err)
	}
}

func (l *Loopback) Close() error {
	l.connected = false
	l.pending = nil
	return nil
}
