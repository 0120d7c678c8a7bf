package server

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// RegisterBuiltins adds the demo methods:
//
//	ping         -> "pong"
//	echo a b ... -> [a, b, ...]
//	sleep ms     -> "slept", after ms milliseconds
//	fail msg     -> remote error with msg
func (s *Server) RegisterBuiltins() {
	s.Handle("ping", ping)
	s.Handle("echo", echo)
	s.Handle("sleep", sleep)
	s.Handle("fail", fail)
}

func ping(context.Context, []any) (any, error) {
	return "pong", nil
}

func echo(_ context.Context, params []any) (any, error) {
	return params, nil
}

func sleep(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, invalidParams("sleep takes one argument")
	}
	ms, ok := params[0].(float64)
	if !ok || ms < 0 {
		return nil, invalidParams("sleep duration must be a non-negative number of milliseconds")
	}

	timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return "slept", nil
	}
}

func fail(_ context.Context, params []any) (any, error) {
	msg := "requested failure"
	if len(params) > 0 {
		msg = fmt.Sprint(params[0])
	}
	return nil, &domain.ErrorInfo{Code: domain.CodeServerError, Message: msg}
}

func invalidParams(msg string) error {
	return &domain.ErrorInfo{Code: domain.CodeInvalidParams, Message: msg}
}
