// Package server implements a framed JSON RPC server.
// It is the counterpart of the rpc client: the serve command runs it as a
// demo backend and tests use it in-process.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc/codec"
	"github.com/vietddude/framerpc/internal/metrics"
)

// HandlerFunc serves one method. Returning a *domain.ErrorInfo sends that
// code and message to the caller; any other error is reported as a server error.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

// Server dispatches decoded requests to registered handlers.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	maxFrame uint32
	log      *slog.Logger
}

// New creates a server with no methods registered.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		maxFrame: codec.DefaultMaxFrameSize,
		log:      logger,
	}
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Methods returns the number of registered methods.
func (s *Server) Methods() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// HandleFrame decodes a request frame, runs its handler and returns the
// encoded response frame. An undecodable frame yields an error and no reply,
// since there is no ID to answer. If ctx ends while the handler runs, the
// ctx error is returned instead of a reply.
func (s *Server) HandleFrame(ctx context.Context, frame []byte) ([]byte, error) {
	req, err := codec.DecodeRequest(frame)
	if err != nil {
		metrics.ServerRequestsTotal.WithLabelValues("", "bad_frame").Inc()
		return nil, err
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := domain.Response{ID: req.ID}
	status := "ok"

	if !ok {
		status = "not_found"
		resp.Error = &domain.ErrorInfo{
			Code:    domain.CodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	} else {
		result, err := h(ctx, req.Params)
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ServerRequestsTotal.WithLabelValues(req.Method, "abandoned").Inc()
			return nil, ctxErr
		}
		if err != nil {
			status = "error"
			resp.Error = toErrorInfo(err)
		} else {
			resp.Result = result
		}
	}

	metrics.ServerRequestsTotal.WithLabelValues(req.Method, status).Inc()
	return codec.EncodeResponse(resp)
}

func toErrorInfo(err error) *domain.ErrorInfo {
	var info *domain.ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return &domain.ErrorInfo{Code: domain.CodeServerError, Message: err.Error()}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info("Frame server listening", "addr", ln.Addr().String(), "methods", s.Methods())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Accept fails.
// It closes ln and every open connection before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			g.Go(func() error {
				s.serveConn(gctx, conn)
				return nil
			})
		}
	})

	return g.Wait()
}

// serveConn answers frames on conn in order until the peer goes away.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	s.log.Debug("Connection accepted", "remote", remote)

	r := bufio.NewReader(conn)
	for {
		frame, err := codec.ReadFrame(r, s.maxFrame)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Debug("Connection closed", "remote", remote, "error", err)
			}
			return
		}

		reply, err := s.HandleFrame(ctx, frame)
		if err != nil {
			s.log.Warn("Dropping connection", "remote", remote, "error", err)
			return
		}
		if _, err := conn.Write(reply); err != nil {
			s.log.Debug("Write failed", "remote", remote, "error", err)
			return
		}
	}
}
