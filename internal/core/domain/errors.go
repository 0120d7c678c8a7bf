package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags a failure so callers can branch on it without inspecting text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectFailure
	KindSendFailure
	KindTimeout
	KindConnectionClosed
	KindMalformedFrame
	KindUnknownField
	KindAllEndpointsExhausted
)

// String returns the snake_case name used in logs, metrics and the journal.
func (k ErrorKind) String() string {
	switch k {
	case KindConnectFailure:
		return "connect_failure"
	case KindSendFailure:
		return "send_failure"
	case KindTimeout:
		return "timeout"
	case KindConnectionClosed:
		return "connection_closed"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindUnknownField:
		return "unknown_field"
	case KindAllEndpointsExhausted:
		return "all_endpoints_exhausted"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind is transient.
// Protocol errors and exhaustion are never retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindConnectFailure, KindSendFailure, KindTimeout, KindConnectionClosed:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is. Any *Error of the matching kind satisfies them.
var (
	ErrConnectFailure        = errors.New("connect failure")
	ErrSendFailure           = errors.New("send failure")
	ErrTimeout               = errors.New("timeout")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrMalformedFrame        = errors.New("malformed frame")
	ErrUnknownField          = errors.New("unknown field")
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")
)

var kindSentinels = map[ErrorKind]error{
	KindConnectFailure:        ErrConnectFailure,
	KindSendFailure:           ErrSendFailure,
	KindTimeout:               ErrTimeout,
	KindConnectionClosed:      ErrConnectionClosed,
	KindMalformedFrame:        ErrMalformedFrame,
	KindUnknownField:          ErrUnknownField,
	KindAllEndpointsExhausted: ErrAllEndpointsExhausted,
}

// Error is the tagged error type returned by the codec, transports and client.
type Error struct {
	Kind     ErrorKind
	Op       string // "connect", "send", "receive", "decode", "call", ...
	Endpoint string // empty when no endpoint is involved
	Err      error
}

// NewError builds a tagged error.
func NewError(kind ErrorKind, op, endpoint string, err error) *Error {
	return &Error{Kind: kind, Op: op, Endpoint: endpoint, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
	}
	if e.Endpoint != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(e.Endpoint)
	}
	if sb.Len() > 0 {
		sb.WriteString(": ")
	}
	sb.WriteString(kindSentinelText(e.Kind))
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func kindSentinelText(k ErrorKind) string {
	if s, ok := kindSentinels[k]; ok {
		return s.Error()
	}
	return "unknown error"
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// Retryable reports whether the error is transient.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient transport failure.
// Errors that carry no kind are treated as permanent.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// ErrorInfo is an application error reported by the remote side in a response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Remote error codes used by the bundled server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)
