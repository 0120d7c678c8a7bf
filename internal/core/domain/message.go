package domain

import (
	"time"

	"github.com/google/uuid"
)

// Request is one outbound call. It is not modified after creation.
type Request struct {
	Method string
	Params []any
	ID     string
}

// NewRequest creates a request with a fresh correlation ID.
func NewRequest(method string, params []any) Request {
	return Request{
		Method: method,
		Params: params,
		ID:     uuid.NewString(),
	}
}

// Response is a decoded reply, matched to its request by ID.
type Response struct {
	ID     string
	Result any
	Error  *ErrorInfo
}

// RetryState tracks the attempts of one logical call.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Backoff     time.Duration
}
