package domain

import "time"

// CallOutcome is the final result of one logical call.
type CallOutcome string

const (
	OutcomeSuccess       CallOutcome = "success"
	OutcomeRemoteError   CallOutcome = "remote_error"
	OutcomeProtocolError CallOutcome = "protocol_error"
	OutcomeExhausted     CallOutcome = "exhausted"
	OutcomeCanceled      CallOutcome = "canceled"
)

// CallRecord is written to the call journal once a logical call completes.
type CallRecord struct {
	ID           string        `json:"id"`
	Method       string        `json:"method"`
	Endpoint     string        `json:"endpoint"`
	Attempts     int           `json:"attempts"`
	Rotations    int           `json:"rotations"`
	Outcome      CallOutcome   `json:"outcome"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"started_at"`
}
