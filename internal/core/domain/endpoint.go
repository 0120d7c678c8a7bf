package domain

import "time"

// Endpoint is one network address the client may connect to.
type Endpoint struct {
	Address       string    `json:"address"`
	Reachable     bool      `json:"reachable"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

// HasFailed reports whether the endpoint has ever been marked unreachable.
func (e Endpoint) HasFailed() bool {
	return !e.LastFailureAt.IsZero()
}
