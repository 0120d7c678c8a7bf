// Package health provides endpoint health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// EndpointHealth contains the health of one endpoint.
type EndpointHealth struct {
	Address       string       `json:"address"`
	Status        SystemStatus `json:"status"`
	Active        bool         `json:"active"`
	LastFailureAt *time.Time   `json:"last_failure_at,omitempty"`
}

// CallStats mirrors the client's call counters.
type CallStats struct {
	Calls     int64 `json:"calls"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Attempts  int64 `json:"attempts"`
	Rotations int64 `json:"rotations"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus     `json:"system_status"`
	Endpoints    []EndpointHealth `json:"endpoints"`
	Stats        *CallStats       `json:"stats,omitempty"`
}
