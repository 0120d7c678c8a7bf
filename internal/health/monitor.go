package health

import (
	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc"
)

// EndpointSource reports the endpoint pool. *rpc.Client satisfies it.
type EndpointSource interface {
	Endpoints() []domain.Endpoint
	ActiveEndpoint() domain.Endpoint
}

// StatsSource reports call counters. *rpc.Client satisfies it.
type StatsSource interface {
	Stats() rpc.Stats
}

// Monitor aggregates health status from the endpoint pool.
type Monitor struct {
	source EndpointSource
}

// NewMonitor creates a new health monitor.
func NewMonitor(source EndpointSource) *Monitor {
	return &Monitor{source: source}
}

// CheckHealth reports every endpoint. The system is healthy when all
// endpoints are reachable, critical when none is, degraded otherwise.
func (m *Monitor) CheckHealth() HealthReport {
	eps := m.source.Endpoints()
	active := m.source.ActiveEndpoint().Address

	report := HealthReport{Endpoints: make([]EndpointHealth, 0, len(eps))}
	reachable := 0

	for _, ep := range eps {
		h := EndpointHealth{
			Address: ep.Address,
			Status:  StatusHealthy,
			Active:  ep.Address == active,
		}
		if ep.Reachable {
			reachable++
		} else {
			h.Status = StatusDegraded
		}
		if ep.HasFailed() {
			t := ep.LastFailureAt
			h.LastFailureAt = &t
		}
		report.Endpoints = append(report.Endpoints, h)
	}

	switch {
	case reachable == len(eps):
		report.SystemStatus = StatusHealthy
	case reachable == 0:
		report.SystemStatus = StatusCritical
	default:
		report.SystemStatus = StatusDegraded
	}

	if s, ok := m.source.(StatsSource); ok {
		st := s.Stats()
		report.Stats = &CallStats{
			Calls:     st.Calls,
			Successes: st.Successes,
			Failures:  st.Failures,
			Attempts:  st.Attempts,
			Rotations: st.Rotations,
		}
	}

	return report
}
