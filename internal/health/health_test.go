package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/rpc"
)

// =============================================================================
// Stubs
// =============================================================================

type stubSource struct {
	endpoints []domain.Endpoint
	active    int
}

func (s *stubSource) Endpoints() []domain.Endpoint    { return s.endpoints }
func (s *stubSource) ActiveEndpoint() domain.Endpoint { return s.endpoints[s.active] }

type stubStatsSource struct {
	stubSource
	stats rpc.Stats
}

func (s *stubStatsSource) Stats() rpc.Stats { return s.stats }

func endpoints(reachable ...bool) []domain.Endpoint {
	eps := make([]domain.Endpoint, len(reachable))
	for i, ok := range reachable {
		eps[i] = domain.Endpoint{Address: string(rune('a' + i)), Reachable: ok}
		if !ok {
			eps[i].LastFailureAt = time.Unix(1700000000, 0)
		}
	}
	return eps
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_CheckHealth(t *testing.T) {
	tests := []struct {
		name      string
		reachable []bool
		want      SystemStatus
	}{
		{"all reachable", []bool{true, true}, StatusHealthy},
		{"one down", []bool{false, true}, StatusDegraded},
		{"all down", []bool{false, false}, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&stubSource{endpoints: endpoints(tt.reachable...)})
			report := m.CheckHealth()
			if report.SystemStatus != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, report.SystemStatus)
			}
			if len(report.Endpoints) != len(tt.reachable) {
				t.Fatalf("Expected %d endpoints, got %d", len(tt.reachable), len(report.Endpoints))
			}
			if report.Stats != nil {
				t.Error("Expected no stats without a stats source")
			}
		})
	}
}

func TestMonitor_EndpointDetails(t *testing.T) {
	src := &stubStatsSource{
		stubSource: stubSource{endpoints: endpoints(false, true), active: 1},
		stats:      rpc.Stats{Calls: 3, Rotations: 1},
	}
	report := NewMonitor(src).CheckHealth()

	down, up := report.Endpoints[0], report.Endpoints[1]
	if down.Status != StatusDegraded || down.LastFailureAt == nil || down.Active {
		t.Errorf("unexpected failed endpoint: %+v", down)
	}
	if up.Status != StatusHealthy || up.LastFailureAt != nil || !up.Active {
		t.Errorf("unexpected active endpoint: %+v", up)
	}
	if report.Stats == nil || report.Stats.Calls != 3 || report.Stats.Rotations != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		reachable  []bool
		path       string
		wantStatus int
		wantBody   string
	}{
		{"healthy", []bool{true}, "/health", http.StatusOK, `"status":"healthy"`},
		{"critical", []bool{false}, "/health", http.StatusServiceUnavailable, `"status":"critical"`},
		{"detailed", []bool{false, true}, "/health/detailed", http.StatusOK, `"system_status":"degraded"`},
		{"metrics", []bool{true}, "/metrics", http.StatusOK, "go_goroutines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(NewMonitor(&stubSource{endpoints: endpoints(tt.reachable...)}), 0)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("Expected body to contain %s, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestServer_DetailedDecodes(t *testing.T) {
	srv := NewServer(NewMonitor(&stubSource{endpoints: endpoints(true, false)}), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if len(report.Endpoints) != 2 || report.Endpoints[1].LastFailureAt == nil {
		t.Errorf("unexpected report: %+v", report)
	}
}
