package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/framerpc/internal/core/domain"
)

func TestEndpointEncoding(t *testing.T) {
	failed := time.UnixMilli(1767225600123)
	ep := domain.Endpoint{Address: "10.0.0.1:7000", Reachable: false, LastFailureAt: failed}

	fields := map[string]string{}
	for k, v := range encodeEndpoint(ep) {
		fields[k] = v.(string)
	}

	got, err := decodeEndpoint(ep.Address, fields)
	if err != nil {
		t.Fatalf("decodeEndpoint failed: %v", err)
	}
	if got.Reachable || !got.LastFailureAt.Equal(failed) {
		t.Errorf("decoded = %+v, want unreachable at %v", got, failed)
	}

	fresh, err := decodeEndpoint("x:1", map[string]string{"reachable": "true", "last_failure_at": "0"})
	if err != nil {
		t.Fatalf("decodeEndpoint failed: %v", err)
	}
	if fresh.HasFailed() {
		t.Error("zero timestamp should decode to no failure")
	}

	if _, err := decodeEndpoint("x:1", map[string]string{"reachable": "maybe"}); err == nil {
		t.Error("expected error for invalid reachable flag")
	}
}

// TestClient_Live runs against a real Redis when FRAMERPC_TEST_REDIS_URL is set.
func TestClient_Live(t *testing.T) {
	url := os.Getenv("FRAMERPC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FRAMERPC_TEST_REDIS_URL not set")
	}

	c, err := NewClient(Config{URL: url, KeyPrefix: "framerpc-test-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	addr := "127.0.0.1:7000"
	defer c.Forget(ctx, addr)

	if _, ok, err := c.Load(ctx, addr); err != nil || ok {
		t.Fatalf("Load on empty store: ok=%v err=%v", ok, err)
	}

	ep := domain.Endpoint{Address: addr, Reachable: false, LastFailureAt: time.Now().Truncate(time.Millisecond)}
	if err := c.Save(ctx, ep); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := c.Load(ctx, addr)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Reachable || !got.LastFailureAt.Equal(ep.LastFailureAt) {
		t.Errorf("Load = %+v, want %+v", got, ep)
	}
}
