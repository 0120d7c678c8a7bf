// Package routing handles endpoint selection, rotation, and retry decisions.
//
// This package contains:
//   - Pool: ordered endpoint list with a round-robin active pointer
//   - StateStore: persistence for endpoint reachability marks
//   - RetryController: attempt counting and backoff for one logical call
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// ErrNoEndpoints is returned when a pool is built from an empty list.
var ErrNoEndpoints = errors.New("no endpoints configured")

// storeTimeout bounds each StateStore call made on behalf of the pool.
const storeTimeout = 2 * time.Second

// Pool holds the configured endpoints and the active index.
// Rotation is round-robin and wraps; endpoints are never removed, so an
// endpoint marked unreachable is tried again on a later cycle.
type Pool struct {
	mu        sync.RWMutex
	endpoints []domain.Endpoint
	active    int
	rotations int

	store StateStore
	log   *slog.Logger
	now   func() time.Time
}

// NewPool creates a pool from addresses, restoring any marks held by store.
// A nil store keeps state in memory only.
func NewPool(
	ctx context.Context,
	addresses []string,
	store StateStore,
	logger *slog.Logger,
) (*Pool, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoints := make([]domain.Endpoint, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return nil, fmt.Errorf("empty endpoint address at position %d", len(endpoints))
		}
		endpoints = append(endpoints, domain.Endpoint{Address: addr, Reachable: true})
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	p := &Pool{
		endpoints: endpoints,
		store:     store,
		log:       logger,
		now:       time.Now,
	}
	p.restore(ctx)

	return p, nil
}

// Current returns the active endpoint.
func (p *Pool) Current() domain.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active]
}

// Rotate marks the active endpoint unreachable and advances to the next one.
func (p *Pool) Rotate(ctx context.Context) domain.Endpoint {
	p.mu.Lock()
	prev := &p.endpoints[p.active]
	prev.Reachable = false
	prev.LastFailureAt = p.now()
	marked := *prev

	p.active = (p.active + 1) % len(p.endpoints)
	p.rotations++
	next := p.endpoints[p.active]
	p.mu.Unlock()

	p.persist(ctx, marked)
	p.log.Debug("Rotated endpoint", "from", marked.Address, "to", next.Address)

	return next
}

// MarkReachable records a successful exchange with address.
func (p *Pool) MarkReachable(ctx context.Context, address string) {
	var changed []domain.Endpoint

	p.mu.Lock()
	for i := range p.endpoints {
		if p.endpoints[i].Address == address && !p.endpoints[i].Reachable {
			p.endpoints[i].Reachable = true
			changed = append(changed, p.endpoints[i])
		}
	}
	p.mu.Unlock()

	for _, ep := range changed {
		p.persist(ctx, ep)
	}
}

// Endpoints returns a snapshot of all endpoints in configured order.
func (p *Pool) Endpoints() []domain.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]domain.Endpoint, len(p.endpoints))
	copy(result, p.endpoints)
	return result
}

// ActiveIndex returns the position of the active endpoint.
func (p *Pool) ActiveIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Rotations returns how many times the pool has rotated.
func (p *Pool) Rotations() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rotations
}

// Len returns the number of endpoints.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

func (p *Pool) restore(ctx context.Context) {
	for i := range p.endpoints {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		saved, ok, err := p.store.Load(sctx, p.endpoints[i].Address)
		cancel()

		if err != nil {
			p.log.Warn("Failed to load endpoint state", "endpoint", p.endpoints[i].Address, "error", err)
			continue
		}
		if ok {
			p.endpoints[i].Reachable = saved.Reachable
			p.endpoints[i].LastFailureAt = saved.LastFailureAt
		}
	}
}

// persist writes a mark to the store. Store errors never fail a call.
func (p *Pool) persist(ctx context.Context, ep domain.Endpoint) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := p.store.Save(sctx, ep); err != nil {
		p.log.Warn("Failed to save endpoint state", "endpoint", ep.Address, "error", err)
	}
}
