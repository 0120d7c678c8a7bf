package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/framerpc/internal/infra/storage"
)

// Pruner deletes old call records based on retention policy.
type Pruner struct {
	retention time.Duration
	journal   storage.CallJournal
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal storage.CallJournal) *Pruner {
	return &Pruner{
		retention: retention,
		journal:   journal,
		log:       slog.Default(),
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Interval is 10% of the retention period, between one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Prune deletes records older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)

	removed, err := p.journal.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune call journal", "cutoff", cutoff, "error", err)
		return 0
	}
	if removed > 0 {
		p.log.Debug("Pruned call journal", "removed", removed, "cutoff", cutoff)
	}
	return removed
}
