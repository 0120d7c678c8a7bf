package storage

import (
	"context"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 50

// CallJournal records the outcome of every logical call.
type CallJournal interface {
	// Record appends one completed call
	Record(ctx context.Context, rec *domain.CallRecord) error

	// Recent returns the newest records first
	Recent(ctx context.Context, limit int) ([]domain.CallRecord, error)

	// DeleteOlderThan removes records started before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
