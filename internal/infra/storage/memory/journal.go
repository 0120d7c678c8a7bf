package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/framerpc/internal/core/domain"
	"github.com/vietddude/framerpc/internal/infra/storage"
)

// DefaultCapacity is the number of records kept when none is given.
const DefaultCapacity = 1000

// Journal is an in-memory storage.CallJournal that keeps the newest records.
type Journal struct {
	mu       sync.RWMutex
	records  []domain.CallRecord
	capacity int
}

// NewJournal creates a journal holding at most capacity records.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity}
}

func (j *Journal) Record(_ context.Context, rec *domain.CallRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = append(j.records, *rec)
	if over := len(j.records) - j.capacity; over > 0 {
		j.records = append([]domain.CallRecord(nil), j.records[over:]...)
	}
	return nil
}

func (j *Journal) Recent(_ context.Context, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	n := min(limit, len(j.records))
	result := make([]domain.CallRecord, 0, n)
	for i := len(j.records) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, j.records[i])
	}
	return result, nil
}

func (j *Journal) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.records[:0]
	for _, rec := range j.records {
		if !rec.StartedAt.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	removed := int64(len(j.records) - len(kept))
	j.records = kept
	return removed, nil
}

// Len returns the number of stored records.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}
