// Package store provides in-memory implementations of the store contracts.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory effective-dated store (for testing/dev)
// =============================================================================

type row[T generic.Effective] struct {
	rec     T
	deleted bool
}

// Memory holds the versions of one record family.
type Memory[T generic.Effective] struct {
	mu     sync.RWMutex
	rows   map[string][]row[T] // per key, ascending by effective date
	nextID int64
}

var _ generic.EffectiveStore[generic.Employee] = (*Memory[generic.Employee])(nil)

func NewMemory[T generic.Effective]() *Memory[T] {
	return &Memory[T]{rows: make(map[string][]row[T])}
}

// InsertVersion adds a version. Append-only.
func (m *Memory[T]) InsertVersion(_ context.Context, rec T) error {
	if rec.ID() <= 0 || rec.NaturalKey() == "" || rec.EffectiveFrom().IsZero() {
		return fmt.Errorf("%w: record id, key and effective date are required", generic.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[rec.NaturalKey()]
	for _, r := range rows {
		if !r.deleted && generic.SameDay(r.rec.EffectiveFrom(), rec.EffectiveFrom()) {
			return generic.ErrDuplicateVersion
		}
	}

	// Binary search for insertion point
	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].rec.EffectiveFrom().After(rec.EffectiveFrom())
	})
	rows = append(rows, row[T]{})
	copy(rows[i+1:], rows[i:])
	rows[i] = row[T]{rec: rec}
	m.rows[rec.NaturalKey()] = rows

	if rec.ID() > m.nextID {
		m.nextID = rec.ID()
	}
	return nil
}

func (m *Memory[T]) LogicalDelete(_ context.Context, key string, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[key]
	for i := range rows {
		if rows[i].rec.ID() == recordID && !rows[i].deleted {
			rows[i].deleted = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s record %d", generic.ErrNotFound, key, recordID)
}

func (m *Memory[T]) NextRecordID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *Memory[T]) FindHistory(_ context.Context, key string) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visibleLocked(key), nil
}

func (m *Memory[T]) FindLatestAsOf(_ context.Context, key string, date time.Time) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := generic.LatestAsOf(m.visibleLocked(key), date)
	return rec, ok, nil
}

func (m *Memory[T]) FindExact(_ context.Context, key string, date time.Time) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := generic.Exact(m.visibleLocked(key), date)
	return rec, ok, nil
}

func (m *Memory[T]) FindAll(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []T
	for key := range m.rows {
		out = append(out, m.visibleLocked(key)...)
	}
	generic.SortByEffective(out)
	return out, nil
}

func (m *Memory[T]) FindAllAsOf(ctx context.Context, date time.Time) ([]T, error) {
	all, err := m.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return generic.LatestPerKey(all, date), nil
}

func (m *Memory[T]) visibleLocked(key string) []T {
	var out []T
	for _, r := range m.rows[key] {
		if !r.deleted {
			out = append(out, r.rec)
		}
	}
	return out
}
