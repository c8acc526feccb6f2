package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Record families stored in effective_records.
const (
	FamilyEmployee         = "employee"
	FamilyRoute            = "route"
	FamilyRouteApplication = "route_application"
	FamilyApplication      = "application"
	FamilyTimeSetting      = "time_setting"
	FamilyCutoff           = "cutoff"
)

// =============================================================================
// EFFECTIVE STORE (generic.EffectiveStore interface)
// =============================================================================

// Effective is a typed view of one record family.
type Effective[T generic.Effective] struct {
	s      *Store
	family string
}

// Family returns the EffectiveStore for family. Record ids are unique across
// all families.
func Family[T generic.Effective](s *Store, family string) *Effective[T] {
	return &Effective[T]{s: s, family: family}
}

func (e *Effective[T]) InsertVersion(ctx context.Context, rec T) error {
	if rec.ID() <= 0 || rec.NaturalKey() == "" || rec.EffectiveFrom().IsZero() {
		return fmt.Errorf("%w: record id, key and effective date are required", generic.ErrInvalidInput)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", generic.ErrInvalidInput, e.family, err)
	}

	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	_, err = e.s.db.ExecContext(ctx, `
		INSERT INTO effective_records
		(family, record_id, code, effective_date, inactive, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.family, rec.ID(), rec.NaturalKey(), formatDate(rec.EffectiveFrom()),
		boolInt(rec.IsInactive()), string(payload), formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateVersion
		}
		return infra("insert "+e.family, err)
	}
	return nil
}

func (e *Effective[T]) LogicalDelete(ctx context.Context, key string, recordID int64) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	res, err := e.s.db.ExecContext(ctx, `
		UPDATE effective_records SET deleted = 1, updated_at = ?
		WHERE family = ? AND code = ? AND record_id = ? AND deleted = 0
	`, formatTime(time.Now()), e.family, key, recordID)
	if err != nil {
		return infra("delete "+e.family, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s %s record %d", generic.ErrNotFound, e.family, key, recordID)
	}
	return nil
}

func (e *Effective[T]) NextRecordID(ctx context.Context) (int64, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	id, err := nextSeq(ctx, e.s.db, "record", "effective_records", "record_id")
	return id, infra("next record id", err)
}

func (e *Effective[T]) FindHistory(ctx context.Context, key string) ([]T, error) {
	return e.query(ctx, `
		SELECT payload FROM effective_records
		WHERE family = ? AND code = ? AND deleted = 0
		ORDER BY effective_date ASC
	`, e.family, key)
}

func (e *Effective[T]) FindLatestAsOf(ctx context.Context, key string, date time.Time) (T, bool, error) {
	var zero T
	if date.IsZero() {
		return zero, false, nil
	}
	recs, err := e.query(ctx, `
		SELECT payload FROM effective_records
		WHERE family = ? AND code = ? AND deleted = 0 AND effective_date <= ?
		ORDER BY effective_date DESC
		LIMIT 1
	`, e.family, key, formatDate(date))
	if err != nil || len(recs) == 0 {
		return zero, false, err
	}
	return recs[0], true, nil
}

func (e *Effective[T]) FindExact(ctx context.Context, key string, date time.Time) (T, bool, error) {
	var zero T
	if date.IsZero() {
		return zero, false, nil
	}
	recs, err := e.query(ctx, `
		SELECT payload FROM effective_records
		WHERE family = ? AND code = ? AND deleted = 0 AND effective_date = ?
	`, e.family, key, formatDate(date))
	if err != nil || len(recs) == 0 {
		return zero, false, err
	}
	return recs[0], true, nil
}

func (e *Effective[T]) FindAll(ctx context.Context) ([]T, error) {
	return e.query(ctx, `
		SELECT payload FROM effective_records
		WHERE family = ? AND deleted = 0
		ORDER BY code ASC, effective_date ASC
	`, e.family)
}

func (e *Effective[T]) FindAllAsOf(ctx context.Context, date time.Time) ([]T, error) {
	if date.IsZero() {
		return nil, nil
	}
	recs, err := e.query(ctx, `
		SELECT payload FROM effective_records
		WHERE family = ? AND deleted = 0 AND effective_date <= ?
		ORDER BY code ASC, effective_date ASC
	`, e.family, formatDate(date))
	if err != nil {
		return nil, err
	}
	return generic.LatestPerKey(recs, date), nil
}

func (e *Effective[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	rows, err := e.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra("query "+e.family, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, infra("scan "+e.family, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, infra("decode "+e.family, err)
		}
		out = append(out, rec)
	}
	return out, infra("query "+e.family, rows.Err())
}
