/*
effective.go - Effective-dated record access

PURPOSE:
  Every piece of master data (employees, route applications, work-setting
  applications, routes, time settings, cutoffs) is versioned by the date the
  version takes effect. A "history add" inserts a new version; nothing is
  updated in place.

AS-OF RULE:
  For a natural key, the version with the greatest EffectiveDate <= target is
  authoritative on the target date. A zero target finds nothing.

INACTIVE vs DELETED:
  Inactive is business data: "from this date the key no longer applies".
  LatestAsOf still returns an inactive version (it is the authoritative
  one); LatestPerKey drops keys whose authoritative version is inactive.
  Logical deletion is a store concern: deleted rows are invisible to reads.

SEE ALSO:
  - store.go: EffectiveStore contract
  - store/memory.go, store/sqlite: implementations
  - resolver/: narrows candidates with LatestPerKey before matching
*/
package generic

import (
	"sort"
	"time"
)

// Effective is implemented by every versioned record.
type Effective interface {
	NaturalKey() string
	EffectiveFrom() time.Time
	IsInactive() bool
	ID() int64
}

// Version carries the common columns of a versioned record. Embed it.
type Version struct {
	RecordID      int64     `json:"record_id"`
	Code          string    `json:"code"`
	EffectiveDate time.Time `json:"effective_date"`
	Inactive      bool      `json:"inactive"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (v Version) NaturalKey() string       { return v.Code }
func (v Version) EffectiveFrom() time.Time { return v.EffectiveDate }
func (v Version) IsInactive() bool         { return v.Inactive }
func (v Version) ID() int64                { return v.RecordID }

// LatestAsOf returns the authoritative version in history on target.
// history may hold several keys only if the caller wants the overall latest.
func LatestAsOf[T Effective](history []T, target time.Time) (T, bool) {
	var best T
	found := false
	if target.IsZero() {
		return best, false
	}
	day := TruncateToDay(target)
	for _, rec := range history {
		eff := TruncateToDay(rec.EffectiveFrom())
		if eff.IsZero() || eff.After(day) {
			continue
		}
		if !found || eff.After(TruncateToDay(best.EffectiveFrom())) {
			best, found = rec, true
		}
	}
	return best, found
}

// Exact returns the version that takes effect exactly on date.
func Exact[T Effective](history []T, date time.Time) (T, bool) {
	var zero T
	if date.IsZero() {
		return zero, false
	}
	for _, rec := range history {
		if SameDay(rec.EffectiveFrom(), date) {
			return rec, true
		}
	}
	return zero, false
}

// SortByEffective orders records by key, then effective date ascending.
func SortByEffective[T Effective](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].NaturalKey() != records[j].NaturalKey() {
			return records[i].NaturalKey() < records[j].NaturalKey()
		}
		return records[i].EffectiveFrom().Before(records[j].EffectiveFrom())
	})
}

// LatestPerKey narrows records to the authoritative version of each key on
// target, dropping keys whose authoritative version is inactive. The result
// is ordered by natural key.
func LatestPerKey[T Effective](records []T, target time.Time) []T {
	if target.IsZero() {
		return nil
	}
	byKey := make(map[string][]T)
	var keys []string
	for _, rec := range records {
		k := rec.NaturalKey()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], rec)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		rec, ok := LatestAsOf(byKey[k], target)
		if !ok || rec.IsInactive() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Boundaries returns the distinct effective dates in records that fall in
// (from, to], ascending.
func Boundaries[T Effective](records []T, from, to time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, rec := range records {
		eff := TruncateToDay(rec.EffectiveFrom())
		if eff.IsZero() || !eff.After(from) || eff.After(to) || seen[eff] {
			continue
		}
		seen[eff] = true
		out = append(out, eff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
