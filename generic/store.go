/*
store.go - Persistence contract for effective-dated master data

PURPOSE:
  Defines the interface between the core and the database for versioned
  records. Implementations: generic/store (memory) and store/sqlite.

APPEND-ONLY CONTRACT:
  - InsertVersion(): the only write that adds data
  - LogicalDelete(): hides one row from reads, keeps it for audit
  - NO Update() exists. A change is a new version.

UNIQUENESS:
  At most one visible version per (natural key, effective date).
  InsertVersion returns ErrDuplicateVersion otherwise.

ABSENT DATES:
  Queries with a zero date return "not found" and no error.

SEE ALSO:
  - effective.go: as-of selection shared by all implementations
  - employee.go: EmployeeDirectory adapter
*/
package generic

import (
	"context"
	"time"
)

// EffectiveStore persists versions of one record family.
type EffectiveStore[T Effective] interface {
	// FindLatestAsOf returns the version authoritative on date.
	FindLatestAsOf(ctx context.Context, key string, date time.Time) (T, bool, error)

	// FindExact returns the version taking effect exactly on date.
	FindExact(ctx context.Context, key string, date time.Time) (T, bool, error)

	// FindHistory returns every visible version of key, ascending by effective date.
	FindHistory(ctx context.Context, key string) ([]T, error)

	// FindAllAsOf returns the authoritative active version of every key on date.
	FindAllAsOf(ctx context.Context, date time.Time) ([]T, error)

	// FindAll returns every visible version of every key.
	FindAll(ctx context.Context) ([]T, error)

	// InsertVersion adds a version. rec.ID() must come from NextRecordID.
	InsertVersion(ctx context.Context, rec T) error

	// LogicalDelete hides the version identified by recordID.
	LogicalDelete(ctx context.Context, key string, recordID int64) error

	NextRecordID(ctx context.Context) (int64, error)
}
