package factory

import (
	"context"
	"fmt"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/resolver"
	"github.com/warp/attendance-engine/workflow"
)

// Targets are the stores a Master is loaded into. A nil store skips its
// records.
type Targets struct {
	Employees         generic.EffectiveStore[generic.Employee]
	Routes            generic.EffectiveStore[workflow.Route]
	RouteApplications generic.EffectiveStore[resolver.RouteApplication]
	Applications      generic.EffectiveStore[resolver.Application]
	TimeSettings      generic.EffectiveStore[resolver.TimeSetting]
	Cutoffs           generic.EffectiveStore[resolver.Cutoff]
	Calendar          attendance.Store
}

// Summary counts what Load wrote.
type Summary struct {
	Employees         int `json:"employees"`
	Routes            int `json:"routes"`
	RouteApplications int `json:"route_applications"`
	Applications      int `json:"applications"`
	TimeSettings      int `json:"time_settings"`
	Cutoffs           int `json:"cutoffs"`
	ScheduleDays      int `json:"schedule_days"`
	Suspensions       int `json:"suspensions"`
}

// Load inserts every record of m, assigning record ids from the target
// stores. It stops at the first failure; records already written stay.
func (f *MasterFactory) Load(ctx context.Context, m *Master, t Targets) (Summary, error) {
	var (
		sum Summary
		err error
	)
	if sum.Employees, err = insertAll(ctx, t.Employees, m.Employees, func(r *generic.Employee, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}
	if sum.Routes, err = insertAll(ctx, t.Routes, m.Routes, func(r *workflow.Route, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}
	if sum.TimeSettings, err = insertAll(ctx, t.TimeSettings, m.TimeSettings, func(r *resolver.TimeSetting, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}
	if sum.Cutoffs, err = insertAll(ctx, t.Cutoffs, m.Cutoffs, func(r *resolver.Cutoff, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}
	if sum.RouteApplications, err = insertAll(ctx, t.RouteApplications, m.RouteApplications, func(r *resolver.RouteApplication, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}
	if sum.Applications, err = insertAll(ctx, t.Applications, m.Applications, func(r *resolver.Application, id int64) { r.RecordID = id }); err != nil {
		return sum, err
	}

	if t.Calendar == nil {
		return sum, nil
	}
	for _, d := range m.Schedules {
		if err := t.Calendar.SaveSchedule(ctx, d.PersonalID, d.Date, d.WorkTypeCode); err != nil {
			return sum, fmt.Errorf("schedule %s %s: %w", d.PersonalID, generic.FormatISO(d.Date), err)
		}
		sum.ScheduleDays++
	}
	for _, s := range m.Suspensions {
		if err := t.Calendar.SaveSuspension(ctx, s); err != nil {
			return sum, fmt.Errorf("suspension %s: %w", s.PersonalID, err)
		}
		sum.Suspensions++
	}
	return sum, nil
}

func insertAll[T generic.Effective](ctx context.Context, store generic.EffectiveStore[T], recs []T, setID func(*T, int64)) (int, error) {
	if store == nil {
		return 0, nil
	}
	n := 0
	for _, rec := range recs {
		id, err := store.NextRecordID(ctx)
		if err != nil {
			return n, err
		}
		setID(&rec, id)
		if err := store.InsertVersion(ctx, rec); err != nil {
			return n, fmt.Errorf("%s on %s: %w", rec.NaturalKey(), generic.FormatISO(rec.EffectiveFrom()), err)
		}
		n++
	}
	return n, nil
}
