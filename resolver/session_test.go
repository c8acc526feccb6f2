package resolver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/generic/store"
	"github.com/warp/attendance-engine/resolver"
)

type fixture struct {
	employees  *store.Memory[generic.Employee]
	routeApps  *store.Memory[resolver.RouteApplication]
	apps       *store.Memory[resolver.Application]
	settings   *store.Memory[resolver.TimeSetting]
	cutoffs    *store.Memory[resolver.Cutoff]
	service    *resolver.Service
	nextRecord int64
}

func newFixture() *fixture {
	f := &fixture{
		employees: store.NewMemory[generic.Employee](),
		routeApps: store.NewMemory[resolver.RouteApplication](),
		apps:      store.NewMemory[resolver.Application](),
		settings:  store.NewMemory[resolver.TimeSetting](),
		cutoffs:   store.NewMemory[resolver.Cutoff](),
	}
	f.service = resolver.NewService(resolver.Sources{
		Employees:         generic.DirectoryFromStore(f.employees),
		RouteApplications: f.routeApps,
		Applications:      f.apps,
		TimeSettings:      f.settings,
		Cutoffs:           f.cutoffs,
	}, zap.NewNop())
	return f
}

func (f *fixture) id() int64 {
	f.nextRecord++
	return f.nextRecord
}

func (f *fixture) addEmployee(t *testing.T, e generic.Employee) {
	t.Helper()
	e.RecordID = f.id()
	require.NoError(t, f.employees.InsertVersion(context.Background(), e))
}

func (f *fixture) addApp(t *testing.T, a resolver.Application) {
	t.Helper()
	a.RecordID = f.id()
	require.NoError(t, f.apps.InsertVersion(context.Background(), a))
}

func (f *fixture) addRouteApp(t *testing.T, code, wfType, route string, scope resolver.Scope) {
	t.Helper()
	require.NoError(t, f.routeApps.InsertVersion(context.Background(), resolver.RouteApplication{
		Version:      generic.Version{RecordID: f.id(), Code: code, EffectiveDate: jan1},
		Target:       resolver.Target{ApplicationType: resolver.ApplicationMaster, Scope: scope},
		WorkflowType: wfType,
		RouteCode:    route,
	}))
}

// =============================================================================
// ROUTE RESOLUTION
// =============================================================================

func TestSession_RouteForFiltersByWorkflowType(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addRouteApp(t, "RA1", "TIME", "R-TIME", resolver.Scope{WorkPlace: "WP1"})
	f.addRouteApp(t, "RA2", "HOLIDAY", "R-HOL", resolver.Scope{WorkPlace: "WP1"})
	f.addRouteApp(t, "RA3", "HOLIDAY", "R-ALL", resolver.Scope{})

	code, err := f.service.RouteFor(context.Background(), "P1", jan1, "HOLIDAY")
	require.NoError(t, err)
	assert.Equal(t, "R-HOL", code)

	code, err = f.service.RouteFor(context.Background(), "P1", jan1, "TIME")
	require.NoError(t, err)
	assert.Equal(t, "R-TIME", code)
}

func TestSession_RouteForMissingIsResolutionError(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))

	_, err := f.service.RouteFor(context.Background(), "P1", jan1, "TIME")

	var re *generic.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "P1", re.PersonalID)
	assert.ErrorIs(t, err, generic.ErrConfigurationMissing)
}

func TestSession_UnknownOrRetiredEmployee(t *testing.T) {
	f := newFixture()
	gone := employee("P1", day(2025, time.June, 1), "WP1", "", "", "")
	gone.Inactive = true
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addEmployee(t, gone)
	f.addApp(t, master("A", jan1, resolver.Scope{}))

	s := f.service.NewSession()
	_, ok, err := s.Application(context.Background(), "P1", day(2025, time.May, 31))
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Application(context.Background(), "P1", day(2025, time.June, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Application(context.Background(), "NOBODY", jan1)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// WORK SETTING APPLICATIONS
// =============================================================================

func TestSession_ApplicationsForTermFollowsEmployeeTransfer(t *testing.T) {
	f := newFixture()
	// GIVEN: P1 moves from WP1 to WP2 on the 16th
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addEmployee(t, employee("P1", day(2025, time.March, 16), "WP2", "", "", ""))
	f.addApp(t, master("A1", jan1, resolver.Scope{WorkPlace: "WP1"}))
	f.addApp(t, master("A2", jan1, resolver.Scope{WorkPlace: "WP2"}))

	// WHEN
	got, err := f.service.NewSession().ApplicationsForTerm(context.Background(), "P1",
		day(2025, time.March, 1), day(2025, time.March, 31))

	// THEN
	require.NoError(t, err)
	assert.Len(t, got, 31)
	assert.Equal(t, "A1", got["2025-03-15"].Code)
	assert.Equal(t, "A2", got["2025-03-16"].Code)
	assert.Equal(t, "A2", got["2025-03-31"].Code)
}

func TestSession_ApplicationsForTermFollowsRuleChange(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addApp(t, master("A1", jan1, resolver.Scope{WorkPlace: "WP1"}))
	retired := master("A1", day(2025, time.March, 10), resolver.Scope{WorkPlace: "WP1"})
	retired.Inactive = true
	f.addApp(t, retired)

	got, err := f.service.NewSession().ApplicationsForTerm(context.Background(), "P1",
		day(2025, time.March, 1), day(2025, time.March, 31))

	require.NoError(t, err)
	assert.Len(t, got, 9)
	_, ok := got["2025-03-10"]
	assert.False(t, ok)
}

func TestSession_HasPersonalApplication(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addApp(t, person("PA", jan1, "P2,P1"))

	s := f.service.NewSession()
	ok, err := s.HasPersonalApplication(context.Background(), "P1", jan1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasPersonalApplication(context.Background(), "P3", jan1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_ApplicationEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	app := master("A1", jan1, resolver.Scope{})
	app.WorkSettingCode = "WS1"
	app.CutoffCode = "C15"
	f.addApp(t, app)

	_, err := f.service.NewSession().ApplicationEntity(ctx, "P1", day(2025, time.March, 20))
	var re *generic.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "time setting WS1", re.What)

	require.NoError(t, f.settings.InsertVersion(ctx, resolver.TimeSetting{
		Version: generic.Version{RecordID: f.id(), Code: "WS1", EffectiveDate: jan1},
		Name:    "standard",
	}))
	require.NoError(t, f.cutoffs.InsertVersion(ctx, resolver.Cutoff{
		Version:   generic.Version{RecordID: f.id(), Code: "C15", EffectiveDate: jan1},
		CutoffDay: 15,
	}))

	ent, err := f.service.NewSession().ApplicationEntity(ctx, "P1", day(2025, time.March, 20))
	require.NoError(t, err)
	assert.Equal(t, "standard", ent.TimeSetting.Name)
	assert.Equal(t, day(2025, time.March, 16), ent.TermStart)
	assert.Equal(t, day(2025, time.April, 15), ent.TermEnd)
}

func TestSession_CheckApplicationRecordsDefect(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	msgs := generic.NewMessages()

	ok, err := f.service.NewSession().CheckApplication(context.Background(), "P1", day(2025, time.March, 3), msgs)

	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, msgs.Errors(), 1)
	assert.Equal(t, generic.MsgSettingApplicationDefect, msgs.Errors()[0].Code)
	assert.Equal(t, "2025/03/03", msgs.Errors()[0].Args[0])
}

// =============================================================================
// CACHING
// =============================================================================

type countingDirectory struct {
	generic.EmployeeDirectory
	mu    sync.Mutex
	calls int
}

func (d *countingDirectory) FindHistory(ctx context.Context, pid string) ([]generic.Employee, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.EmployeeDirectory.FindHistory(ctx, pid)
}

func TestSession_LoadsEmployeeHistoryOnce(t *testing.T) {
	f := newFixture()
	f.addEmployee(t, employee("P1", jan1, "WP1", "", "", ""))
	f.addApp(t, master("A", jan1, resolver.Scope{}))
	dir := &countingDirectory{EmployeeDirectory: generic.DirectoryFromStore(f.employees)}
	f.service.Sources.Employees = dir

	s := f.service.NewSession()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Application(context.Background(), "P1", day(2025, time.March, 1))
		}()
	}
	wg.Wait()
	_, ok, err := s.Application(context.Background(), "P1", day(2025, time.March, 2))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, dir.calls)

	// A new session sees fresh data.
	_, _, _ = f.service.NewSession().Employee(context.Background(), "P1", jan1)
	assert.Equal(t, 2, dir.calls)
}
