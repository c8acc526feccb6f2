package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/attendance-engine/generic"
)

type setting struct {
	generic.Version
	Value string
}

func ver(code string, eff time.Time, value string) setting {
	return setting{Version: generic.Version{Code: code, EffectiveDate: eff}, Value: value}
}

// =============================================================================
// LATEST AS OF
// =============================================================================

func TestLatestAsOf_PicksGreatestEffectiveDateNotAfterTarget(t *testing.T) {
	history := []setting{
		ver("S1", day(2025, time.April, 1), "april"),
		ver("S1", day(2025, time.January, 1), "january"),
		ver("S1", day(2025, time.July, 1), "july"),
	}
	tests := []struct {
		target time.Time
		want   string
		found  bool
	}{
		{day(2024, time.December, 31), "", false},
		{day(2025, time.January, 1), "january", true},
		{day(2025, time.June, 30), "april", true},
		{time.Date(2025, time.July, 1, 18, 0, 0, 0, time.UTC), "july", true},
		{day(2030, time.January, 1), "july", true},
		{time.Time{}, "", false},
	}
	for _, tt := range tests {
		got, ok := generic.LatestAsOf(history, tt.target)
		if ok != tt.found || got.Value != tt.want {
			t.Errorf("LatestAsOf(%s) = (%q, %v), want (%q, %v)",
				generic.FormatISO(tt.target), got.Value, ok, tt.want, tt.found)
		}
	}

	if _, ok := generic.LatestAsOf([]setting(nil), day(2025, time.January, 1)); ok {
		t.Error("empty history must find nothing")
	}
}

func TestLatestAsOf_ReturnsInactiveVersion(t *testing.T) {
	inactive := ver("S1", day(2025, time.March, 1), "closed")
	inactive.Inactive = true
	history := []setting{ver("S1", day(2025, time.January, 1), "open"), inactive}

	got, ok := generic.LatestAsOf(history, day(2025, time.April, 1))
	if !ok || !got.IsInactive() {
		t.Fatalf("expected the inactive version to be authoritative, got %+v", got)
	}
}

func TestExact(t *testing.T) {
	history := []setting{ver("S1", day(2025, time.January, 1), "a"), ver("S1", day(2025, time.April, 1), "b")}
	if got, ok := generic.Exact(history, day(2025, time.April, 1)); !ok || got.Value != "b" {
		t.Errorf("Exact = %+v, %v", got, ok)
	}
	if _, ok := generic.Exact(history, day(2025, time.April, 2)); ok {
		t.Error("Exact must not match a later date")
	}
}

func TestLatestPerKey_DropsInactiveAndOrdersByKey(t *testing.T) {
	closed := ver("B", day(2025, time.February, 1), "b2")
	closed.Inactive = true
	records := []setting{
		ver("C", day(2025, time.January, 1), "c1"),
		ver("B", day(2025, time.January, 1), "b1"),
		closed,
		ver("A", day(2025, time.January, 1), "a1"),
		ver("A", day(2025, time.June, 1), "a2"),
		ver("D", day(2026, time.January, 1), "future"),
	}

	got := generic.LatestPerKey(records, day(2025, time.March, 1))
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (%+v)", len(got), got)
	}
	if got[0].Value != "a1" || got[1].Value != "c1" {
		t.Errorf("got %q, %q; want a1, c1", got[0].Value, got[1].Value)
	}
}

func TestBoundaries(t *testing.T) {
	records := []setting{
		ver("A", day(2025, time.January, 1), ""),
		ver("A", day(2025, time.March, 10), ""),
		ver("B", day(2025, time.March, 10), ""),
		ver("B", day(2025, time.March, 20), ""),
		ver("C", day(2025, time.May, 1), ""),
	}
	got := generic.Boundaries(records, day(2025, time.March, 1), day(2025, time.March, 31))
	if len(got) != 2 || !got[0].Equal(day(2025, time.March, 10)) || !got[1].Equal(day(2025, time.March, 20)) {
		t.Errorf("Boundaries = %v", got)
	}
}

// =============================================================================
// ERRORS AND MESSAGES
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	transition := &generic.TransitionError{WorkflowID: 7, Action: "approve", From: "DRAFT"}
	if !errors.Is(transition, generic.ErrWorkflowProcess) || !generic.IsClientError(transition) {
		t.Error("transition error must be a workflow process failure")
	}
	resolution := &generic.ResolutionError{PersonalID: "P1", Date: day(2025, time.April, 1), What: "route application"}
	if !errors.Is(resolution, generic.ErrConfigurationMissing) {
		t.Error("resolution error must unwrap to ErrConfigurationMissing")
	}
	conflict := &generic.ExclusiveControlError{ID: "workflow 7", Expected: 1, Actual: 2}
	if !generic.IsRetryable(conflict) {
		t.Error("exclusive control must be retryable")
	}
	fatal := generic.Fatal("load", errors.New("disk gone"))
	if !generic.IsFatal(fatal) || generic.IsClientError(fatal) {
		t.Error("Fatal must wrap unknown errors")
	}
	if generic.Fatal("load", conflict) != error(conflict) {
		t.Error("Fatal must not wrap state errors")
	}
	if generic.Fatal("load", nil) != nil {
		t.Error("Fatal(nil) must be nil")
	}
}

func TestMessages_AccumulateAndMap(t *testing.T) {
	msgs := generic.NewMessages()
	msgs.AddFieldError(generic.MsgRequired, "personal_id", 0)
	msgs.AddFieldError(generic.MsgInvalidFormat, "date", 2, "2025-13-01")
	msgs.AddMessage(generic.MsgApproved)

	ok := msgs.AddFromError(&generic.ResolutionError{PersonalID: "P1", Date: day(2025, time.April, 1), What: "route application"}, generic.NoRow)
	if !ok {
		t.Fatal("resolution error should be recorded")
	}
	if msgs.AddFromError(generic.Fatal("save", errors.New("boom")), generic.NoRow) {
		t.Error("infrastructure errors must not be recorded")
	}

	errs := msgs.Errors()
	if !msgs.HasError() || len(errs) != 3 {
		t.Fatalf("errors = %+v", errs)
	}
	last := errs[2]
	if last.Code != generic.MsgSettingApplicationDefect || last.Args[0] != "2025-04-01" || last.Args[1] != "route application" {
		t.Errorf("mapped message = %+v", last)
	}
	if len(msgs.Notices()) != 1 {
		t.Errorf("notices = %+v", msgs.Notices())
	}
}
