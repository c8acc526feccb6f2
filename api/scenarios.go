/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built master documents that populate the database with
	employees, routes, rule families and schedules, so the workflow and
	cutoff checks can be tried without hand-writing master data.

AVAILABLE SCENARIOS:

	single-approver:  One section, one-stage route, month-end cutoff
	two-stage:        Section route with two stages, a personal application
	                  override and a cutoff on the 15th
	cutoff-backlog:   single-approver plus applied, approved and missing
	                  attendance so the cutoff check has findings

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Parse the master document via factory
 3. Load it into the sqlite families
 4. Optionally submit requests through the request service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cutoff-backlog"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/master.go: master document schema
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-approver",
		Name:        "Single Approver",
		Description: "One section routed to its manager, month-end cutoff",
		Category:    "workflow",
	},
	{
		ID:          "two-stage",
		Name:        "Two-Stage Route",
		Description: "Manager then HR approval, personal application override, cutoff on the 15th",
		Category:    "workflow",
	},
	{
		ID:          "cutoff-backlog",
		Name:        "Cutoff Backlog",
		Description: "Unapproved and missing attendance in March 2025 for the cutoff check",
		Category:    "cutoff",
	},
}

const singleApproverMaster = `{
  "employees": [
    {"personal_id": "P001", "employee_code": "E001", "last_name": "Sato", "first_name": "Ken",
     "work_place_code": "TKY", "employment_contract_code": "FT", "section_code": "DEV", "effective_date": "2025-01-01"},
    {"personal_id": "P900", "employee_code": "E900", "last_name": "Tanaka", "first_name": "Yui",
     "work_place_code": "TKY", "employment_contract_code": "FT", "section_code": "DEV", "position_code": "MGR",
     "effective_date": "2025-01-01"}
  ],
  "routes": [
    {"code": "R-DEV", "name": "Development manager", "effective_date": "2025-01-01", "stages": [["P900"]]}
  ],
  "route_applications": [
    {"code": "0001", "name": "Development", "effective_date": "2025-01-01", "application_type": "MASTER",
     "scope": {"section_code": "DEV"}, "workflow_type": "TIME", "route_code": "R-DEV"}
  ],
  "applications": [
    {"code": "0001", "name": "Company default", "effective_date": "2025-01-01", "application_type": "MASTER",
     "work_setting_code": "WS-STD", "cutoff_code": "C-EOM"}
  ],
  "time_settings": [
    {"code": "WS-STD", "name": "Standard", "effective_date": "2025-01-01", "general_work_hours": "8",
     "monthly_overtime_limit": "45", "start_day_time": "05:00"}
  ],
  "cutoffs": [{"code": "C-EOM", "name": "Month end", "effective_date": "2025-01-01", "cutoff_day": 0}],
  "schedules": [
    {"personal_id": "P001", "from": "2025-03-01", "to": "2025-03-31", "work_type_code": "normal", "weekends": true}
  ]
}`

const twoStageMaster = `{
  "employees": [
    {"personal_id": "P001", "employee_code": "E001", "last_name": "Sato", "first_name": "Ken",
     "work_place_code": "TKY", "employment_contract_code": "FT", "section_code": "DEV", "effective_date": "2025-01-01"},
    {"personal_id": "P002", "employee_code": "E002", "last_name": "Ito", "first_name": "Mao",
     "work_place_code": "OSK", "employment_contract_code": "PT", "section_code": "DEV", "effective_date": "2025-01-01"},
    {"personal_id": "P900", "employee_code": "E900", "last_name": "Tanaka", "first_name": "Yui",
     "work_place_code": "TKY", "employment_contract_code": "FT", "section_code": "DEV", "position_code": "MGR",
     "effective_date": "2025-01-01"},
    {"personal_id": "P950", "employee_code": "E950", "last_name": "Kato", "first_name": "Rin",
     "work_place_code": "TKY", "employment_contract_code": "FT", "section_code": "HR", "effective_date": "2025-01-01"}
  ],
  "routes": [
    {"code": "R-2STEP", "name": "Manager then HR", "effective_date": "2025-01-01", "stages": [["P900"], ["P950"]]}
  ],
  "route_applications": [
    {"code": "0001", "name": "Development", "effective_date": "2025-01-01", "application_type": "MASTER",
     "scope": {"section_code": "DEV"}, "workflow_type": "TIME", "route_code": "R-2STEP"}
  ],
  "applications": [
    {"code": "0001", "name": "Company default", "effective_date": "2025-01-01", "application_type": "MASTER",
     "work_setting_code": "WS-STD", "cutoff_code": "C-15"},
    {"code": "0002", "name": "Part time", "effective_date": "2025-01-01", "application_type": "PERSON",
     "personal_ids": ["P002"], "work_setting_code": "WS-PT", "cutoff_code": "C-15"}
  ],
  "time_settings": [
    {"code": "WS-STD", "name": "Standard", "effective_date": "2025-01-01", "general_work_hours": "8",
     "monthly_overtime_limit": "45", "start_day_time": "05:00"},
    {"code": "WS-PT", "name": "Part time", "effective_date": "2025-01-01", "general_work_hours": "4.5",
     "monthly_overtime_limit": "10", "start_day_time": "05:00"}
  ],
  "cutoffs": [{"code": "C-15", "name": "15th", "effective_date": "2025-01-01", "cutoff_day": 15}],
  "schedules": [
    {"personal_id": "P001", "from": "2025-02-16", "to": "2025-03-15", "work_type_code": "normal", "weekends": true},
    {"personal_id": "P002", "from": "2025-02-16", "to": "2025-03-15", "work_type_code": "short", "weekends": true}
  ]
}`

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()

	var load func(context.Context) error
	switch req.ScenarioID {
	case "single-approver":
		load = func(ctx context.Context) error { return h.loadMaster(ctx, singleApproverMaster) }
	case "two-stage":
		load = func(ctx context.Context) error { return h.loadMaster(ctx, twoStageMaster) }
	case "cutoff-backlog":
		load = h.loadCutoffBacklogScenario
	default:
		h.fail(w, r, fmt.Errorf("%w: unknown scenario %q", generic.ErrNotFound, req.ScenarioID))
		return
	}

	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	h.setScenario("")
	if err := load(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	h.setScenario(req.ScenarioID)
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// LoadSeedFile loads a master document from disk, as done at startup.
func (h *Handler) LoadSeedFile(ctx context.Context, path string) (factory.Summary, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return factory.Summary{}, fmt.Errorf("read seed file: %w", err)
	}
	m, err := h.Factory.ParseMaster(string(body))
	if err != nil {
		return factory.Summary{}, err
	}
	return h.Factory.Load(ctx, m, h.targets())
}

func (h *Handler) loadMaster(ctx context.Context, doc string) error {
	m, err := h.Factory.ParseMaster(doc)
	if err != nil {
		return err
	}
	_, err = h.Factory.Load(ctx, m, h.targets())
	return err
}

// loadCutoffBacklogScenario leaves March 2025 with one approved day, one
// day awaiting approval, an approved overtime request and the rest missing.
func (h *Handler) loadCutoffBacklogScenario(ctx context.Context) error {
	if err := h.loadMaster(ctx, singleApproverMaster); err != nil {
		return err
	}
	_, svc, _ := h.session()

	submit := func(r attendance.Request) (*workflow.Workflow, error) {
		_, wf, err := svc.Apply(ctx, attendance.Submission{Request: r}, workflow.Command{ActorID: r.PersonalID})
		return wf, err
	}
	day := func(d int) attendance.Request {
		return attendance.Request{Kind: attendance.KindAttendance, PersonalID: "P001", Date: generic.NewDate(2025, 3, d)}
	}

	approved, err := submit(day(3))
	if err != nil {
		return err
	}
	if _, err := svc.Transition(ctx, workflow.ActionApprove, workflow.Command{WorkflowID: approved.ID, ActorID: "P900"}); err != nil {
		return err
	}
	if _, err := submit(day(4)); err != nil {
		return err
	}
	overtime := attendance.Request{
		Kind: attendance.KindOvertime, PersonalID: "P001", Date: generic.NewDate(2025, 3, 3),
		OvertimeType: attendance.OvertimeAfter, Minutes: 60,
	}
	ot, err := submit(overtime)
	if err != nil {
		return err
	}
	_, err = svc.Transition(ctx, workflow.ActionApprove, workflow.Command{WorkflowID: ot.ID, ActorID: "P900"})
	return err
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}
