/*
handlers.go - HTTP API handlers for the attendance workflow engine

PURPOSE:
  Exposes the workflow engine, request service, configuration resolver and
  cutoff detection via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Workflows:
    POST   /api/workflows                     Draft a bare workflow
    GET    /api/workflows/{id}                Get workflow
    GET    /api/workflows/{id}/comments       Comment trail, oldest first
    GET    /api/workflows/{id}/request        Request attached to the workflow
    POST   /api/workflows/{id}/{action}       appli, withdrawn, approve, revert,
                                              cancel-appli, cancel-revert, cancel,
                                              cancel-approve
    PUT    /api/workflows/{id}/approvers      Manual approver chain
    PUT    /api/workflows/{id}/self-approval  Mark as self approved
    DELETE /api/workflows/{id}?version=       Delete workflow and its request
    POST   /api/workflows/approval            Batch approval
    GET    /api/approvers/{id}/pending        Workflows waiting on an approver

  Requests:
    POST   /api/requests                      Draft or apply a request of any kind

  Employees and configuration:
    GET    /api/employees?date=                         Active employees
    GET    /api/employees/{id}?date=                    Employee version
    GET    /api/employees/{id}/requests?from=&to=       Requests in a term
    GET    /api/employees/{id}/route-application?date=&type=
    GET    /api/employees/{id}/application?date=        Application with settings
    GET    /api/employees/{id}/applications?from=&to=   Application per day

  Detection and admin:
    POST   /api/detect                        Cutoff checks for one employee
    POST   /api/master                        Load a master document
    POST   /api/admin/cutoff-check?date=      Run the cutoff check now
    GET    /api/admin/cutoff-runs?status=     Cutoff run history
    GET    /api/admin/cutoff-runs/{id}

ACTOR:
  The acting user is read from the X-Actor-ID header. Request submission
  falls back to the requester.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, illegal transitions, missing configuration
  - 404: Resource not found
  - 409: Exclusive control (stale version)
  - 500: Infrastructure errors

SECURITY NOTE:
  No authentication. The actor header is trusted as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Periodic cutoff checks
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/detect"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/resolver"
	"github.com/warp/attendance-engine/store/sqlite"
	"github.com/warp/attendance-engine/workflow"
)

const actorHeader = "X-Actor-ID"

// maxMasterBytes bounds a master document upload.
const maxMasterBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Factory   *factory.MasterFactory
	Employees generic.EmployeeDirectory
	Engine    *workflow.Engine
	Resolver  *resolver.Service
	Detector  *detect.Loader
	Scheduler *CutoffScheduler
	Now       func() time.Time
	Logger    *zap.Logger

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires every service onto store.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L().Named("api")
	}
	employees := generic.DirectoryFromStore(sqlite.Family[generic.Employee](store, sqlite.FamilyEmployee))
	res := resolver.NewService(resolver.Sources{
		Employees:         employees,
		RouteApplications: sqlite.Family[resolver.RouteApplication](store, sqlite.FamilyRouteApplication),
		Applications:      sqlite.Family[resolver.Application](store, sqlite.FamilyApplication),
		TimeSettings:      sqlite.Family[resolver.TimeSetting](store, sqlite.FamilyTimeSetting),
		Cutoffs:           sqlite.Family[resolver.Cutoff](store, sqlite.FamilyCutoff),
	}, logger.Named("resolver"))
	engine := workflow.NewEngine(store.Workflows(), sqlite.Family[workflow.Route](store, sqlite.FamilyRoute), res, logger.Named("workflow"))
	loader := &detect.Loader{Employees: employees, Requests: store.Requests(), Workflows: store.Workflows()}

	h := &Handler{
		Store:     store,
		Factory:   factory.NewMasterFactory(),
		Employees: employees,
		Engine:    engine,
		Resolver:  res,
		Detector:  loader,
		Now:       time.Now,
		Logger:    logger,
	}
	h.Scheduler = NewCutoffScheduler(store, employees, res, loader, logger.Named("scheduler"))
	return h
}

// session binds the engine and request service to a fresh resolver
// session, so one HTTP request sees one consistent configuration.
func (h *Handler) session() (*workflow.Engine, *attendance.Service, *resolver.Session) {
	sess := h.Resolver.NewSession()
	engine := h.Engine.WithResolver(sess)
	return engine, attendance.NewService(engine, h.Store.Requests(), h.Logger.Named("attendance")), sess
}

// targets are the stores a master document is loaded into.
func (h *Handler) targets() factory.Targets {
	return factory.Targets{
		Employees:         sqlite.Family[generic.Employee](h.Store, sqlite.FamilyEmployee),
		Routes:            sqlite.Family[workflow.Route](h.Store, sqlite.FamilyRoute),
		RouteApplications: sqlite.Family[resolver.RouteApplication](h.Store, sqlite.FamilyRouteApplication),
		Applications:      sqlite.Family[resolver.Application](h.Store, sqlite.FamilyApplication),
		TimeSettings:      sqlite.Family[resolver.TimeSetting](h.Store, sqlite.FamilyTimeSetting),
		Cutoffs:           sqlite.Family[resolver.Cutoff](h.Store, sqlite.FamilyCutoff),
		Calendar:          h.Store.Requests(),
	}
}

func (h *Handler) today() time.Time { return today(h.Now()) }

// =============================================================================
// WORKFLOW ENDPOINTS
// =============================================================================

// DraftWorkflow creates a workflow in DRAFT.
// POST /api/workflows
func (h *Handler) DraftWorkflow(w http.ResponseWriter, r *http.Request) {
	var req DraftWorkflowRequest
	if !h.bind(w, r, &req) {
		return
	}
	target, _ := generic.ParseDate(req.TargetDate)
	engine, _, _ := h.session()
	wf, err := engine.Draft(r.Context(), workflow.DraftInput{
		FunctionCode: req.FunctionCode,
		WorkflowType: req.WorkflowType,
		RequesterID:  req.RequesterID,
		TargetDate:   target,
		SelfApproval: req.SelfApproval,
		ActorID:      actorID(r),
		Comment:      req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowDTO(*wf))
}

// GetWorkflow returns one workflow.
// GET /api/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wf, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(*wf))
}

// GetComments returns the comment trail.
// GET /api/workflows/{id}/comments
func (h *Handler) GetComments(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	comments, err := h.Engine.CommentHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if comments == nil {
		comments = []workflow.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// GetWorkflowRequest returns the request attached to a workflow.
// GET /api/workflows/{id}/request
func (h *Handler) GetWorkflowRequest(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wf, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.Store.Requests().GetRequestByWorkflow(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestDTO{Request: req, Workflow: toWorkflowDTO(*wf)})
}

// WorkflowAction applies a named transition. Hyphens in the action are
// read as underscores: /cancel-appli and /cancel_appli are the same.
// POST /api/workflows/{id}/{action}
func (h *Handler) WorkflowAction(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action, err := workflow.ParseAction(strings.ReplaceAll(chi.URLParam(r, "action"), "-", "_"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ActionRequest
	if !h.bind(w, r, &req) {
		return
	}
	_, svc, _ := h.session()
	wf, err := svc.Transition(r.Context(), action, workflow.Command{
		WorkflowID: id,
		Version:    req.Version,
		ActorID:    actorID(r),
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(*wf))
}

// SetApprovers replaces the approver chain with a manual one.
// PUT /api/workflows/{id}/approvers
func (h *Handler) SetApprovers(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ApproversRequest
	if !h.bind(w, r, &req) {
		return
	}
	wf, err := h.Engine.SetApproverIDs(r.Context(), workflow.Command{
		WorkflowID: id,
		Version:    req.Version,
		ActorID:    actorID(r),
	}, req.Stages)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(*wf))
}

// SetSelfApproval marks a draft as self approved.
// PUT /api/workflows/{id}/self-approval
func (h *Handler) SetSelfApproval(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ActionRequest
	if !h.bind(w, r, &req) {
		return
	}
	wf, err := h.Engine.SetSelfApproval(r.Context(), workflow.Command{
		WorkflowID: id,
		Version:    req.Version,
		ActorID:    actorID(r),
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(*wf))
}

// DeleteWorkflow deletes a workflow and the request attached to it.
// DELETE /api/workflows/{id}?version=
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var version int64
	if v := r.URL.Query().Get("version"); v != "" {
		if version, err = strconv.ParseInt(v, 10, 64); err != nil || version < 0 {
			h.fail(w, r, fmt.Errorf("%w: version %q", generic.ErrInvalidInput, v))
			return
		}
	}
	_, svc, _ := h.session()
	if err := svc.Delete(r.Context(), workflow.Command{WorkflowID: id, Version: version, ActorID: actorID(r)}); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// BatchApproval approves every listed workflow independently. The
// response is 200 even when some items fail; see Failed and Errors.
// POST /api/workflows/approval
func (h *Handler) BatchApproval(w http.ResponseWriter, r *http.Request) {
	var req BatchApprovalRequest
	if !h.bind(w, r, &req) {
		return
	}
	items := make([]workflow.BatchItem, len(req.Items))
	for i, it := range req.Items {
		date, _ := generic.ParseDate(it.RequestDate)
		items[i] = workflow.BatchItem{WorkflowID: it.WorkflowID, PersonalID: it.PersonalID, RequestDate: date}
	}

	msgs := generic.NewMessages()
	engine, _, _ := h.session()
	results := engine.Approval(r.Context(), items, actorID(r), req.Comment, msgs)

	resp := BatchApprovalResponse{Results: make([]BatchItemResultDTO, len(results))}
	for i, res := range results {
		dto := BatchItemResultDTO{WorkflowID: res.Item.WorkflowID, PersonalID: res.Item.PersonalID}
		if res.Err != nil {
			dto.Error = res.Err.Error()
			resp.Failed++
			if generic.IsFatal(res.Err) {
				h.Logger.Error("batch approval item failed",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Int64("workflow_id", res.Item.WorkflowID),
					zap.Error(res.Err))
			}
		} else {
			dto.Status = res.Workflow.Status
			dto.Version = res.Workflow.Version
			resp.Approved++
		}
		resp.Results[i] = dto
	}
	resp.Errors = nonNil(msgs.Errors())
	resp.Notices = nonNil(msgs.Notices())
	writeJSON(w, http.StatusOK, resp)
}

// PendingApprovals lists workflows waiting on an approver.
// GET /api/approvers/{id}/pending
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	wfs, err := h.Engine.Pending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTOs(wfs))
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// SubmitRequest drafts or applies a request of any kind.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.bind(w, r, &req) {
		return
	}
	msgs := generic.NewMessages()
	request := req.toRequest(msgs)
	if msgs.HasError() {
		writeValidation(w, msgs)
		return
	}

	actor := actorID(r)
	if actor == "" {
		actor = req.PersonalID
	}
	sub := attendance.Submission{Request: request, SelfApproval: req.SelfApproval, Approvers: req.Approvers}
	cmd := workflow.Command{WorkflowID: req.WorkflowID, Version: req.Version, ActorID: actor, Comment: req.Comment}

	_, svc, _ := h.session()
	var (
		saved attendance.Request
		wf    *workflow.Workflow
		err   error
	)
	if req.Submit {
		saved, wf, err = svc.Apply(r.Context(), sub, cmd)
	} else {
		saved, wf, err = svc.Draft(r.Context(), sub, cmd)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if req.WorkflowID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, RequestDTO{Request: saved, Workflow: toWorkflowDTO(*wf)})
}

// =============================================================================
// EMPLOYEE AND CONFIGURATION ENDPOINTS
// =============================================================================

// ListEmployees returns every employee active on date (default today).
// GET /api/employees?date=
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	date, err := h.queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	emps, err := h.Employees.FindAllAsOf(r.Context(), date)
	if err != nil {
		h.fail(w, r, generic.Fatal("list employees", err))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(emps))
}

// GetEmployee returns the employee version in effect on date.
// GET /api/employees/{id}?date=
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	date, err := h.queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, _, sess := h.session()
	pid := chi.URLParam(r, "id")
	emp, ok, err := sess.Employee(r.Context(), pid, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, fmt.Errorf("%w: employee %s on %s", generic.ErrNotFound, pid, generic.FormatISO(date)))
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// ListEmployeeRequests returns requests touching [from, to].
// GET /api/employees/{id}/requests?from=&to=
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.queryTerm(w, r)
	if !ok {
		return
	}
	reqs, err := h.Store.Requests().ListRequests(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

// GetRouteApplication resolves the route application of an employee.
// GET /api/employees/{id}/route-application?date=&type=
func (h *Handler) GetRouteApplication(w http.ResponseWriter, r *http.Request) {
	date, err := h.queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = attendance.WorkflowTypeTime
	}
	_, _, sess := h.session()
	pid := chi.URLParam(r, "id")
	ra, ok, err := sess.RouteApplication(r.Context(), pid, date, typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, &generic.ResolutionError{PersonalID: pid, Date: date, What: "route application"})
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

// GetApplication resolves the application with its time setting, cutoff
// and the cutoff period containing date.
// GET /api/employees/{id}/application?date=
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	date, err := h.queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, _, sess := h.session()
	entity, err := sess.ApplicationEntity(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// ListApplications resolves the application of every day in [from, to],
// keyed by YYYY-MM-DD. Days without one are absent.
// GET /api/employees/{id}/applications?from=&to=
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.queryTerm(w, r)
	if !ok {
		return
	}
	_, _, sess := h.session()
	apps, err := sess.ApplicationsForTerm(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if apps == nil {
		apps = map[string]resolver.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// =============================================================================
// DETECTION AND ADMIN ENDPOINTS
// =============================================================================

// Detect runs the cutoff checks for one employee.
// POST /api/detect
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !h.bind(w, r, &req) {
		return
	}
	from, _ := generic.ParseDate(req.From)
	to, _ := generic.ParseDate(req.To)
	before, _ := generic.ParseDate(req.Before)
	msgs := generic.NewMessages()
	dateRangeError(msgs, from, to, "to")
	if msgs.HasError() {
		writeValidation(w, msgs)
		return
	}

	in, err := h.Detector.Load(r.Context(), req.PersonalID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res := detect.Run(in, before, req.Immediate)
	if res.Details == nil {
		res.Details = []detect.Detail{}
	}
	writeJSON(w, http.StatusOK, res)
}

// LoadMaster parses a master document and loads it.
// POST /api/master
func (h *Handler) LoadMaster(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMasterBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	m, err := h.Factory.ParseMaster(string(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sum, err := h.Factory.Load(r.Context(), m, h.targets())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.Info("master loaded",
		zap.Int("employees", sum.Employees),
		zap.Int("routes", sum.Routes),
		zap.Int("route_applications", sum.RouteApplications),
		zap.Int("applications", sum.Applications),
		zap.Int("schedule_days", sum.ScheduleDays))
	writeJSON(w, http.StatusCreated, sum)
}

// TriggerCutoffCheck runs the cutoff check for date (default today)
// regardless of earlier runs.
// POST /api/admin/cutoff-check?date=
func (h *Handler) TriggerCutoffCheck(w http.ResponseWriter, r *http.Request) {
	date, err := h.queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.Scheduler.RunNow(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListCutoffRuns returns the run history, newest first.
// GET /api/admin/cutoff-runs?status=
func (h *Handler) ListCutoffRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", sqlite.RunRunning, sqlite.RunCompleted, sqlite.RunFailed:
	default:
		h.fail(w, r, fmt.Errorf("%w: cutoff run status %q", generic.ErrInvalidInput, status))
		return
	}
	runs, err := h.Store.ListCutoffRuns(r.Context(), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

// GetCutoffRun returns one run with its blocked employees.
// GET /api/admin/cutoff-runs/{id}
func (h *Handler) GetCutoffRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetCutoffRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Health reports whether the database answers.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidation(w http.ResponseWriter, msgs *generic.Messages) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:    "Validation failed",
		Code:     generic.MsgInvalidValue,
		Messages: msgs.Errors(),
	})
}

// fail maps err to a status and message codes and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	if v, ok := attendance.AsValidation(err); ok {
		resp.Error = "Validation failed"
		resp.Code = generic.MsgInvalidValue
		resp.Messages = v.Messages
	} else {
		msgs := generic.NewMessages()
		if msgs.AddFromError(err, generic.NoRow) {
			resp.Messages = msgs.Errors()
			resp.Code = resp.Messages[0].Code
		} else if status == http.StatusInternalServerError {
			resp.Code = generic.MsgInfrastructure
		}
	}

	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", fields...)
	} else {
		h.Logger.Debug("request rejected", fields...)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case generic.IsFatal(err):
		return http.StatusInternalServerError
	case generic.IsRetryable(err):
		return http.StatusConflict
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// bind decodes and validates the body into dst. An empty body decodes as
// the zero value. On failure the response is written and false returned.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	msgs := generic.NewMessages()
	validateBody(dst, msgs)
	if msgs.HasError() {
		writeValidation(w, msgs)
		return false
	}
	return true
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func workflowID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: workflow id %q", generic.ErrInvalidInput, raw)
	}
	return id, nil
}

// queryDate parses a YYYY-MM-DD query parameter. Absent means today when
// defaultToday is set, the zero date otherwise.
func (h *Handler) queryDate(r *http.Request, name string, defaultToday bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if defaultToday {
			return h.today(), nil
		}
		return time.Time{}, nil
	}
	d, err := generic.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not YYYY-MM-DD", generic.ErrInvalidInput, name, raw)
	}
	return d, nil
}

// queryTerm reads a required from/to pair.
func (h *Handler) queryTerm(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	msgs := generic.NewMessages()
	for _, name := range []string{"from", "to"} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			msgs.AddFieldError(generic.MsgRequired, name, generic.NoRow, fieldLabel(name))
			continue
		}
		d, err := generic.ParseDate(raw)
		if err != nil {
			msgs.AddFieldError(generic.MsgInvalidFormat, name, generic.NoRow, fieldLabel(name))
			continue
		}
		if name == "from" {
			from = d
		} else {
			to = d
		}
	}
	dateRangeError(msgs, from, to, "to")
	if msgs.HasError() {
		writeValidation(w, msgs)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// today is midnight UTC of now's calendar day.
func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return generic.NewDate(y, m, d)
}
