/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. RealIP:     Client address from proxy headers
  3. Logger:     Request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/workflows/*      Workflow lifecycle and batch approval
  /api/approvers/*      Approver inboxes
  /api/requests         Request submission
  /api/employees/*      Employees and resolved configuration
  /api/detect           Cutoff checks for one employee
  /api/master           Master document loading
  /api/admin/*          Cutoff runs
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured. origins are
// the allowed CORS origins.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", actorHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Workflow routes
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", h.DraftWorkflow)
			r.Post("/approval", h.BatchApproval)
			r.Get("/{id}", h.GetWorkflow)
			r.Delete("/{id}", h.DeleteWorkflow)
			r.Get("/{id}/comments", h.GetComments)
			r.Get("/{id}/request", h.GetWorkflowRequest)
			r.Put("/{id}/approvers", h.SetApprovers)
			r.Put("/{id}/self-approval", h.SetSelfApproval)
			r.Post("/{id}/{action}", h.WorkflowAction)
		})

		r.Get("/approvers/{id}/pending", h.PendingApprovals)
		r.Post("/requests", h.SubmitRequest)

		// Employee and configuration routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Get("/{id}/route-application", h.GetRouteApplication)
			r.Get("/{id}/application", h.GetApplication)
			r.Get("/{id}/applications", h.ListApplications)
		})

		r.Post("/detect", h.Detect)
		r.Post("/master", h.LoadMaster)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/cutoff-check", h.TriggerCutoffCheck)
			r.Get("/cutoff-runs", h.ListCutoffRuns)
			r.Get("/cutoff-runs/{id}", h.GetCutoffRun)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
