package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// Sources are the stores a Session reads from.
type Sources struct {
	Employees         generic.EmployeeDirectory
	RouteApplications generic.EffectiveStore[RouteApplication]
	Applications      generic.EffectiveStore[Application]
	TimeSettings      generic.EffectiveStore[TimeSetting]
	Cutoffs           generic.EffectiveStore[Cutoff]
}

// Service opens sessions. It holds no cache itself.
type Service struct {
	Sources Sources
	Logger  *zap.Logger
}

var _ workflow.RouteResolver = (*Service)(nil)

func NewService(src Sources, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L().Named("resolver")
	}
	return &Service{Sources: src, Logger: logger}
}

// NewSession returns a cache scoped to one logical request. Do not share it
// across requests: master data edits would go unseen.
func (s *Service) NewSession() *Session {
	return &Session{
		src:       s.Sources,
		logger:    s.Logger,
		histories: make(map[string][]generic.Employee),
		routeApps: make(map[string][]RouteApplication),
		apps:      make(map[string][]Application),
	}
}

// RouteFor resolves a route code in a throwaway session.
func (s *Service) RouteFor(ctx context.Context, personalID string, date time.Time, workflowType string) (string, error) {
	return s.NewSession().RouteFor(ctx, personalID, date, workflowType)
}

// =============================================================================
// SESSION
// =============================================================================

// Session caches employee histories and candidate rule sets for the
// duration of one request. Safe for concurrent use.
type Session struct {
	src    Sources
	logger *zap.Logger
	group  singleflight.Group

	mu        sync.Mutex
	histories map[string][]generic.Employee
	routeApps map[string][]RouteApplication // by date
	apps      map[string][]Application      // by date, "*" holds every version
}

var _ workflow.RouteResolver = (*Session)(nil)

// Employee returns the employee's authoritative active version on date.
func (s *Session) Employee(ctx context.Context, personalID string, date time.Time) (generic.Employee, bool, error) {
	history, err := s.history(ctx, personalID)
	if err != nil {
		return generic.Employee{}, false, err
	}
	emp, ok := generic.LatestAsOf(history, date)
	if !ok || emp.Inactive {
		return generic.Employee{}, false, nil
	}
	return emp, true, nil
}

// RouteApplication resolves the route application of workflowType.
func (s *Session) RouteApplication(ctx context.Context, personalID string, date time.Time, workflowType string) (RouteApplication, bool, error) {
	emp, ok, err := s.Employee(ctx, personalID, date)
	if err != nil || !ok {
		return RouteApplication{}, false, err
	}
	all, err := s.routeApplications(ctx, date)
	if err != nil {
		return RouteApplication{}, false, err
	}
	candidates := make([]RouteApplication, 0, len(all))
	for _, ra := range all {
		if ra.WorkflowType == workflowType {
			candidates = append(candidates, ra)
		}
	}
	ra, found := Resolve(emp, candidates, date)
	return ra, found, nil
}

// Application resolves the work-setting application.
func (s *Session) Application(ctx context.Context, personalID string, date time.Time) (Application, bool, error) {
	emp, ok, err := s.Employee(ctx, personalID, date)
	if err != nil || !ok {
		return Application{}, false, err
	}
	candidates, err := s.applications(ctx, date)
	if err != nil {
		return Application{}, false, err
	}
	app, found := Resolve(emp, candidates, date)
	return app, found, nil
}

// ApplicationsForTerm resolves the work-setting application for every day
// in [from, to], keyed by ISO date. Days without one are absent. Resolution
// is repeated only where an employee or application version starts.
func (s *Session) ApplicationsForTerm(ctx context.Context, personalID string, from, to time.Time) (map[string]Application, error) {
	from, to = generic.TruncateToDay(from), generic.TruncateToDay(to)
	out := make(map[string]Application)
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return out, nil
	}
	history, err := s.history(ctx, personalID)
	if err != nil {
		return nil, err
	}
	every, err := s.allApplications(ctx)
	if err != nil {
		return nil, err
	}
	change := make(map[time.Time]bool)
	for _, d := range generic.Boundaries(history, from, to) {
		change[d] = true
	}
	for _, d := range generic.Boundaries(every, from, to) {
		change[d] = true
	}

	var (
		cur   Application
		found bool
	)
	for i, d := range generic.DateRange(from, to) {
		if i == 0 || change[d] {
			if cur, found, err = s.Application(ctx, personalID, d); err != nil {
				return nil, err
			}
		}
		if found {
			out[generic.FormatISO(d)] = cur
		}
	}
	return out, nil
}

// HasPersonalApplication reports whether a PERSON application authoritative
// on date lists the employee.
func (s *Session) HasPersonalApplication(ctx context.Context, personalID string, date time.Time) (bool, error) {
	candidates, err := s.applications(ctx, date)
	if err != nil {
		return false, err
	}
	for _, app := range candidates {
		if app.Type() == ApplicationPerson && app.Lists(personalID) {
			return true, nil
		}
	}
	return false, nil
}

// Entity is a resolved application with the settings it points at.
type Entity struct {
	Application Application `json:"application"`
	TimeSetting TimeSetting `json:"time_setting"`
	Cutoff      Cutoff      `json:"cutoff"`
	TermStart   time.Time   `json:"term_start"`
	TermEnd     time.Time   `json:"term_end"`
}

// ApplicationEntity resolves the application and loads its time setting and
// cutoff. Any missing piece is a ResolutionError.
func (s *Session) ApplicationEntity(ctx context.Context, personalID string, date time.Time) (Entity, error) {
	app, ok, err := s.Application(ctx, personalID, date)
	if err != nil {
		return Entity{}, err
	}
	if !ok {
		return Entity{}, &generic.ResolutionError{PersonalID: personalID, Date: date, What: "work setting application"}
	}
	ts, ok, err := s.src.TimeSettings.FindLatestAsOf(ctx, app.WorkSettingCode, date)
	if err != nil {
		return Entity{}, generic.Fatal("find time setting", err)
	}
	if !ok || ts.Inactive {
		return Entity{}, &generic.ResolutionError{PersonalID: personalID, Date: date, What: "time setting " + app.WorkSettingCode}
	}
	co, ok, err := s.src.Cutoffs.FindLatestAsOf(ctx, app.CutoffCode, date)
	if err != nil {
		return Entity{}, generic.Fatal("find cutoff", err)
	}
	if !ok || co.Inactive {
		return Entity{}, &generic.ResolutionError{PersonalID: personalID, Date: date, What: "cutoff " + app.CutoffCode}
	}
	start, end := co.TermFor(date)
	return Entity{Application: app, TimeSetting: ts, Cutoff: co, TermStart: start, TermEnd: end}, nil
}

// CheckApplication records a setting defect on msgs when no application
// applies. Returns whether one does.
func (s *Session) CheckApplication(ctx context.Context, personalID string, date time.Time, msgs generic.MessageSink) (bool, error) {
	_, ok, err := s.Application(ctx, personalID, date)
	if err != nil {
		return false, err
	}
	if !ok {
		msgs.AddError(generic.MsgSettingApplicationDefect, generic.FormatDate(date, generic.Gregorian), "work setting application")
	}
	return ok, nil
}

// RouteFor implements workflow.RouteResolver.
func (s *Session) RouteFor(ctx context.Context, personalID string, date time.Time, workflowType string) (string, error) {
	ra, ok, err := s.RouteApplication(ctx, personalID, date, workflowType)
	if err != nil {
		return "", err
	}
	if !ok {
		s.logger.Debug("no route application",
			zap.String("personal_id", personalID),
			zap.String("date", generic.FormatISO(date)),
			zap.String("workflow_type", workflowType),
		)
		return "", &generic.ResolutionError{PersonalID: personalID, Date: date, What: "route application"}
	}
	return ra.RouteCode, nil
}

// =============================================================================
// LOADERS
// =============================================================================

func (s *Session) history(ctx context.Context, personalID string) ([]generic.Employee, error) {
	s.mu.Lock()
	if h, ok := s.histories[personalID]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("employee:"+personalID, func() (any, error) {
		s.mu.Lock()
		h, ok := s.histories[personalID]
		s.mu.Unlock()
		if ok {
			return h, nil
		}
		h, err := s.src.Employees.FindHistory(ctx, personalID)
		if err != nil {
			return nil, generic.Fatal("find employee history", err)
		}
		s.mu.Lock()
		s.histories[personalID] = h
		s.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]generic.Employee), nil
}

func (s *Session) routeApplications(ctx context.Context, date time.Time) ([]RouteApplication, error) {
	return load(s, s.routeApps, "route:", generic.FormatISO(date), func() ([]RouteApplication, error) {
		return s.src.RouteApplications.FindAllAsOf(ctx, date)
	})
}

func (s *Session) applications(ctx context.Context, date time.Time) ([]Application, error) {
	return load(s, s.apps, "application:", generic.FormatISO(date), func() ([]Application, error) {
		return s.src.Applications.FindAllAsOf(ctx, date)
	})
}

func (s *Session) allApplications(ctx context.Context) ([]Application, error) {
	return load(s, s.apps, "application:", "*", func() ([]Application, error) {
		return s.src.Applications.FindAll(ctx)
	})
}

func load[T any](s *Session, cache map[string][]T, family, key string, fetch func() ([]T, error)) ([]T, error) {
	s.mu.Lock()
	if v, ok := cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(family+key, func() (any, error) {
		s.mu.Lock()
		rows, ok := cache[key]
		s.mu.Unlock()
		if ok {
			return rows, nil
		}
		rows, err := fetch()
		if err != nil {
			return nil, generic.Fatal(fmt.Sprintf("load %s%s", family, key), err)
		}
		s.mu.Lock()
		cache[key] = rows
		s.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}
