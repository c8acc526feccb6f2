/*
scheduler.go - Periodic cutoff checks

PURPOSE:
  Once a day, runs the cutoff detection over every active employee for the
  most recently closed cutoff period and records the employees that are
  blocked: unapproved requests, days without attendance, or overtime not
  applied for.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A completed run for today's date skips the check until tomorrow
  - The closed period is the one before the period containing the run
    date, per the employee's own cutoff
  - Employees without a resolvable application are logged and skipped
  - Every run is recorded for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active

USAGE:
  scheduler := NewCutoffScheduler(store, employees, resolver, loader, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerCutoffCheck endpoint (manual run)
  - detect/: the checks themselves
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/attendance-engine/detect"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/resolver"
	"github.com/warp/attendance-engine/store/sqlite"
)

// detectConcurrency bounds employees checked in parallel.
const detectConcurrency = 4

// CutoffScheduler runs the cutoff check on a timer.
type CutoffScheduler struct {
	Store         *sqlite.Store
	Employees     generic.EmployeeDirectory
	Resolver      *resolver.Service
	Detector      *detect.Loader
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// runMu keeps scheduled and manual runs from overlapping.
	runMu sync.Mutex
}

func NewCutoffScheduler(store *sqlite.Store, employees generic.EmployeeDirectory, res *resolver.Service, loader *detect.Loader, logger *zap.Logger) *CutoffScheduler {
	if logger == nil {
		logger = zap.L().Named("scheduler")
	}
	return &CutoffScheduler{
		Store:         store,
		Employees:     employees,
		Resolver:      res,
		Detector:      loader,
		CheckInterval: time.Hour,
		Enabled:       true,
		Now:           time.Now,
		Logger:        logger,
	}
}

// Start begins the scheduler.
func (cs *CutoffScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Logger.Info("cutoff scheduler disabled")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker, cs.stop)

	cs.Logger.Info("cutoff scheduler started", zap.Duration("interval", cs.CheckInterval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (cs *CutoffScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.Logger.Info("cutoff scheduler stopped")
	}
}

func (cs *CutoffScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	cs.checkAndProcess(ctx)
	for {
		select {
		case <-ticker.C:
			cs.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

// checkAndProcess runs today's check unless one already completed.
func (cs *CutoffScheduler) checkAndProcess(ctx context.Context) {
	target := today(cs.Now())
	done, err := cs.Store.IsCutoffChecked(ctx, target)
	if err != nil {
		cs.Logger.Error("cutoff check status failed", zap.Error(err))
		return
	}
	if done {
		cs.Logger.Debug("cutoff already checked", zap.String("date", generic.FormatISO(target)))
		return
	}
	if _, err := cs.RunNow(ctx, target); err != nil {
		cs.Logger.Error("cutoff check failed", zap.String("date", generic.FormatISO(target)), zap.Error(err))
	}
}

// RunNow checks every employee active on target and records the run. A
// zero target means today. The run is returned even when it failed.
func (cs *CutoffScheduler) RunNow(ctx context.Context, target time.Time) (sqlite.CutoffRun, error) {
	cs.runMu.Lock()
	defer cs.runMu.Unlock()

	if target.IsZero() {
		target = today(cs.Now())
	}
	run := sqlite.CutoffRun{
		ID:         uuid.NewString(),
		TargetDate: generic.TruncateToDay(target),
		Status:     sqlite.RunRunning,
		StartedAt:  cs.Now().UTC(),
	}
	if err := cs.Store.SaveCutoffRun(ctx, run); err != nil {
		return run, err
	}

	results, employees, err := cs.detectAll(ctx, run.TargetDate)
	completed := cs.Now().UTC()
	run.CompletedAt = &completed
	run.Employees = employees
	if err != nil {
		run.Status = sqlite.RunFailed
		run.Error = err.Error()
		if serr := cs.Store.SaveCutoffRun(context.WithoutCancel(ctx), run); serr != nil {
			cs.Logger.Error("record failed cutoff run", zap.String("run_id", run.ID), zap.Error(serr))
		}
		return run, err
	}

	run.Status = sqlite.RunCompleted
	run.Results = results
	run.Blocked = len(results)
	if err := cs.Store.SaveCutoffRun(ctx, run); err != nil {
		return run, err
	}
	cs.Logger.Info("cutoff check completed",
		zap.String("run_id", run.ID),
		zap.String("date", generic.FormatISO(run.TargetDate)),
		zap.Int("employees", employees),
		zap.Int("blocked", run.Blocked))
	return run, nil
}

// detectAll returns the blocked results, in employee order, and the number
// of employees considered.
func (cs *CutoffScheduler) detectAll(ctx context.Context, target time.Time) ([]detect.Result, int, error) {
	emps, err := cs.Employees.FindAllAsOf(ctx, target)
	if err != nil {
		return nil, 0, generic.Fatal("list employees", err)
	}

	sess := cs.Resolver.NewSession()
	found := make([]*detect.Result, len(emps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detectConcurrency)
	for i, emp := range emps {
		g.Go(func() error {
			res, ok, err := cs.detectOne(gctx, sess, emp.PersonalID, target)
			if err != nil {
				return err
			}
			if ok && res.Blocked() {
				found[i] = &res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(emps), err
	}

	var results []detect.Result
	for _, r := range found {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, len(emps), nil
}

// detectOne checks the period before the one containing target. ok is
// false when the employee had to be skipped.
func (cs *CutoffScheduler) detectOne(ctx context.Context, sess *resolver.Session, personalID string, target time.Time) (detect.Result, bool, error) {
	entity, err := sess.ApplicationEntity(ctx, personalID, target)
	if err != nil {
		if generic.IsFatal(err) {
			return detect.Result{}, false, err
		}
		cs.Logger.Warn("cutoff check skipped", zap.String("personal_id", personalID), zap.Error(err))
		return detect.Result{}, false, nil
	}
	from, to := entity.Cutoff.TermFor(generic.AddDays(entity.TermStart, -1))
	in, err := cs.Detector.Load(ctx, personalID, from, to)
	if err != nil {
		if generic.IsFatal(err) {
			return detect.Result{}, false, err
		}
		cs.Logger.Warn("cutoff check skipped", zap.String("personal_id", personalID), zap.Error(err))
		return detect.Result{}, false, nil
	}
	return detect.Run(in, time.Time{}, false), true, nil
}
