package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/repository"
)

var (
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotActive is returned when cancelling a finished run.
	ErrRunNotActive = errors.New("run is not active")
	// ErrUnknownKind is returned by Start for unsupported run kinds.
	ErrUnknownKind = errors.New("unknown run kind")
)

// ConflictError is returned by Start while another run is queued or running.
type ConflictError struct {
	ActiveRunID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pipeline already running: %s", e.ActiveRunID)
}

// RunStore is the persistence the orchestrator needs.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetActiveRun(ctx context.Context) (*domain.Run, error)
	GetLastCompletedRun(ctx context.Context) (*domain.Run, error)
	SaveRun(ctx context.Context, run *domain.Run) error
	ListRuns(ctx context.Context, offset, limit int) ([]domain.Run, error)
	CountRuns(ctx context.Context) (int, error)
}

// Notifier is told once about every run that reached a terminal state.
type Notifier interface {
	Notify(ctx context.Context, run *domain.Run)
}

// Recorder receives run telemetry. *metrics.Metrics implements it.
type Recorder interface {
	RunStarted(kind string)
	RunFinished(kind, status string)
	StageFailed(stage string)
}

// Options configures an Orchestrator.
type Options struct {
	DefaultLimits domain.Limits
	Notifiers     []Notifier
	Logger        *slog.Logger
	Recorder      Recorder
	// BaseContext parents every run; runs outlive the request that started them.
	BaseContext context.Context
	// NotifyTimeout bounds each notifier call.
	NotifyTimeout time.Duration
}

// Orchestrator owns the run lifecycle.
type Orchestrator struct {
	store         RunStore
	stages        map[domain.StageName]Stage
	defaultLimits domain.Limits
	notifiers     []Notifier
	logger        *slog.Logger
	recorder      Recorder
	baseCtx       context.Context
	notifyTimeout time.Duration
	now           func() time.Time

	mu sync.Mutex
	// owned holds the runs this process is executing.
	owned     map[string]bool
	cancelled map[string]bool
	wg        sync.WaitGroup
}

// New creates an orchestrator over store with the given stages.
func New(store RunStore, stages []Stage, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	byName := make(map[domain.StageName]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name()] = s
	}
	return &Orchestrator{
		store:         store,
		stages:        byName,
		defaultLimits: opts.DefaultLimits,
		notifiers:     opts.Notifiers,
		logger:        opts.Logger.With("component", "pipeline"),
		recorder:      opts.Recorder,
		baseCtx:       opts.BaseContext,
		notifyTimeout: opts.NotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		owned:         make(map[string]bool),
		cancelled:     make(map[string]bool),
	}
}

// Start creates a queued run and executes it in the background. It returns
// *ConflictError, creating nothing, when a run is already active.
func (o *Orchestrator) Start(ctx context.Context, kind domain.RunKind, limits domain.Limits, triggeredBy domain.Trigger) (*domain.Run, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if triggeredBy == "" {
		triggeredBy = domain.TriggerManual
	}

	now := o.now()
	run := &domain.Run{
		RunID:        "run_" + uuid.New().String(),
		Kind:         kind,
		Status:       domain.RunStatusQueued,
		StageResults: map[domain.StageName]domain.StageSummary{},
		Errors:       []domain.RunError{},
		Logs: []domain.LogEntry{{
			Level:     domain.LogLevelInfo,
			Message:   fmt.Sprintf("Pipeline %s queued by %s", kind, triggeredBy),
			Timestamp: now,
		}},
		Limits:      limits.WithDefaults(o.defaultLimits),
		TriggeredBy: triggeredBy,
		CreatedAt:   now,
	}

	o.mu.Lock()
	o.owned[run.RunID] = true
	o.mu.Unlock()

	if err := o.store.CreateRun(ctx, run); err != nil {
		o.release(run.RunID)
		var active *repository.ActiveRunError
		if errors.As(err, &active) {
			return nil, &ConflictError{ActiveRunID: active.RunID}
		}
		if errors.Is(err, repository.ErrActiveRunExists) {
			return nil, &ConflictError{}
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	o.logger.Info("run queued", "run_id", run.RunID, "kind", kind, "triggered_by", triggeredBy)
	if o.recorder != nil {
		o.recorder.RunStarted(string(kind))
	}

	o.wg.Add(1)
	go func(r *domain.Run) {
		defer o.wg.Done()
		o.Execute(o.baseCtx, r)
	}(run.Clone())

	return run, nil
}

// Execute drives one run from queued to a terminal state. It must be called
// exactly once per created run; Start does so.
func (o *Orchestrator) Execute(ctx context.Context, run *domain.Run) {
	log := o.logger.With("run_id", run.RunID, "kind", run.Kind)
	rec := &recorder{run: run, now: o.now}
	// Writes must land even when ctx is cancelled mid-stage.
	persist := context.WithoutCancel(ctx)

	started := o.now()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &started
	rec.log(domain.LogLevelInfo, "Pipeline started")
	if err := o.store.SaveRun(persist, run); err != nil {
		o.fail(ctx, run, rec, fmt.Errorf("failed to persist running state: %w", err))
		return
	}
	log.Info("run started")

	for _, name := range Plan(run.Kind) {
		if err := ctx.Err(); err != nil {
			o.fail(ctx, run, rec, fmt.Errorf("interrupted before stage %s: %w", name, err))
			return
		}
		if o.cancelRequested(run.RunID) {
			rec.log(domain.LogLevelWarn, fmt.Sprintf("Cancelled before stage %s", name))
			o.finish(ctx, run, rec, domain.RunStatusCancelled)
			return
		}

		stage, ok := o.stages[name]
		if !ok {
			rec.addError(name, "stage not configured")
			o.stageFailed(name)
			if err := o.store.SaveRun(persist, run); err != nil {
				o.fail(ctx, run, rec, fmt.Errorf("failed to persist run: %w", err))
				return
			}
			continue
		}

		rec.log(domain.LogLevelInfo, fmt.Sprintf("Stage %s started", name))
		stageStart := time.Now()
		res, err := o.runStage(ctx, stage, StageContext{
			RunID:  run.RunID,
			Kind:   run.Kind,
			Limits: run.Limits,
			Log:    rec.log,
		})

		switch {
		case errors.Is(err, ErrFatal):
			log.Error("fatal stage error", "stage", name, "error", err)
			o.fail(ctx, run, rec, fmt.Errorf("stage %s: %w", name, err))
			return
		case err != nil:
			log.Error("stage failed", "stage", name, "error", err)
			rec.addError(name, err.Error())
			rec.log(domain.LogLevelError, fmt.Sprintf("Stage %s failed: %v", name, err))
			o.stageFailed(name)
		default:
			rec.merge(name, res)
			rec.log(domain.LogLevelInfo, fmt.Sprintf("Stage %s complete in %s", name, time.Since(stageStart).Round(time.Millisecond)))
			log.Info("stage complete", "stage", name, "summary", res.Summary, "item_errors", len(res.Errors))
		}

		// Each stage's effects are committed before the next one starts.
		if err := o.store.SaveRun(persist, run); err != nil {
			o.fail(ctx, run, rec, fmt.Errorf("failed to persist run after %s: %w", name, err))
			return
		}
	}

	o.finish(ctx, run, rec, domain.RunStatusCompleted)
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, sc StageContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, sc)
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.Run, rec *recorder, status domain.RunStatus) {
	rec.stamp(status)
	rec.log(domain.LogLevelInfo, fmt.Sprintf("Pipeline %s in %s", status, time.Duration(run.DurationMs)*time.Millisecond))
	if err := o.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Error("failed to persist finished run", "run_id", run.RunID, "error", err)
		// The record is still active in the store; try once to mark it failed.
		run.Status = domain.RunStatusRunning
		o.fail(ctx, run, rec, fmt.Errorf("failed to persist %s state: %w", status, err))
		return
	}
	o.logger.Info("run finished", "run_id", run.RunID, "status", status, "errors", len(run.Errors), "duration_ms", run.DurationMs)
	o.afterTerminal(run)
}

// fail moves a run straight to failed with a fatal-tagged error.
func (o *Orchestrator) fail(ctx context.Context, run *domain.Run, rec *recorder, cause error) {
	rec.addError(domain.StageFatal, cause.Error())
	rec.stamp(domain.RunStatusFailed)
	rec.log(domain.LogLevelError, fmt.Sprintf("Pipeline failed: %v", cause))
	o.stageFailed(domain.StageFatal)
	o.logger.Error("run failed", "run_id", run.RunID, "error", cause)
	if err := o.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Error("failed to persist failed run", "run_id", run.RunID, "error", err)
	}
	o.afterTerminal(run)
}

func (o *Orchestrator) afterTerminal(run *domain.Run) {
	o.release(run.RunID)
	if o.recorder != nil {
		o.recorder.RunFinished(string(run.Kind), string(run.Status))
	}
	final := run.Clone()
	for _, n := range o.notifiers {
		o.notify(n, final)
	}
}

func (o *Orchestrator) release(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.owned, runID)
	delete(o.cancelled, runID)
}

func (o *Orchestrator) notify(n Notifier, run *domain.Run) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("notifier panicked", "run_id", run.RunID, "panic", r)
		}
	}()
	// Runs interrupted by shutdown are still reported.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseCtx), o.notifyTimeout)
	defer cancel()
	n.Notify(ctx, run)
}

func (o *Orchestrator) stageFailed(name domain.StageName) {
	if o.recorder != nil {
		o.recorder.StageFailed(string(name))
	}
}

// Cancel asks an active run to stop at its next stage boundary. An active
// run that no goroutine in this process is executing is cancelled at once.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return run, ErrRunNotActive
	}

	o.mu.Lock()
	owned := o.owned[runID]
	if owned {
		o.cancelled[runID] = true
	}
	o.mu.Unlock()

	if !owned {
		o.logger.Warn("cancelling orphaned run", "run_id", runID, "status", run.Status)
		return o.settle(ctx, run, domain.RunStatusCancelled, "Cancelled while no worker was executing the run")
	}
	o.logger.Info("cancellation requested", "run_id", runID)
	return run, nil
}

// Recover finalizes runs a previous process left queued or running. They
// end failed with a fatal "interrupted" error so Start can admit new runs.
// It returns how many runs were finalized.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		run, err := o.store.GetActiveRun(ctx)
		if err != nil {
			return n, fmt.Errorf("failed to get active run: %w", err)
		}
		if run == nil {
			return n, nil
		}
		o.mu.Lock()
		owned := o.owned[run.RunID]
		o.mu.Unlock()
		if owned {
			return n, nil
		}
		o.logger.Warn("recovering interrupted run", "run_id", run.RunID, "status", run.Status)
		if _, err := o.settle(ctx, run, domain.RunStatusFailed, "interrupted: run was still active when the service started"); err != nil {
			return n, err
		}
		n++
	}
}

// settle moves an unowned active run to a terminal status. Queued runs
// pass through running so the store transition stays forward only.
func (o *Orchestrator) settle(ctx context.Context, run *domain.Run, status domain.RunStatus, reason string) (*domain.Run, error) {
	rec := &recorder{run: run, now: o.now}
	if run.Status == domain.RunStatusQueued {
		started := o.now()
		run.Status = domain.RunStatusRunning
		run.StartedAt = &started
		if err := o.store.SaveRun(ctx, run); err != nil {
			return o.settleFailed(ctx, run.RunID, err)
		}
	}

	if status == domain.RunStatusFailed {
		rec.addError(domain.StageFatal, reason)
		o.stageFailed(domain.StageFatal)
	}
	rec.log(domain.LogLevelWarn, reason)
	rec.stamp(status)
	if err := o.store.SaveRun(ctx, run); err != nil {
		return o.settleFailed(ctx, run.RunID, err)
	}
	o.afterTerminal(run)
	return run, nil
}

// settleFailed maps a lost race with the owning worker to ErrRunNotActive.
func (o *Orchestrator) settleFailed(ctx context.Context, runID string, err error) (*domain.Run, error) {
	if !errors.Is(err, repository.ErrRunFinalized) {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}
	current, getErr := o.store.GetRun(ctx, runID)
	if getErr != nil {
		return nil, fmt.Errorf("failed to get run: %w", getErr)
	}
	if current == nil {
		return nil, ErrRunNotFound
	}
	return current, ErrRunNotActive
}

func (o *Orchestrator) cancelRequested(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[runID]
}

// Status returns the active run, if any, and the last completed one.
func (o *Orchestrator) Status(ctx context.Context) (*domain.StatusResponse, error) {
	active, err := o.store.GetActiveRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active run: %w", err)
	}
	last, err := o.store.GetLastCompletedRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed run: %w", err)
	}
	return &domain.StatusResponse{
		IsRunning:     active != nil,
		ActiveRun:     active,
		LastCompleted: last.Digest(),
	}, nil
}

// History returns one page of runs, newest first.
func (o *Orchestrator) History(ctx context.Context, page, limit int) (*domain.HistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	runs, err := o.store.ListRuns(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	total, err := o.store.CountRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return &domain.HistoryResponse{
		Runs:       runs,
		Pagination: domain.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

// Get returns one run.
func (o *Orchestrator) Get(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Wait blocks until every run started by Start has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recorder serializes mutations of the run record; stages may log from
// several goroutines at once.
type recorder struct {
	mu  sync.Mutex
	run *domain.Run
	now func() time.Time
}

func (r *recorder) log(level domain.LogLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.Logs = append(r.run.Logs, domain.LogEntry{Level: level, Message: msg, Timestamp: r.now()})
}

func (r *recorder) addError(stage domain.StageName, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.Errors = append(r.run.Errors, domain.RunError{Stage: stage, Message: msg, Timestamp: r.now()})
}

func (r *recorder) merge(stage domain.StageName, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.StageResults == nil {
		r.run.StageResults = map[domain.StageName]domain.StageSummary{}
	}
	summary := r.run.StageResults[stage]
	if summary == nil {
		summary = domain.StageSummary{}
	}
	for k, v := range res.Summary {
		summary[k] += v
	}
	r.run.StageResults[stage] = summary
	now := r.now()
	for _, msg := range res.Errors {
		r.run.Errors = append(r.run.Errors, domain.RunError{Stage: stage, Message: msg, Timestamp: now})
	}
}

func (r *recorder) stamp(status domain.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.Status = status
	// The first terminal stamp wins; a failed save retried as failed keeps it.
	if r.run.CompletedAt != nil {
		return
	}
	now := r.now()
	r.run.CompletedAt = &now
	if r.run.StartedAt != nil {
		r.run.DurationMs = now.Sub(*r.run.StartedAt).Milliseconds()
	}
}
