// Package scheduler fires reconciliation cycles on a cron schedule, one at a
// time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"credsync/internal/reconcile/metrics"
	"credsync/internal/reconcile/models"
	"credsync/pkg/platform/sentinel"
)

// DefaultSchedule runs a cycle every two hours on the hour.
const DefaultSchedule = "0 */2 * * *"

const defaultLockTTL = 30 * time.Minute

var (
	// ErrBusy is returned when a cycle is already running in this process.
	ErrBusy = fmt.Errorf("cycle already running: %w", sentinel.ErrBusy)

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")

	// ErrPanic wraps a panic recovered from a cycle.
	ErrPanic = errors.New("cycle panicked")
)

// CycleRunner runs a single reconciliation cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (models.CycleReport, error)
	JobName() string
}

type Scheduler struct {
	runner   CycleRunner
	schedule cron.Schedule
	spec     string
	cron     *cron.Cron
	locker   Locker
	lockTTL  time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithLocker adds a cross-replica guard on top of the in-process one.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithCycleTimeout bounds a single cycle. Zero means no bound.
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// New parses spec as a standard five-field cron expression, evaluated in UTC
// unless it carries its own CRON_TZ prefix.
func New(runner CycleRunner, spec string, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("cycle runner is required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	expr := spec
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		runner:   runner,
		schedule: schedule,
		spec:     spec,
		lockTTL:  defaultLockTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLocation(time.UTC))
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s, nil
}

// Next reports when the schedule fires after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start begins firing on schedule. It returns immediately.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		"job", s.runner.JobName(),
		"schedule", s.spec,
		"next_run", s.Next(time.Now().UTC()),
	)
	s.cron.Start()
}

// Stop prevents new cycles and waits for the running one. If ctx ends first
// the running cycle is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger runs a cycle now and waits for it. It returns ErrBusy when a cycle
// is already running.
func (s *Scheduler) Trigger(ctx context.Context) (models.CycleReport, error) {
	if err := s.begin(); err != nil {
		return models.CycleReport{}, err
	}
	defer s.end()
	return s.run(ctx, "manual")
}

// TriggerAsync starts a cycle in the background. It returns ErrBusy when a
// cycle is already running.
func (s *Scheduler) TriggerAsync() error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		defer s.end()
		_, _ = s.run(s.baseCtx, "manual")
	}()
	return nil
}

func (s *Scheduler) tick() {
	if err := s.begin(); err != nil {
		if errors.Is(err, ErrBusy) {
			s.metrics.IncTickSkipped("overlap")
			s.logger.Warn("previous cycle still running, tick skipped", "job", s.runner.JobName())
		}
		return
	}
	defer s.end()
	_, _ = s.run(s.baseCtx, "schedule")
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrBusy
	}
	s.running = true
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Done()
}

// run executes one guarded cycle. Panics and errors are logged here and
// never escape to the cron goroutine.
func (s *Scheduler) run(ctx context.Context, trigger string) (report models.CycleReport, err error) {
	job := s.runner.JobName()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.IncCycle("panic")
			s.logger.ErrorContext(ctx, "reconciliation cycle panicked",
				"job", job,
				"trigger", trigger,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.locker != nil {
		lease, lockErr := s.locker.Acquire(ctx, LockKey(job), s.lockTTL)
		if lockErr != nil {
			s.metrics.IncTickSkipped("lock")
			s.logger.WarnContext(ctx, "cycle lock not obtained, skipping", "job", job, "error", lockErr)
			return models.CycleReport{}, lockErr
		}
		lockCtx, cancel := context.WithCancelCause(ctx)
		stopKeeping := s.keepLease(lockCtx, lease, cancel)
		defer func() {
			stopKeeping()
			cancel(nil)
			if relErr := lease.Release(context.Background()); relErr != nil {
				s.logger.WarnContext(ctx, "failed to release cycle lock", "job", job, "error", relErr)
			}
		}()
		ctx = lockCtx
	}

	s.logger.InfoContext(ctx, "reconciliation cycle starting", "job", job, "trigger", trigger)
	report, err = s.runner.RunCycle(ctx)
	if cause := context.Cause(ctx); errors.Is(cause, ErrLockLost) {
		err = errors.Join(cause, err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "reconciliation cycle failed", "job", job, "trigger", trigger, "error", err)
	}
	return report, err
}

// keepLease refreshes lease every third of its TTL while the cycle runs. A
// failed refresh cancels the cycle with ErrLockLost. The returned func stops
// the keeper and waits for it.
func (s *Scheduler) keepLease(ctx context.Context, lease Lease, cancel context.CancelCauseFunc) func() {
	interval := s.lockTTL / 3
	if interval <= 0 {
		interval = s.lockTTL
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lease.Refresh(ctx, s.lockTTL)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				s.logger.ErrorContext(ctx, "cycle lock refresh failed, cancelling cycle",
					"job", s.runner.JobName(),
					"error", err,
				)
				if !errors.Is(err, ErrLockLost) {
					err = fmt.Errorf("%w: %w", ErrLockLost, err)
				}
				cancel(err)
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
