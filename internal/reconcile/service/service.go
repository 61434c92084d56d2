// Package service runs one reconciliation cycle: compute the window, fetch
// upstream events, narrow them to local records, apply each status change
// and advance the checkpoint.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/adapters"
	"credsync/internal/reconcile/checkpoint"
	"credsync/internal/reconcile/feed"
	"credsync/internal/reconcile/filter"
	"credsync/internal/reconcile/metrics"
	"credsync/internal/reconcile/models"
	"credsync/internal/reconcile/processlog"
	"credsync/internal/reconcile/profile"
	"credsync/internal/reconcile/status"
	"credsync/pkg/platform/tx"
)

// CheckpointStore persists the per-job watermark.
type CheckpointStore interface {
	GetOrCreate(ctx context.Context, jobName string, initial time.Time) (checkpoint.State, error)
	Advance(ctx context.Context, jobName string, to time.Time) (checkpoint.State, error)
}

// EventSource reads upstream lifecycle events for a window.
type EventSource interface {
	Fetch(ctx context.Context, window models.Window) (feed.Batch, error)
}

// RecordStore is the document repository as the reconciler sees it.
type RecordStore interface {
	filter.RecordFinder
	Save(ctx context.Context, record *credential.CredentialRecord) error
}

// ProcessingLog records per-record outcomes and answers the idempotency question.
type ProcessingLog interface {
	Append(ctx context.Context, entry processlog.Entry) error
	HasSuccess(ctx context.Context, recordID credential.RecordID, window models.Window) (bool, error)
}

// AdapterResolver finds the adapter for an issuer name.
type AdapterResolver interface {
	Resolve(issuer string) (adapters.Adapter, error)
}

// Config holds the tunables of a reconciler.
type Config struct {
	JobName           string
	Lookback          time.Duration
	InitialBackfill   time.Duration
	Concurrency       int
	AdapterTimeout    time.Duration
	StrictTransitions bool
}

// DefaultConfig matches the defaults of the environment configuration.
func DefaultConfig() Config {
	return Config{
		JobName:           "credential-status-sync",
		Lookback:          120 * time.Minute,
		Concurrency:       1,
		AdapterTimeout:    10 * time.Second,
		StrictTransitions: true,
	}
}

// Reconciler owns the cycle algorithm. It is safe to share, but cycles are
// expected to be serialized by the scheduler.
type Reconciler struct {
	checkpoints CheckpointStore
	source      EventSource
	records     RecordStore
	log         ProcessingLog
	resolver    AdapterResolver

	filter   *filter.Filter
	mapper   *status.Mapper
	guard    status.Guard
	notifier profile.Notifier
	txRunner tx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	config   Config
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithTxRunner makes the record write and its success entry commit together.
func WithTxRunner(runner tx.Runner) Option {
	return func(r *Reconciler) {
		r.txRunner = runner
	}
}

func WithNotifier(n profile.Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = t
	}
}

func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

func New(
	checkpoints CheckpointStore,
	source EventSource,
	records RecordStore,
	log ProcessingLog,
	resolver AdapterResolver,
	opts ...Option,
) (*Reconciler, error) {
	switch {
	case checkpoints == nil:
		return nil, errors.New("checkpoint store is required")
	case source == nil:
		return nil, errors.New("event source is required")
	case records == nil:
		return nil, errors.New("record store is required")
	case log == nil:
		return nil, errors.New("processing log is required")
	case resolver == nil:
		return nil, errors.New("adapter resolver is required")
	}

	r := &Reconciler{
		checkpoints: checkpoints,
		source:      source,
		records:     records,
		log:         log,
		resolver:    resolver,
		notifier:    profile.Noop{},
		txRunner:    tx.NoopRunner{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("credsync/reconcile"),
		now:         time.Now,
		config:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.config.JobName == "" {
		return nil, errors.New("job name is required")
	}
	if r.config.Lookback < 0 {
		return nil, errors.New("lookback must not be negative")
	}
	if r.config.Concurrency < 1 {
		r.config.Concurrency = 1
	}
	if r.config.AdapterTimeout <= 0 {
		r.config.AdapterTimeout = DefaultConfig().AdapterTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.filter = filter.New(records)
	r.mapper = status.NewMapper(r.logger)
	r.guard = status.NewGuard(r.config.StrictTransitions)
	return r, nil
}

// JobName identifies the checkpoint this reconciler owns.
func (r *Reconciler) JobName() string { return r.config.JobName }

// RunCycle reconciles one window. A returned error means nothing was
// mutated by this call past the failing step and the checkpoint did not move;
// per-record failures are not errors and only show up in the report and the
// processing log.
func (r *Reconciler) RunCycle(ctx context.Context) (models.CycleReport, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.cycle",
		trace.WithAttributes(attribute.String("job", r.config.JobName)))
	defer span.End()

	start := r.now()
	report, err := r.runCycle(ctx, start)
	r.metrics.ObserveCycleDuration(r.now().Sub(start).Seconds())
	switch {
	case err != nil:
		r.metrics.IncCycle("aborted")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case report.NoOp:
		r.metrics.IncCycle("noop")
	default:
		r.metrics.IncCycle("ok")
	}
	return report, err
}

func (r *Reconciler) runCycle(ctx context.Context, now time.Time) (models.CycleReport, error) {
	initial := InitialCheckpoint(now, r.config.Lookback, r.config.InitialBackfill)
	state, err := r.checkpoints.GetOrCreate(ctx, r.config.JobName, initial)
	if err != nil {
		return models.CycleReport{}, fmt.Errorf("load checkpoint: %w", err)
	}

	window := ComputeWindow(state.LastProcessedTo, now, r.config.Lookback)
	report := models.CycleReport{Window: window}
	r.metrics.SetCheckpointLag(now.Sub(state.LastProcessedTo).Seconds())
	if window.IsEmpty() {
		report.NoOp = true
		r.logger.InfoContext(ctx, "nothing to process",
			"job", r.config.JobName,
			"from", window.From,
			"to", window.To,
		)
		return report, nil
	}

	batch, err := r.source.Fetch(ctx, window)
	if err != nil {
		r.logger.ErrorContext(ctx, "feed fetch failed, cycle aborted",
			"job", r.config.JobName,
			"window", window.String(),
			"error", err,
		)
		return report, fmt.Errorf("fetch events: %w", err)
	}
	report.Fetched = len(batch.Events)
	r.metrics.AddEventsDropped("missing_record_id", batch.Dropped)

	filtered, err := r.filter.Apply(ctx, batch.Events)
	if err != nil {
		return report, fmt.Errorf("filter events: %w", err)
	}
	report.Local = len(filtered.Events)
	r.metrics.AddEventsDropped("unknown_record", filtered.Unknown)
	r.metrics.AddEventsDropped("duplicate", filtered.Duplicates)

	transitions, unknownTypes := r.mapper.Map(ctx, filtered.Events)
	r.metrics.AddEventsDropped("unknown_type", unknownTypes)
	transitions = status.Coalesce(transitions)
	report.Mapped = len(transitions)

	outcomes := r.processAll(ctx, window, transitions, filtered.Records)
	for _, o := range outcomes {
		switch o {
		case outcomeSuccess:
			report.Succeeded++
		case outcomeFailed:
			report.Failed++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	// A cancelled cycle leaves the window to the next run instead of
	// recording time as covered.
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}

	if _, err := r.checkpoints.Advance(ctx, r.config.JobName, window.To); err != nil {
		return report, fmt.Errorf("advance checkpoint: %w", err)
	}
	report.Advanced = true
	r.metrics.SetCheckpointLag(r.now().Sub(window.To).Seconds())

	r.logger.InfoContext(ctx, "reconciliation cycle completed",
		"job", r.config.JobName,
		"window", window.String(),
		"fetched", report.Fetched,
		"local", report.Local,
		"mapped", report.Mapped,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// processAll fans transitions out to at most Concurrency workers. Outcomes
// are indexed like transitions.
func (r *Reconciler) processAll(
	ctx context.Context,
	window models.Window,
	transitions []models.Transition,
	records map[credential.RecordID]*credential.CredentialRecord,
) []outcome {
	outcomes := make([]outcome, len(transitions))
	if len(transitions) == 0 {
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for i, t := range transitions {
		record := records[t.RecordID]
		g.Go(func() error {
			outcomes[i] = r.processRecord(ctx, window, t, record)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
