package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/adapters"
	"credsync/internal/reconcile/models"
	"credsync/internal/reconcile/processlog"
	"credsync/internal/reconcile/profile"
	"credsync/internal/reconcile/status"
)

type outcome int

const (
	outcomeSuccess outcome = iota + 1
	outcomeFailed
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeFailed:
		return "failed"
	case outcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// processRecord applies one transition. It never returns an error: every
// failure ends as a failed processing log entry.
func (r *Reconciler) processRecord(ctx context.Context, window models.Window, t models.Transition, record *credential.CredentialRecord) outcome {
	ctx, span := r.tracer.Start(ctx, "reconcile.record", trace.WithAttributes(
		attribute.String("record_id", t.RecordID.String()),
		attribute.String("event_type", t.EventType),
		attribute.String("target_status", string(t.Target)),
	))
	defer span.End()

	o, err := r.reconcileGuarded(ctx, window, t, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", o.String()))
	r.metrics.IncRecord(o.String())
	return o
}

// reconcileGuarded turns a panic raised by an adapter or store into a failed
// outcome for this record. Records run on errgroup goroutines, where a panic
// would otherwise take the whole process down.
func (r *Reconciler) reconcileGuarded(ctx context.Context, window models.Window, t models.Transition, record *credential.CredentialRecord) (o outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "record reconciliation panicked",
				"record_id", t.RecordID.String(),
				"panic", p,
				"stack", string(debug.Stack()),
			)
			o, err = r.fail(ctx, window, t, fmt.Errorf("%w: %v", ErrPanic, p))
		}
	}()
	return r.reconcile(ctx, window, t, record)
}

func (r *Reconciler) reconcile(ctx context.Context, window models.Window, t models.Transition, record *credential.CredentialRecord) (outcome, error) {
	done, err := r.log.HasSuccess(ctx, t.RecordID, window)
	if err != nil {
		return r.fail(ctx, window, t, fmt.Errorf("check processing log: %w", err))
	}
	if done {
		r.logger.DebugContext(ctx, "record already reconciled in this window", "record_id", t.RecordID.String())
		return outcomeSkipped, nil
	}
	if record == nil {
		return r.fail(ctx, window, t, fmt.Errorf("record %s was not loaded", t.RecordID))
	}

	adapter, err := r.resolve(record)
	if err != nil {
		return r.fail(ctx, window, t, err)
	}

	if err := r.guard.Check(record.Status, t.Target); err != nil {
		return r.fail(ctx, window, t, err)
	}
	if status.IsNoop(record.Status, t.Target) {
		if err := r.log.Append(ctx, processlog.Success(t.RecordID, t.EventType, window, r.now())); err != nil {
			return r.fail(ctx, window, t, fmt.Errorf("append processing log: %w", err))
		}
		return outcomeSuccess, nil
	}

	applied, err := r.apply(ctx, t, record, adapter)
	if err != nil {
		return r.fail(ctx, window, t, err)
	}
	verifyErr := applied.verifyErr

	entry := processlog.Success(t.RecordID, t.EventType, window, r.now())
	if verifyErr != nil {
		entry = processlog.Failure(t.RecordID, t.EventType, verifyErr, window, r.now())
	}
	err = r.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.records.Save(ctx, record); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if err := r.log.Append(ctx, entry); err != nil {
			return fmt.Errorf("append processing log: %w", err)
		}
		return nil
	})
	if err != nil {
		return r.fail(ctx, window, t, err)
	}

	r.refreshProfile(ctx, record)

	if verifyErr != nil {
		r.logger.WarnContext(ctx, "record persisted unverified",
			"record_id", t.RecordID.String(),
			"issuer", record.IssuerName,
			"error", verifyErr,
		)
		return outcomeFailed, verifyErr
	}
	return outcomeSuccess, nil
}

// applyResult carries a verification error that fails the outcome without
// blocking persistence.
type applyResult struct {
	verifyErr error
}

// resolve finds the record's adapter. It runs for every target status,
// deletions included, so a record without a known issuer always fails.
func (r *Reconciler) resolve(record *credential.CredentialRecord) (adapters.Adapter, error) {
	if record.IssuerName == "" {
		return nil, ErrMissingIssuer
	}
	adapter, err := r.resolver.Resolve(record.IssuerName)
	if err != nil {
		return nil, fmt.Errorf("resolve adapter: %w", err)
	}
	return adapter, nil
}

// apply mutates record in memory only.
func (r *Reconciler) apply(ctx context.Context, t models.Transition, record *credential.CredentialRecord, adapter adapters.Adapter) (applyResult, error) {
	if t.Target == credential.StatusDeleted {
		record.Erase(r.now())
		return applyResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.AdapterTimeout)
	defer cancel()

	payload, err := adapter.FetchAuthoritativeData(ctx, t.RecordID)
	if err != nil {
		return applyResult{}, fmt.Errorf("fetch authoritative data: %w", adapters.Classify(adapter.Issuer(), "fetch record", err))
	}
	if err := record.ApplyAuthoritative(t.Target, payload, r.now()); err != nil {
		return applyResult{}, err
	}

	result, err := adapter.Verify(ctx, payload)
	if err != nil {
		record.RecordVerification(false, r.now())
		return applyResult{
			verifyErr: fmt.Errorf("%w: %w", ErrVerification, adapters.Classify(adapter.Issuer(), "verify payload", err)),
		}, nil
	}
	record.RecordVerification(result.Success, r.now())
	if !result.Success {
		r.logger.InfoContext(ctx, "issuer rejected payload",
			"record_id", t.RecordID.String(),
			"issuer", record.IssuerName,
			"message", result.Message,
		)
	}
	return applyResult{}, nil
}

func (r *Reconciler) fail(ctx context.Context, window models.Window, t models.Transition, cause error) (outcome, error) {
	attrs := []any{
		"record_id", t.RecordID.String(),
		"event_type", t.EventType,
		"window", window.String(),
		"error", cause,
	}
	var ae *adapters.AdapterError
	if errors.As(cause, &ae) {
		attrs = append(attrs, "category", string(ae.Category), "retryable", ae.Retryable)
	}
	r.logger.WarnContext(ctx, "record reconciliation failed", attrs...)

	if err := r.log.Append(ctx, processlog.Failure(t.RecordID, t.EventType, cause, window, r.now())); err != nil {
		r.logger.ErrorContext(ctx, "could not record failed outcome",
			"record_id", t.RecordID.String(),
			"error", err,
		)
	}
	return outcomeFailed, cause
}

// refreshProfile is best effort; its error never reaches the outcome.
func (r *Reconciler) refreshProfile(ctx context.Context, record *credential.CredentialRecord) {
	if record.OwnerID.IsNil() {
		return
	}
	err := r.notifier.Notify(ctx, profile.Refresh{
		OwnerID:    record.OwnerID,
		RecordID:   record.RecordID,
		Status:     record.Status,
		OccurredAt: r.now(),
	})
	if err != nil {
		if !errors.Is(err, profile.ErrQueueFull) {
			r.metrics.IncProfileRefreshFailures()
		}
		r.logger.WarnContext(ctx, "profile refresh failed",
			"owner_id", record.OwnerID.String(),
			"record_id", record.RecordID.String(),
			"error", err,
		)
	}
}
