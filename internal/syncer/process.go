package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cybercore/ldap-sync/internal/cursor"
	"github.com/cybercore/ldap-sync/internal/directory"
	"github.com/cybercore/ldap-sync/internal/metrics"
	"github.com/cybercore/ldap-sync/internal/record"
	"github.com/cybercore/ldap-sync/internal/schema"
	"github.com/cybercore/ldap-sync/internal/status"
)

const (
	resultProcessed = "processed"
	resultSkipped   = "skipped"
	resultFailed    = "failed"
)

// CursorError is returned when the batch was written but the new cursor could not be saved.
type CursorError struct {
	Kind cursor.Kind
	Err  error
}

func (e *CursorError) Error() string {
	return fmt.Sprintf("failed to save %s cursor: %v", e.Kind, e.Err)
}

func (e *CursorError) Unwrap() error {
	return e.Err
}

// process maps and resolves the entries in server order. Unmappable entries are skipped.
func (o *Orchestrator) process(
	ctx context.Context,
	sch schema.Schema,
	res *directory.Result,
	report *Report,
) []record.User {
	logger := zerolog.Ctx(ctx)
	now := o.now()
	records := make([]record.User, 0, len(res.Entries))

	for _, entry := range res.Entries {
		u, err := record.Map(entry, sch)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping directory entry")

			report.Skipped++
			metrics.Entries.WithLabelValues(resultSkipped).Inc()

			continue
		}

		status.Apply(&u, now)

		logger.Debug().
			Str("username", u.Username).
			Str("status", u.Status.String()).
			Str("modifyTimestamp", u.ModifyTimestamp).
			Msg("resolved directory entry")

		records = append(records, u)
	}

	return records
}

// persist writes the records one by one and stops at the first failure.
func (o *Orchestrator) persist(ctx context.Context, records []record.User, report *Report) error {
	logger := zerolog.Ctx(ctx)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		stored, err := o.users.Upsert(ctx, rec)
		if err != nil {
			logger.Error().Err(err).Str("username", rec.Username).Msg("failed to write user, aborting iteration")

			report.Failed++
			metrics.Entries.WithLabelValues(resultFailed).Inc()

			return err
		}

		report.Processed++
		metrics.Entries.WithLabelValues(resultProcessed).Inc()
		metrics.Statuses.WithLabelValues(stored.Status.String()).Inc()
	}

	return nil
}

// finish records the outcome of an iteration in logs, metrics and the sync state rows.
func (o *Orchestrator) finish(ctx context.Context, report *Report, err error) {
	logger := zerolog.Ctx(ctx)
	outcome := outcomeOf(ctx, err)

	metrics.Iterations.WithLabelValues(string(report.Strategy), outcome).Inc()
	metrics.IterationDuration.Observe(report.Duration.Seconds())

	if report.Truncated {
		metrics.TruncatedPulls.Inc()
	}

	if err != nil {
		o.failures++
		metrics.ConsecutiveFailures.Set(float64(o.failures))

		logger.Error().
			Err(err).
			Str("outcome", outcome).
			Int("consecutiveFailures", o.failures).
			Int("processed", report.Processed).
			Msg("sync iteration failed")

		o.recordFailure(ctx, err)

		return
	}

	o.failures = 0
	metrics.ConsecutiveFailures.Set(0)
	metrics.LastSuccess.Set(float64(o.now().Unix()))

	if report.CursorAdvanced {
		metrics.CursorAdvances.WithLabelValues(string(cursorKind(report.Strategy))).Inc()
	}

	event := logger.Info()
	if report.Fetched == 0 {
		event = logger.Debug()
	}

	event.
		Str("vendor", string(report.Vendor)).
		Str("strategy", string(report.Strategy)).
		Int("fetched", report.Fetched).
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Bool("cursorAdvanced", report.CursorAdvanced).
		Dur("duration", report.Duration).
		Msg("sync iteration completed")

	o.recordSuccess(ctx, report)
}

func outcomeOf(ctx context.Context, err error) string {
	var (
		connErr   *directory.ConnectionError
		searchErr *directory.SearchError
		cursorErr *CursorError
	)

	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case ctx.Err() != nil:
		return metrics.OutcomeCanceled
	case errors.As(err, &connErr):
		return metrics.OutcomeConnectFailure
	case errors.As(err, &searchErr):
		return metrics.OutcomeSearchFailure
	case errors.As(err, &cursorErr):
		return metrics.OutcomeCursorSaveFailed
	default:
		return metrics.OutcomePersistFailure
	}
}

func cursorKind(s Strategy) cursor.Kind {
	if s == StrategyPush {
		return cursor.KindPush
	}

	return cursor.KindTimestamp
}

// sleepContext waits d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
