package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cybercore/ldap-sync/internal/db/controller/syncstate"
)

func (o *Orchestrator) recordSuccess(ctx context.Context, report *Report) {
	if o.stateDB == nil {
		return
	}

	err := syncstate.SetMany(o.stateDB.WithContext(ctx), map[string]string{
		syncstate.LastSuccess:  o.now().UTC().Format(time.RFC3339),
		syncstate.LastRunID:    report.RunID,
		syncstate.LastStrategy: string(report.Strategy),
		syncstate.Vendor:       string(report.Vendor),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record sync state")
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, cause error) {
	if o.stateDB == nil {
		return
	}

	// The iteration context may already be canceled.
	db := o.stateDB.WithContext(context.WithoutCancel(ctx))

	err := syncstate.SetMany(db, map[string]string{
		syncstate.LastFailure: o.now().UTC().Format(time.RFC3339),
		syncstate.LastError:   cause.Error(),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record sync state")
	}
}
