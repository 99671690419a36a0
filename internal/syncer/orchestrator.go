// Package syncer runs the incremental directory to database replication loop.
//
// One iteration connects (or reuses a live session), fetches the changes since
// the stored cursor, maps and resolves every entry, upserts the records in
// server order and finally saves the new cursor. The cursor is only saved
// after every record was written, so an interrupted iteration is replayed.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cybercore/ldap-sync/internal/config"
	"github.com/cybercore/ldap-sync/internal/cursor"
	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/directory"
	applog "github.com/cybercore/ldap-sync/internal/logger"
	"github.com/cybercore/ldap-sync/internal/metrics"
	"github.com/cybercore/ldap-sync/internal/record"
	"github.com/cybercore/ldap-sync/internal/schema"
)

// State is the position of the orchestrator in its iteration cycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateFetching     State = "fetching"
	StateProcessing   State = "processing"
	StatePersisting   State = "persisting"
	StateErrorBackoff State = "error_backoff"
)

// Strategy is the change detection mode of an iteration.
type Strategy string

const (
	// StrategyPush resumes a DirSync cookie.
	StrategyPush Strategy = "push"
	// StrategyPull filters on modifyTimestamp.
	StrategyPull Strategy = "pull"
)

var (
	// ErrNilConnector is returned by New without a directory connector.
	ErrNilConnector = errors.New("directory connector is nil")
	// ErrNilCursorStore is returned by New without a cursor store.
	ErrNilCursorStore = errors.New("cursor store is nil")
	// ErrNilUserStore is returned by New without a user store.
	ErrNilUserStore = errors.New("user store is nil")
)

// CursorStore loads and saves the incremental position.
type CursorStore interface {
	Load(kind cursor.Kind) ([]byte, bool, error)
	Save(kind cursor.Kind, value []byte) error
}

// UserStore writes canonical records.
type UserStore interface {
	Upsert(ctx context.Context, rec record.User) (*models.User, error)
}

// Report summarizes one iteration.
type Report struct {
	Iteration int
	RunID     string
	Vendor    schema.Vendor
	Strategy  Strategy
	// Fetched is the number of entries returned by the directory.
	Fetched   int
	Processed int
	// Skipped counts entries that could not be mapped.
	Skipped int
	// Failed counts records the database rejected.
	Failed         int
	CursorAdvanced bool
	Truncated      bool
	Duration       time.Duration
}

// Orchestrator owns the directory session and drives the iterations.
// It is not safe for concurrent RunOnce calls; State may be read from any goroutine.
type Orchestrator struct {
	connector directory.Connector
	cursors   CursorStore
	users     UserStore
	stateDB   *gorm.DB
	cfg       config.Sync
	vendor    schema.Vendor

	session     directory.Session
	schema      schema.Schema
	connections int
	iteration   int
	failures    int

	mu    sync.RWMutex
	state State

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the time source used for status resolution.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSleep replaces the wait between iterations.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithStateDB records the informational sync state rows in db.
func WithStateDB(db *gorm.DB) Option {
	return func(o *Orchestrator) {
		o.stateDB = db
	}
}

// New returns an idle orchestrator. vendor may be schema.VendorAuto to detect
// the schema from the root DSE of every new connection.
func New(
	connector directory.Connector,
	vendor schema.Vendor,
	cursors CursorStore,
	users UserStore,
	cfg config.Sync,
	opts ...Option,
) (*Orchestrator, error) {
	switch {
	case connector == nil:
		return nil, ErrNilConnector
	case cursors == nil:
		return nil, ErrNilCursorStore
	case users == nil:
		return nil, ErrNilUserStore
	}

	if vendor != schema.VendorAuto {
		if _, err := schema.Lookup(vendor); err != nil {
			return nil, err
		}
	}

	o := &Orchestrator{
		connector: connector,
		cursors:   cursors,
		users:     users,
		cfg:       cfg,
		vendor:    vendor,
		state:     StateIdle,
		now:       time.Now,
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run loops until ctx is canceled. Connection and search failures wait the
// error backoff; every other iteration waits the interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.Close()

	log.Info().
		Str("vendor", string(o.vendor)).
		Dur("interval", o.cfg.Interval).
		Dur("errorBackoff", o.cfg.ErrorBackoff).
		Msg("sync loop started")

	for {
		_, err := o.RunOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		wait := o.cfg.Interval
		if err != nil && NeedsBackoff(err) {
			wait = o.cfg.ErrorBackoff
			o.setState(StateErrorBackoff)
			log.Warn().Err(err).Dur("wait", wait).Msg("directory unavailable, backing off")
		}

		if err = o.sleep(ctx, wait); err != nil {
			break
		}
	}

	o.setState(StateIdle)
	log.Info().Msg("sync loop stopped")

	return nil
}

// NeedsBackoff reports whether err came from the directory side, which waits
// the error backoff instead of the normal interval.
func NeedsBackoff(err error) bool {
	var connErr *directory.ConnectionError
	var searchErr *directory.SearchError

	return errors.As(err, &connErr) || errors.As(err, &searchErr)
}

// Close drops the current session.
func (o *Orchestrator) Close() {
	o.invalidate()
}

// RunOnce runs a single iteration. The returned error is the cause of a
// failed iteration; the report is filled as far as the iteration got.
func (o *Orchestrator) RunOnce(ctx context.Context) (Report, error) {
	o.iteration++

	report := Report{Iteration: o.iteration, RunID: uuid.NewString()}
	logger := applog.Component("syncer").With().
		Str("runID", report.RunID).
		Int("iteration", report.Iteration).
		Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	err := o.iterate(ctx, &report)

	report.Duration = time.Since(start)
	o.finish(ctx, &report, err)
	o.setState(StateIdle)

	return report, err
}

func (o *Orchestrator) iterate(ctx context.Context, report *Report) error {
	logger := zerolog.Ctx(ctx)

	o.setState(StateConnecting)

	session, sch, err := o.connect(ctx)
	if err != nil {
		return err
	}

	report.Vendor = sch.Vendor

	o.setState(StateFetching)

	kind, res, err := o.fetch(ctx, session, sch, report)
	if err != nil {
		o.invalidate()

		return err
	}

	report.Fetched = len(res.Entries)
	report.Truncated = res.Truncated

	o.setState(StateProcessing)

	records := o.process(ctx, sch, res, report)

	o.setState(StatePersisting)

	if err = o.persist(ctx, records, report); err != nil {
		return err
	}

	if res.Truncated {
		logger.Warn().Str("kind", string(kind)).Int("fetched", report.Fetched).
			Msg("directory result truncated, keeping the previous cursor")

		return nil
	}

	if err = o.cursors.Save(kind, res.Cursor); err != nil {
		logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to save cursor, the batch will be replayed")

		return &CursorError{Kind: kind, Err: err}
	}

	report.CursorAdvanced = true

	return nil
}

// connect reuses the current session when it answers a ping and opens a new one otherwise.
func (o *Orchestrator) connect(ctx context.Context) (directory.Session, schema.Schema, error) {
	logger := zerolog.Ctx(ctx)

	if o.session != nil {
		if o.session.Alive() {
			err := o.session.Ping(ctx)
			if err == nil {
				return o.session, o.schema, nil
			}

			logger.Warn().Err(err).Msg("directory session failed health check, reconnecting")
		}

		o.invalidate()
	}

	session, err := o.connector.Connect(ctx)
	if err != nil {
		return nil, schema.Schema{}, err
	}

	o.connections++
	if o.connections > 1 {
		metrics.Reconnects.Inc()
	}

	sch, err := o.resolveSchema(ctx, session)
	if err != nil {
		_ = session.Close()

		return nil, schema.Schema{}, err
	}

	o.session = session
	o.schema = sch

	logger.Info().Str("vendor", string(sch.Vendor)).Int("connection", o.connections).Msg("directory session established")

	return session, sch, nil
}

// resolveSchema runs vendor detection once per connection when the vendor is auto.
func (o *Orchestrator) resolveSchema(ctx context.Context, session directory.Session) (schema.Schema, error) {
	vendor := o.vendor

	if vendor == schema.VendorAuto {
		rootDSE, err := session.RootDSE(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("root DSE lookup failed, defaulting to openldap schema")

			vendor = schema.VendorOpenLDAP
		} else {
			vendor = schema.Detect(rootDSE)
		}
	}

	return schema.Lookup(vendor)
}

func (o *Orchestrator) invalidate() {
	if o.session == nil {
		return
	}

	if err := o.session.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close directory session")
	}

	o.session = nil
}

func (o *Orchestrator) fetch(
	ctx context.Context,
	session directory.Session,
	sch schema.Schema,
	report *Report,
) (cursor.Kind, *directory.Result, error) {
	logger := zerolog.Ctx(ctx)

	if sch.SupportsPushCursor {
		report.Strategy = StrategyPush

		cookie := o.loadCursor(ctx, cursor.KindPush)

		logger.Debug().Int("cookieBytes", len(cookie)).Msg("running push search")

		res, err := session.SearchPush(ctx, directory.PushQuery{
			Schema:         sch,
			Cookie:         cookie,
			IncludeDeleted: o.cfg.IncludeDeletes && sch.SupportsTombstones,
			PageSize:       o.cfg.PageSize,
		})

		return cursor.KindPush, res, err
	}

	report.Strategy = StrategyPull

	since := string(o.loadCursor(ctx, cursor.KindTimestamp))

	logger.Debug().Str("since", since).Msg("running pull search")

	res, err := session.SearchPull(ctx, directory.PullQuery{
		Schema:   sch,
		Since:    since,
		PageSize: o.cfg.PageSize,
	})

	return cursor.KindTimestamp, res, err
}

// loadCursor returns the stored cursor. Missing or unreadable cursors start a full sync.
func (o *Orchestrator) loadCursor(ctx context.Context, kind cursor.Kind) []byte {
	value, found, err := o.cursors.Load(kind)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("kind", string(kind)).Msg("failed to load cursor, running full sync")

		return nil
	}

	if !found {
		zerolog.Ctx(ctx).Info().Str("kind", string(kind)).Msg("no stored cursor, running full sync")
	}

	return value
}
