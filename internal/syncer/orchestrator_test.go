package syncer

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybercore/ldap-sync/internal/cursor"
	"github.com/cybercore/ldap-sync/internal/db/controller/user"
	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/directory"
	"github.com/cybercore/ldap-sync/internal/schema"
)

func newOrchestrator(
	t *testing.T,
	dir *fakeDirectory,
	vendor schema.Vendor,
	cursors *memCursors,
	users *fakeUsers,
	opts ...Option,
) *Orchestrator {
	t.Helper()

	o, err := New(dir, vendor, cursors, users, syncConfig(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	return o
}

func TestNew(t *testing.T) {
	dir := &fakeDirectory{}
	cursors := newMemCursors()
	users := &fakeUsers{}

	tests := []struct {
		name      string
		connector directory.Connector
		vendor    schema.Vendor
		cursors   CursorStore
		users     UserStore
		wantErr   error
	}{
		{name: "nil connector", vendor: schema.VendorActiveDirectory, cursors: cursors, users: users, wantErr: ErrNilConnector},
		{name: "nil cursors", connector: dir, vendor: schema.VendorActiveDirectory, users: users, wantErr: ErrNilCursorStore},
		{name: "nil users", connector: dir, vendor: schema.VendorActiveDirectory, cursors: cursors, wantErr: ErrNilUserStore},
		{name: "unknown vendor", connector: dir, vendor: "novell", cursors: cursors, users: users, wantErr: schema.ErrUnknownVendor},
		{name: "auto", connector: dir, vendor: schema.VendorAuto, cursors: cursors, users: users},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(tt.connector, tt.vendor, tt.cursors, tt.users, syncConfig())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, o)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, StateIdle, o.State())
		})
	}
}

func TestRunOncePush(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{
		adUser("alice", "512"),
		adUser("bob", "514"),
		ldap.NewEntry("CN=printer,DC=example,DC=org", map[string][]string{"cn": {"printer"}}),
	}}
	cursors := newMemCursors()
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Iteration)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, schema.VendorActiveDirectory, report.Vendor)
	assert.Equal(t, StrategyPush, report.Strategy)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.True(t, report.CursorAdvanced)
	assert.Equal(t, StateIdle, o.State())

	require.Len(t, users.written, 2)
	assert.Equal(t, "alice", users.written[0].Username)
	assert.Equal(t, models.StatusActive, users.written[0].Status)
	assert.Equal(t, "bob", users.written[1].Username)
	assert.Equal(t, models.StatusInactive, users.written[1].Status)

	assert.Equal(t, []byte("cookie-1"), cursors.values[cursor.KindPush])
	assert.Nil(t, dir.cookies[0])

	report, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Iteration)
	assert.Equal(t, 1, dir.connects, "live session is reused")
	assert.Equal(t, []byte("cookie-1"), dir.cookies[1])
	assert.Equal(t, []byte("cookie-2"), cursors.values[cursor.KindPush])
}

func TestRunOncePull(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{openLDAPUser("carol")}}
	cursors := newMemCursors()
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorOpenLDAP, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyPull, report.Strategy)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, "", dir.sinces[0])

	saved := string(cursors.values[cursor.KindTimestamp])
	assert.Equal(t, "20260114090100.0Z", saved)
	assert.Empty(t, cursors.values[cursor.KindPush])

	_, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, saved, dir.sinces[1])
}

func TestTruncatedPullKeepsCursor(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{openLDAPUser("alice"), openLDAPUser("bob")}, truncated: true}
	cursors := newMemCursors()
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorOpenLDAP, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Truncated)
	assert.False(t, report.CursorAdvanced)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, cursors.saves)
	assert.Len(t, users.written, 2)

	_, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", ""}, dir.sinces, "the next search starts from the previous cursor")
}

func TestIncludeDeletesFollowsSchema(t *testing.T) {
	tests := []struct {
		name           string
		includeDeletes bool
		want           bool
	}{
		{name: "enabled", includeDeletes: true, want: true},
		{name: "disabled", includeDeletes: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{}
			cfg := syncConfig()
			cfg.IncludeDeletes = tt.includeDeletes

			o, err := New(dir, schema.VendorActiveDirectory, newMemCursors(), &fakeUsers{}, cfg)
			require.NoError(t, err)

			_, err = o.RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []bool{tt.want}, dir.includeDeleted)
		})
	}
}

func TestPersistenceFailureKeepsCursor(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{adUser("alice", "512"), adUser("bob", "512"), adUser("carol", "512")}}
	cursors := newMemCursors()
	users := &fakeUsers{failOn: "bob"}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.Error(t, err)

	var persistErr *user.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "bob", persistErr.Username)
	assert.False(t, NeedsBackoff(err))

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.CursorAdvanced)
	assert.Zero(t, cursors.saves)
	require.Len(t, users.written, 1, "records after the failure are not written")

	users.failOn = ""

	report, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Nil(t, dir.cookies[1], "the batch is replayed from the previous cursor")
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, dir.connects, "a database failure keeps the directory session")
}

func TestCursorSaveFailure(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{adUser("alice", "512")}}
	cursors := newMemCursors()
	cursors.saveErr = errTest
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.ErrorIs(t, err, errTest)

	var cursorErr *CursorError
	require.ErrorAs(t, err, &cursorErr)
	assert.Equal(t, cursor.KindPush, cursorErr.Kind)
	assert.False(t, NeedsBackoff(err))

	assert.Equal(t, 1, report.Processed)
	assert.False(t, report.CursorAdvanced)
	assert.Len(t, users.written, 1)
}

func TestConnectFailure(t *testing.T) {
	dir := &fakeDirectory{connectErr: errTest}
	cursors := newMemCursors()
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, users)

	report, err := o.RunOnce(context.Background())
	require.ErrorIs(t, err, errTest)

	var connErr *directory.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, NeedsBackoff(err))

	assert.Zero(t, report.Fetched)
	assert.Zero(t, cursors.saves)
	assert.Empty(t, users.written)
	assert.Equal(t, StateIdle, o.State())
}

func TestSearchFailureInvalidatesSession(t *testing.T) {
	dir := &fakeDirectory{searchErr: errTest, entries: []*ldap.Entry{adUser("alice", "512")}}
	cursors := newMemCursors()
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, &fakeUsers{})

	_, err := o.RunOnce(context.Background())
	require.ErrorIs(t, err, errTest)

	var searchErr *directory.SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.True(t, NeedsBackoff(err))
	assert.Zero(t, cursors.saves)

	require.Len(t, dir.sessions, 1)
	assert.True(t, dir.sessions[0].closed)

	dir.searchErr = nil

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dir.connects)
	assert.Equal(t, 1, report.Processed)
}

func TestPingFailureReconnects(t *testing.T) {
	dir := &fakeDirectory{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, newMemCursors(), &fakeUsers{})

	_, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	dir.pingErr = errTest

	_, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dir.connects)
	require.Len(t, dir.sessions, 2)
	assert.True(t, dir.sessions[0].closed)
	assert.False(t, dir.sessions[1].closed)
}

func TestDeadSessionReconnects(t *testing.T) {
	dir := &fakeDirectory{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, newMemCursors(), &fakeUsers{})

	_, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	dir.sessions[0].alive = false

	_, err = o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dir.connects)
}

func TestAutoDetection(t *testing.T) {
	tests := []struct {
		name         string
		rootDSE      *ldap.Entry
		wantVendor   schema.Vendor
		wantStrategy Strategy
	}{
		{
			name:         "active directory",
			rootDSE:      ldap.NewEntry("", map[string][]string{"defaultNamingContext": {"DC=example,DC=org"}}),
			wantVendor:   schema.VendorActiveDirectory,
			wantStrategy: StrategyPush,
		},
		{
			name:         "389 directory server",
			rootDSE:      ldap.NewEntry("", map[string][]string{"vendorName": {"389 Project"}}),
			wantVendor:   schema.Vendor389DS,
			wantStrategy: StrategyPull,
		},
		{
			name:         "root DSE unavailable",
			wantVendor:   schema.VendorOpenLDAP,
			wantStrategy: StrategyPull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{rootDSE: tt.rootDSE}
			o := newOrchestrator(t, dir, schema.VendorAuto, newMemCursors(), &fakeUsers{})

			report, err := o.RunOnce(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantVendor, report.Vendor)
			assert.Equal(t, tt.wantStrategy, report.Strategy)
		})
	}
}

func TestRunWaits(t *testing.T) {
	tests := []struct {
		name       string
		connectErr error
		want       float64
	}{
		{name: "success waits the interval", want: syncConfig().Interval.Seconds()},
		{name: "connect failure waits the error backoff", connectErr: errTest, want: syncConfig().ErrorBackoff.Seconds()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sleep, waits := recordSleeps(cancel, 2)
			dir := &fakeDirectory{connectErr: tt.connectErr}
			o := newOrchestrator(t, dir, schema.VendorActiveDirectory, newMemCursors(), &fakeUsers{}, WithSleep(sleep))

			require.NoError(t, o.Run(ctx))

			require.Len(t, *waits, 2)
			for _, w := range *waits {
				assert.InDelta(t, tt.want, w.Seconds(), 0)
			}

			assert.Equal(t, 2, o.iteration)
			assert.Equal(t, StateIdle, o.State())
		})
	}
}

func TestRunClosesSessionOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep, _ := recordSleeps(cancel, 1)
	dir := &fakeDirectory{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, newMemCursors(), &fakeUsers{}, WithSleep(sleep))

	require.NoError(t, o.Run(ctx))

	require.Len(t, dir.sessions, 1)
	assert.True(t, dir.sessions[0].closed)
}

func TestCanceledIterationKeepsCursor(t *testing.T) {
	dir := &fakeDirectory{entries: []*ldap.Entry{adUser("alice", "512")}}
	cursors := newMemCursors()
	users := &fakeUsers{}
	o := newOrchestrator(t, dir, schema.VendorActiveDirectory, cursors, users)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, users.written)
	assert.Zero(t, cursors.saves)
}

func TestIterationLogsCarryRunContext(t *testing.T) {
	var buf bytes.Buffer

	previous := log.Logger
	log.Logger = log.Output(&buf)
	t.Cleanup(func() { log.Logger = previous })

	dir := &fakeDirectory{entries: []*ldap.Entry{openLDAPUser("alice")}}
	o := newOrchestrator(t, dir, schema.VendorOpenLDAP, newMemCursors(), &fakeUsers{})

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"component":"syncer"`)
	assert.Contains(t, buf.String(), `"runID":"`+report.RunID+`"`)
}
