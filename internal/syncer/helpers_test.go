package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/cybercore/ldap-sync/internal/config"
	"github.com/cybercore/ldap-sync/internal/cursor"
	"github.com/cybercore/ldap-sync/internal/db/controller/user"
	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/directory"
	"github.com/cybercore/ldap-sync/internal/record"
)

var errTest = errors.New("test error")

var testNow = time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC) //nolint:gochecknoglobals

func syncConfig() config.Sync {
	return config.Sync{
		Interval:     30 * time.Second,
		ErrorBackoff: 60 * time.Second,
		PageSize:     100,
	}
}

func clock() time.Time { return testNow }

// fakeDirectory is a scripted Connector returning entries on every search.
type fakeDirectory struct {
	connectErr error
	pingErr    error
	searchErr  error
	rootDSE    *ldap.Entry
	entries    []*ldap.Entry
	truncated  bool

	connects       int
	searches       int
	cookies        [][]byte
	sinces         []string
	includeDeleted []bool
	sessions       []*fakeSession
}

func (d *fakeDirectory) Connect(_ context.Context) (directory.Session, error) {
	d.connects++

	if d.connectErr != nil {
		return nil, &directory.ConnectionError{URI: "ldap://fake", Err: d.connectErr}
	}

	s := &fakeSession{dir: d, alive: true}
	d.sessions = append(d.sessions, s)

	return s, nil
}

type fakeSession struct {
	dir    *fakeDirectory
	alive  bool
	closed bool
}

func (s *fakeSession) Alive() bool { return s.alive }

func (s *fakeSession) Ping(_ context.Context) error { return s.dir.pingErr }

func (s *fakeSession) RootDSE(_ context.Context) (*ldap.Entry, error) {
	if s.dir.rootDSE == nil {
		return nil, &directory.SearchError{Op: "root DSE", Err: directory.ErrNoRootDSE}
	}

	return s.dir.rootDSE, nil
}

func (s *fakeSession) SearchPush(_ context.Context, q directory.PushQuery) (*directory.Result, error) {
	s.dir.cookies = append(s.dir.cookies, q.Cookie)
	s.dir.includeDeleted = append(s.dir.includeDeleted, q.IncludeDeleted)

	if s.dir.searchErr != nil {
		return nil, &directory.SearchError{Op: "push", Err: s.dir.searchErr}
	}

	s.dir.searches++

	return &directory.Result{
		Entries: s.dir.entries,
		Cursor:  []byte(fmt.Sprintf("cookie-%d", s.dir.searches)),
	}, nil
}

func (s *fakeSession) SearchPull(_ context.Context, q directory.PullQuery) (*directory.Result, error) {
	s.dir.sinces = append(s.dir.sinces, q.Since)

	if s.dir.searchErr != nil {
		return nil, &directory.SearchError{Op: "pull", Err: s.dir.searchErr}
	}

	s.dir.searches++

	return &directory.Result{
		Entries:   s.dir.entries,
		Cursor:    []byte(directory.FormatCursor(testNow.Add(time.Duration(s.dir.searches) * time.Minute))),
		Truncated: s.dir.truncated,
	}, nil
}

func (s *fakeSession) Close() error {
	s.alive = false
	s.closed = true

	return nil
}

// memCursors is an in memory CursorStore.
type memCursors struct {
	values  map[cursor.Kind][]byte
	saveErr error
	saves   int
}

func newMemCursors() *memCursors {
	return &memCursors{values: map[cursor.Kind][]byte{}}
}

func (m *memCursors) Load(kind cursor.Kind) ([]byte, bool, error) {
	v, ok := m.values[kind]

	return v, ok, nil
}

func (m *memCursors) Save(kind cursor.Kind, value []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}

	m.saves++
	m.values[kind] = value

	return nil
}

// fakeUsers records written users and rejects failOn.
type fakeUsers struct {
	failOn  string
	written []record.User
}

func (f *fakeUsers) Upsert(_ context.Context, rec record.User) (*models.User, error) {
	if rec.Username == f.failOn {
		return nil, &user.PersistenceError{Username: rec.Username, Err: errTest}
	}

	f.written = append(f.written, rec)

	return &models.User{Username: rec.Username, Status: rec.Status, Active: rec.Status == models.StatusActive}, nil
}

func adUser(username, uac string) *ldap.Entry {
	return ldap.NewEntry("CN="+username+",OU=Users,DC=example,DC=org", map[string][]string{
		"sAMAccountName":     {username},
		"mail":               {username + "@example.org"},
		"userAccountControl": {uac},
	})
}

func openLDAPUser(uid string) *ldap.Entry {
	return ldap.NewEntry("uid="+uid+",ou=people,dc=example,dc=org", map[string][]string{
		"uid":  {uid},
		"mail": {uid + "@example.org"},
		"cn":   {uid},
	})
}

// recordSleeps returns a sleep func recording waits that cancels the loop on call n.
func recordSleeps(cancel context.CancelFunc, n int) (func(context.Context, time.Duration) error, *[]time.Duration) {
	var waits []time.Duration

	return func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) >= n {
			cancel()

			return ctx.Err()
		}

		return nil
	}, &waits
}
