package directory

import (
	"context"
	"strconv"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"github.com/cybercore/ldap-sync/internal/schema"
)

// Fixture is an in process directory for dry runs. It replays a scripted
// change feed, one step per search:
//
//	1: alice, bob and carol appear
//	4: bob is disabled
//	6: david appears
//	9: alice is tombstoned, when deleted entries are requested
//
// Every other search returns no changes.
type Fixture struct {
	mu     sync.Mutex
	search int
}

// NewFixture returns a Fixture at the start of its feed.
func NewFixture() *Fixture {
	return &Fixture{}
}

// Vendor is the schema the fixture entries are encoded for.
func (f *Fixture) Vendor() schema.Vendor {
	return schema.VendorActiveDirectory
}

// Connect implements Connector.
func (f *Fixture) Connect(_ context.Context) (Session, error) {
	return &fixtureSession{fixture: f, alive: true}, nil
}

// next advances the feed and returns the entries for the new step.
func (f *Fixture) next(includeDeleted bool) (int, []*ldap.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.search++

	switch f.search {
	case 1:
		return f.search, []*ldap.Entry{
			fixtureUser("alice", "Alice", "Johnson", "512"),
			fixtureUser("bob", "Bob", "Smith", "512"),
			fixtureUser("carol", "Carol", "Williams", "512"),
		}
	case 4:
		return f.search, []*ldap.Entry{fixtureUser("bob", "Bob", "Smith", "514")}
	case 6:
		return f.search, []*ldap.Entry{fixtureUser("david", "David", "Brown", "512")}
	case 9:
		if !includeDeleted {
			return f.search, nil
		}

		alice := fixtureUser("alice", "Alice", "Johnson", "514")
		alice.Attributes = append(alice.Attributes, ldap.NewEntryAttribute("isDeleted", []string{"TRUE"}))

		return f.search, []*ldap.Entry{alice}
	default:
		return f.search, nil
	}
}

func fixtureUser(username, given, surname, uac string) *ldap.Entry {
	cn := given + " " + surname

	return ldap.NewEntry("CN="+cn+",OU=Users,DC=example,DC=org", map[string][]string{
		"sAMAccountName":     {username},
		"mail":               {username + "@example.org"},
		"givenName":          {given},
		"sn":                 {surname},
		"cn":                 {cn},
		"userAccountControl": {uac},
		"accountExpires":     {"9223372036854775807"},
		"lockoutTime":        {"0"},
	})
}

// requested drops the attributes s does not ask for, the way a server honours
// the search attribute list. An empty list returns every attribute.
func requested(entries []*ldap.Entry, s schema.Schema) []*ldap.Entry {
	if len(s.Attributes) == 0 {
		return entries
	}

	out := make([]*ldap.Entry, 0, len(entries))

	for _, e := range entries {
		kept := &ldap.Entry{DN: e.DN}

		for _, a := range e.Attributes {
			if s.HasAttribute(a.Name) {
				kept.Attributes = append(kept.Attributes, a)
			}
		}

		out = append(out, kept)
	}

	return out
}

type fixtureSession struct {
	fixture *Fixture
	alive   bool
}

func (s *fixtureSession) Alive() bool { return s.alive }

func (s *fixtureSession) Ping(_ context.Context) error {
	if !s.alive {
		return &SearchError{Op: "ping", Err: ErrConnectionClosed}
	}

	return nil
}

func (s *fixtureSession) RootDSE(_ context.Context) (*ldap.Entry, error) {
	return ldap.NewEntry("", map[string][]string{
		"defaultNamingContext": {"DC=example,DC=org"},
		"namingContexts":       {"DC=example,DC=org"},
	}), nil
}

func (s *fixtureSession) SearchPush(ctx context.Context, q PushQuery) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SearchError{Op: "push", Err: err}
	}

	step, entries := s.fixture.next(q.IncludeDeleted)

	return &Result{Entries: requested(entries, q.Schema), Cursor: []byte("fixture-cookie-" + strconv.Itoa(step))}, nil
}

func (s *fixtureSession) SearchPull(ctx context.Context, q PullQuery) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SearchError{Op: "pull", Err: err}
	}

	step, entries := s.fixture.next(false)

	return &Result{Entries: requested(entries, q.Schema), Cursor: []byte("fixture-" + strconv.Itoa(step))}, nil
}

func (s *fixtureSession) Close() error {
	s.alive = false

	return nil
}
