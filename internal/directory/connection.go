package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/schema"
)

const (
	// OIDDirSync is the Active Directory change-notification control.
	OIDDirSync = ldap.ControlTypeDirSync
	// OIDShowDeleted makes tombstoned objects visible to searches.
	OIDShowDeleted = "1.2.840.113556.1.4.417"

	// dirSyncObjectSecurity returns only objects and attributes the caller may read.
	dirSyncObjectSecurity = 1

	// CursorLayout is the generalized time format of the pull cursor.
	CursorLayout = "20060102150405"
	cursorSuffix = ".0Z"
)

// Conn is the subset of *ldap.Conn used by the client.
type Conn interface {
	Bind(username, password string) error
	NTLMBind(domain, username, password string) error
	StartTLS(config *tls.Config) error
	SetTimeout(timeout time.Duration)
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
	IsClosing() bool
}

// Session is an authenticated directory connection.
type Session interface {
	// Alive reports whether the session can be reused.
	Alive() bool
	Ping(ctx context.Context) error
	RootDSE(ctx context.Context) (*ldap.Entry, error)
	SearchPush(ctx context.Context, q PushQuery) (*Result, error)
	SearchPull(ctx context.Context, q PullQuery) (*Result, error)
	Close() error
}

// Connector opens sessions. *Client and *Fixture implement it.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// PushQuery is a change-notification search resumed from Cookie.
type PushQuery struct {
	Schema schema.Schema
	// Cookie is the previous push cursor, nil or empty for a full sync.
	Cookie []byte
	// IncludeDeleted adds the show-deleted control and the tombstone filter.
	IncludeDeleted bool
	PageSize       int
}

// PullQuery is a timestamp bounded search.
type PullQuery struct {
	Schema schema.Schema
	// Since is the previous pull cursor, empty for a full sync.
	Since    string
	PageSize int
}

// Result is the outcome of one search.
type Result struct {
	Entries []*ldap.Entry
	// Cursor is the position to persist once the entries are written.
	Cursor []byte
	// Truncated is set when the server stopped at the size limit.
	Truncated bool
}

// Connection is a bound LDAP connection.
type Connection struct {
	conn   Conn
	baseDN string
	alive  bool
	now    func() time.Time
}

// Alive implements Session.
func (c *Connection) Alive() bool {
	return c.alive && !c.conn.IsClosing()
}

// Close implements Session.
func (c *Connection) Close() error {
	c.alive = false

	return c.conn.Close() //nolint:wrapcheck
}

// Ping probes the base DN with a base scope search.
func (c *Connection) Ping(ctx context.Context) error {
	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"1.1"}, // no attributes
		nil,
	)

	_, err := c.search(ctx, "ping", req)

	return err
}

// RootDSE reads the server root entry used for vendor detection.
func (c *Connection) RootDSE(ctx context.Context) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		schema.RootDSEAttributes,
		nil,
	)

	res, err := c.search(ctx, "root DSE", req)
	if err != nil {
		return nil, err
	}

	if len(res.Entries) == 0 {
		return nil, &SearchError{Op: "root DSE", Err: ErrNoRootDSE}
	}

	return res.Entries[0], nil
}

// SearchPush runs a DirSync search. The returned cursor is the cookie from
// the response control, or the request cookie when the server sent none.
func (c *Connection) SearchPush(ctx context.Context, q PushQuery) (*Result, error) {
	filter := q.Schema.UserFilter
	controls := []ldap.Control{
		ldap.NewRequestControlDirSync(dirSyncObjectSecurity, int64(q.PageSize), q.Cookie),
	}

	if q.IncludeDeleted {
		filter = q.Schema.TombstoneFilter
		controls = append(controls, ldap.NewControlMicrosoftShowDeleted())
	}

	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		q.Schema.Attributes,
		controls,
	)

	res, err := c.search(ctx, "push", req)
	if err != nil {
		return nil, err
	}

	cursor := q.Cookie

	if ctrl, ok := ldap.FindControl(res.Controls, OIDDirSync).(*ldap.ControlDirSync); ok && ctrl != nil {
		cursor = ctrl.Cookie
	} else {
		log.Debug().Msg("no DirSync response control, keeping previous cookie")
	}

	return &Result{Entries: res.Entries, Cursor: cursor}, nil
}

// SearchPull runs a modifyTimestamp bounded search, fetching every page with
// the paged results control. The returned cursor is the time the search
// started, so changes made while paging are returned again next time.
// When the server stops at its own size limit the partial entries are
// returned with the previous cursor and Truncated set.
func (c *Connection) SearchPull(ctx context.Context, q PullQuery) (*Result, error) {
	started := c.now()

	filter := q.Schema.UserFilter
	if q.Since != "" {
		filter = fmt.Sprintf("(&%s(modifyTimestamp>=%s))", q.Schema.UserFilter, ldap.EscapeFilter(q.Since))
	}

	paging := ldap.NewControlPaging(uint32(q.PageSize)) //nolint:gosec // validated range

	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false, // no size limit when paging
		filter,
		q.Schema.Attributes,
		[]ldap.Control{paging},
	)

	var entries []*ldap.Entry

	for page := 1; ; page++ {
		res, err := c.search(ctx, "pull", req)
		if err != nil {
			if !hasCode(err, ldap.LDAPResultSizeLimitExceeded) || res == nil {
				return nil, err
			}

			entries = append(entries, res.Entries...)

			log.Warn().Int("page", page).Int("entries", len(entries)).
				Msg("pull search hit the server size limit, keeping the previous cursor")

			return &Result{Entries: entries, Cursor: []byte(q.Since), Truncated: true}, nil
		}

		entries = append(entries, res.Entries...)

		ctrl, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || ctrl == nil || len(ctrl.Cookie) == 0 {
			log.Debug().Int("pages", page).Int("entries", len(entries)).Msg("pull search completed")

			break
		}

		paging.SetCookie(ctrl.Cookie)
	}

	return &Result{Entries: entries, Cursor: []byte(FormatCursor(started))}, nil
}

// FormatCursor renders t as a pull cursor.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(CursorLayout) + cursorSuffix
}

// search wraps Conn.Search. Transport failures mark the connection dead.
// A size limit result is returned together with its partial entries.
func (c *Connection) search(ctx context.Context, op string, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	fail := func(err error) *SearchError {
		return &SearchError{Op: op, BaseDN: req.BaseDN, Filter: req.Filter, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	if !c.Alive() {
		c.alive = false

		return nil, fail(ErrConnectionClosed)
	}

	res, err := c.conn.Search(req)
	if err != nil {
		if isNetworkError(err) {
			c.alive = false
		}

		return res, fail(err)
	}

	return res, nil
}
