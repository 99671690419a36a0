// Package user writes canonical directory records into the users table and
// provides the read side used by the CLI.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/record"
)

const (
	usernameQueryPattern = "username = ?"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameEmpty is returned when a record without a username reaches the upserter.
	ErrUsernameEmpty = errors.New("username cannot be empty")
	// ErrInvalidStatus is returned for a record whose status is not one of the canonical statuses.
	ErrInvalidStatus = errors.New("invalid user status")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// PersistenceError wraps a database failure while writing a user.
type PersistenceError struct {
	Username string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist user %q: %v", e.Username, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// overwritten lists the columns replaced on every observation of a username.
var overwritten = []string{ //nolint:gochecknoglobals
	"email",
	"first_name",
	"last_name",
	"full_name",
	"ldap_dn",
	"active",
	"status",
	"last_ldap_sync",
}

// Upserter writes records keyed on username. Each call is its own unit of work.
type Upserter struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures an Upserter.
type Option func(*Upserter)

// WithClock replaces the clock used for last_ldap_sync and deleted_at.
func WithClock(now func() time.Time) Option {
	return func(u *Upserter) {
		u.now = now
	}
}

// New creates an Upserter on db.
func New(db *gorm.DB, opts ...Option) (*Upserter, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	u := &Upserter{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(u)
	}

	return u, nil
}

// Upsert inserts the record or overwrites the existing row with the same username.
// deleted_at is set when the record is deleted and the row was not already
// tombstoned, kept when it was, and cleared for every other status.
func (u *Upserter) Upsert(ctx context.Context, rec record.User) (*models.User, error) {
	if rec.Username == "" {
		return nil, ErrUsernameEmpty
	}
	if !rec.Status.Valid() {
		return nil, &PersistenceError{Username: rec.Username, Err: fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)}
	}

	now := u.now()
	row := rec.Model(now)

	if rec.Status == models.StatusDeleted {
		row.DeletedAt = &now
	}

	db := u.db.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}},
		DoUpdates: append(clause.AssignmentColumns(overwritten), clause.Assignment{
			Column: clause.Column{Name: "deleted_at"},
			Value:  tombstoneExpr(db.Dialector.Name()),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, &PersistenceError{Username: rec.Username, Err: err}
	}

	stored, err := Get(db, rec.Username)
	if err != nil {
		return nil, &PersistenceError{Username: rec.Username, Err: err}
	}

	return stored, nil
}

// tombstoneExpr keeps an existing tombstone time for repeated deleted observations.
func tombstoneExpr(dialect string) clause.Expr {
	if dialect == "mysql" {
		return gorm.Expr("CASE WHEN VALUES(status) = 'deleted' " +
			"THEN COALESCE(deleted_at, VALUES(deleted_at)) ELSE NULL END")
	}

	return gorm.Expr("CASE WHEN excluded.status = 'deleted' " +
		"THEN COALESCE(users.deleted_at, excluded.deleted_at) ELSE NULL END")
}

// Get retrieves a user by username, including tombstoned users.
func Get(db *gorm.DB, username string) (*models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if username == "" {
		return nil, ErrUsernameEmpty
	}

	var user models.User
	result := db.Where(usernameQueryPattern, username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}

	return &user, nil
}

// List retrieves users ordered by username. activeOnly limits the result to active users.
func List(db *gorm.DB, activeOnly bool) ([]models.User, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	query := db.Order("username")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var users []models.User
	result := query.Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}

	return users, nil
}
