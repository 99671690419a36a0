package models

import (
	"time"

	"gorm.io/gorm"
)

// Status is the canonical account-lifecycle status computed from directory attributes.
type Status string

const (
	// StatusActive marks an account without any negative indicator.
	StatusActive Status = "active"
	// StatusInactive marks a disabled or expired account.
	StatusInactive Status = "inactive"
	// StatusSuspended marks a locked-out account.
	StatusSuspended Status = "suspended"
	// StatusBanned marks an account with the restricted password flag combination.
	StatusBanned Status = "banned"
	// StatusDeleted marks a tombstoned directory entry.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the five canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusBanned, StatusDeleted:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// User is a directory account mirrored into the system of record.
// Rows are created on the first observation of a username and overwritten on
// every later observation. They are never hard-deleted by the sync engine.
type User struct {
	// ID is the surrogate primary key.
	ID uint64 `gorm:"primaryKey"`
	// Username is the directory login name and the upsert key.
	Username string `gorm:"uniqueIndex;size:255;not null"`
	// Email is the directory mail attribute.
	Email *string `gorm:"size:255"`
	// FirstName is the directory givenName attribute.
	FirstName *string `gorm:"size:255"`
	// LastName is the directory sn attribute.
	LastName *string `gorm:"size:255"`
	// FullName is cn, or given name and surname joined when cn is absent.
	FullName *string `gorm:"size:512"`
	// LdapDN is the distinguished name of the source entry.
	LdapDN string `gorm:"column:ldap_dn;size:1024"`
	// Active mirrors Status == StatusActive. It is recomputed in BeforeSave.
	Active bool `gorm:"not null;default:false"`
	// Status is the canonical lifecycle status.
	Status Status `gorm:"type:varchar(16);not null;index"`
	// LastLdapSync is the time of the last successful write by the sync engine.
	LastLdapSync time.Time `gorm:"column:last_ldap_sync;not null"`
	// DeletedAt is set while Status is StatusDeleted and nil otherwise.
	// It is a plain pointer rather than gorm.DeletedAt so reads are never scoped.
	DeletedAt *time.Time
	// CreatedAt is managed by gorm on insert.
	CreatedAt time.Time
}

// TableName pins the table name shared with the other consumers of the users table.
func (User) TableName() string {
	return "users"
}

// BeforeSave derives Active from Status on every create and save.
func (u *User) BeforeSave(_ *gorm.DB) error {
	u.Active = u.Status == StatusActive

	return nil
}

// IsDeleted reports whether the user carries a tombstone.
func (u *User) IsDeleted() bool {
	return u.Status == StatusDeleted
}
