// Package record converts directory search entries into canonical user records.
package record

import (
	"time"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/schema"
)

// User is the canonical unit of replication.
// Optional directory attributes are empty strings when absent.
type User struct {
	Username    string
	Email       string
	GivenName   string
	Surname     string
	DisplayName string
	DN          string
	Status      models.Status
	// ModifyTimestamp is carried for logging only.
	ModifyTimestamp string
	// Raw holds the vendor-specific fields consumed by the status resolver.
	Raw Raw
}

// Raw is the vendor-tagged set of raw status fields.
// Exactly one of the concrete types below is stored per record.
type Raw interface {
	Vendor() schema.Vendor
}

// ActiveDirectory holds the Active Directory account state attributes.
type ActiveDirectory struct {
	IsDeleted          string
	UserAccountControl string
	AccountExpires     string
	LockoutTime        string
}

// Vendor implements Raw.
func (ActiveDirectory) Vendor() schema.Vendor { return schema.VendorActiveDirectory }

// OpenLDAP holds the shadowAccount, ppolicy and custom status attributes.
type OpenLDAP struct {
	ShadowExpire         string
	AccountStatus        string
	PwdAccountLockedTime string
}

// Vendor implements Raw.
func (OpenLDAP) Vendor() schema.Vendor { return schema.VendorOpenLDAP }

// DS389 holds the 389 Directory Server account lock and password expiry attributes.
type DS389 struct {
	NsAccountLock          string
	PasswordExpirationTime string
}

// Vendor implements Raw.
func (DS389) Vendor() schema.Vendor { return schema.Vendor389DS }

// Model converts the record into the database model written by the upserter.
// Empty optional attributes become NULL columns.
func (u *User) Model(syncedAt time.Time) *models.User {
	return &models.User{
		Username:     u.Username,
		Email:        optional(u.Email),
		FirstName:    optional(u.GivenName),
		LastName:     optional(u.Surname),
		FullName:     optional(u.DisplayName),
		LdapDN:       u.DN,
		Status:       u.Status,
		LastLdapSync: syncedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
