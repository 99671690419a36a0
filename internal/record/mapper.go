package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/cybercore/ldap-sync/internal/schema"
)

var (
	// ErrMissingUsername is returned for entries without the schema's username attribute.
	ErrMissingUsername = errors.New("entry has no username attribute")

	// ErrNilEntry is returned when the search result contains a nil entry.
	ErrNilEntry = errors.New("nil directory entry")
)

// MappingError describes an entry that could not be converted. The entry is skipped.
type MappingError struct {
	DN  string
	Err error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("failed to map entry %q: %v", e.DN, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Map converts a search entry into a canonical user record using s.
// Directory attributes are multi-valued; only the first value is used.
// The Status field is left empty for the status resolver.
func Map(entry *ldap.Entry, s schema.Schema) (User, error) {
	if entry == nil {
		return User{}, &MappingError{Err: ErrNilEntry}
	}

	a := attributes(entry)

	u := User{
		Username:        a.first(s.UsernameAttribute),
		Email:           a.first("mail"),
		GivenName:       a.first("givenName"),
		Surname:         a.first("sn"),
		DisplayName:     a.first("cn"),
		DN:              entry.DN,
		ModifyTimestamp: a.first("modifyTimestamp"),
	}

	if u.Username == "" {
		return User{}, &MappingError{DN: entry.DN, Err: ErrMissingUsername}
	}

	if u.DisplayName == "" {
		u.DisplayName = strings.TrimSpace(u.GivenName + " " + u.Surname)
	}

	switch s.Vendor {
	case schema.VendorActiveDirectory:
		u.Raw = ActiveDirectory{
			IsDeleted:          a.first("isDeleted"),
			UserAccountControl: a.first("userAccountControl"),
			AccountExpires:     a.first("accountExpires"),
			LockoutTime:        a.first("lockoutTime"),
		}
	case schema.Vendor389DS:
		u.Raw = DS389{
			NsAccountLock:          a.first("nsAccountLock"),
			PasswordExpirationTime: a.first("passwordExpirationTime"),
		}
	default:
		u.Raw = OpenLDAP{
			ShadowExpire:         a.first("shadowExpire"),
			AccountStatus:        a.first("accountStatus"),
			PwdAccountLockedTime: a.first("pwdAccountLockedTime"),
		}
	}

	return u, nil
}

// attributeIndex maps lower-cased attribute names to their values.
// Servers do not always echo the requested attribute name casing.
type attributeIndex map[string][]string

func attributes(entry *ldap.Entry) attributeIndex {
	idx := make(attributeIndex, len(entry.Attributes))

	for _, attr := range entry.Attributes {
		if attr == nil {
			continue
		}

		key := strings.ToLower(attr.Name)
		if _, ok := idx[key]; !ok {
			idx[key] = attr.Values
		}
	}

	return idx
}

func (idx attributeIndex) first(name string) string {
	values := idx[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}

	return strings.TrimSpace(values[0])
}
