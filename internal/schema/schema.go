// Package schema holds the per-vendor directory schemas used by the sync engine
// and the root DSE based vendor detection.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Vendor identifies a directory server implementation.
type Vendor string

const (
	// VendorActiveDirectory is Microsoft Active Directory.
	VendorActiveDirectory Vendor = "activedirectory"
	// VendorOpenLDAP is OpenLDAP slapd.
	VendorOpenLDAP Vendor = "openldap"
	// Vendor389DS is 389 Directory Server (Red Hat Directory Server).
	Vendor389DS Vendor = "389ds"
	// VendorAuto selects the vendor from the server's root DSE.
	VendorAuto Vendor = "auto"
)

// AuthMethod selects how the directory client binds.
type AuthMethod string

const (
	// AuthAuto uses NTLM for DOMAIN\user bind identities and simple bind otherwise.
	AuthAuto AuthMethod = "auto"
	// AuthSimple always uses a simple bind.
	AuthSimple AuthMethod = "simple"
)

var (
	// ErrUnknownVendor is returned for a vendor tag without a registered schema.
	ErrUnknownVendor = errors.New("unknown directory vendor")
)

// Schema describes how to find and read user entries on one directory vendor.
type Schema struct {
	Vendor            Vendor
	UsernameAttribute string
	Attributes        []string
	UserFilter        string
	// TombstoneFilter matches live users and tombstones; used with the show deleted control.
	TombstoneFilter    string
	SupportsPushCursor bool
	SupportsTombstones bool
	AuthMethod         AuthMethod
}

// HasAttribute reports whether name is part of the requested attribute list.
func (s Schema) HasAttribute(name string) bool {
	return slices.ContainsFunc(s.Attributes, func(a string) bool {
		return strings.EqualFold(a, name)
	})
}

var registry = map[Vendor]Schema{ //nolint:gochecknoglobals
	VendorActiveDirectory: {
		Vendor:            VendorActiveDirectory,
		UsernameAttribute: "sAMAccountName",
		Attributes: []string{
			"sAMAccountName", "mail", "givenName", "sn", "cn", "isDeleted",
			"userAccountControl", "accountExpires", "lockoutTime", "modifyTimestamp",
		},
		UserFilter:         "(objectClass=user)",
		TombstoneFilter:    "(|(objectClass=user)(isDeleted=TRUE))",
		SupportsPushCursor: true,
		SupportsTombstones: true,
		AuthMethod:         AuthAuto,
	},
	VendorOpenLDAP: {
		Vendor:            VendorOpenLDAP,
		UsernameAttribute: "uid",
		Attributes: []string{
			"uid", "mail", "givenName", "sn", "cn", "modifyTimestamp",
			"shadowExpire", "accountStatus", "pwdAccountLockedTime",
		},
		UserFilter:      "(objectClass=inetOrgPerson)",
		TombstoneFilter: "(objectClass=inetOrgPerson)",
		AuthMethod:      AuthSimple,
	},
	Vendor389DS: {
		Vendor:            Vendor389DS,
		UsernameAttribute: "uid",
		Attributes: []string{
			"uid", "mail", "givenName", "sn", "cn", "modifyTimestamp",
			"nsAccountLock", "passwordExpirationTime",
		},
		UserFilter:      "(objectClass=person)",
		TombstoneFilter: "(objectClass=person)",
		AuthMethod:      AuthSimple,
	},
}

// Lookup returns the schema registered for vendor.
// The returned value owns its attribute slice, so callers can not mutate the registry.
func Lookup(vendor Vendor) (Schema, error) {
	s, ok := registry[vendor]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}

	s.Attributes = slices.Clone(s.Attributes)

	return s, nil
}

// MustLookup is Lookup for vendors known at compile time.
func MustLookup(vendor Vendor) Schema {
	s, err := Lookup(vendor)
	if err != nil {
		panic(err)
	}

	return s
}

// ParseVendor parses a vendor tag case-insensitively. "auto" is accepted.
func ParseVendor(tag string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(tag)))
	if v == VendorAuto {
		return v, nil
	}

	if _, ok := registry[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVendor, tag)
	}

	return v, nil
}
