package schema

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	testCases := []struct {
		name          string
		vendor        Vendor
		expectedError error
		usernameAttr  string
		push          bool
		tombstones    bool
	}{
		{name: "active directory", vendor: VendorActiveDirectory, usernameAttr: "sAMAccountName", push: true, tombstones: true},
		{name: "openldap", vendor: VendorOpenLDAP, usernameAttr: "uid"},
		{name: "389ds", vendor: Vendor389DS, usernameAttr: "uid"},
		{name: "auto has no schema", vendor: VendorAuto, expectedError: ErrUnknownVendor},
		{name: "unknown vendor", vendor: "novell", expectedError: ErrUnknownVendor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Lookup(tc.vendor)

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.vendor, s.Vendor)
			assert.Equal(t, tc.usernameAttr, s.UsernameAttribute)
			assert.Equal(t, tc.push, s.SupportsPushCursor)
			assert.Equal(t, tc.tombstones, s.SupportsTombstones)
			assert.True(t, s.HasAttribute(tc.usernameAttr))
			assert.True(t, s.HasAttribute("modifytimestamp"))
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s := MustLookup(VendorActiveDirectory)
	s.Attributes[0] = "tampered"

	again := MustLookup(VendorActiveDirectory)
	assert.Equal(t, "sAMAccountName", again.Attributes[0])
}

func TestParseVendor(t *testing.T) {
	testCases := []struct {
		in      string
		want    Vendor
		wantErr bool
	}{
		{in: "activedirectory", want: VendorActiveDirectory},
		{in: "  OpenLDAP ", want: VendorOpenLDAP},
		{in: "389DS", want: Vendor389DS},
		{in: "AUTO", want: VendorAuto},
		{in: "", wantErr: true},
		{in: "edirectory", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseVendor(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnknownVendor)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetect(t *testing.T) {
	testCases := []struct {
		name  string
		entry *ldap.Entry
		want  Vendor
	}{
		{
			name: "active directory naming context",
			entry: ldap.NewEntry("", map[string][]string{
				"defaultNamingContext": {"DC=example,DC=org"},
				"vendorName":           {"Microsoft"},
			}),
			want: VendorActiveDirectory,
		},
		{
			name: "389 directory server vendor name",
			entry: ldap.NewEntry("", map[string][]string{
				"vendorName":    {"389 Project"},
				"vendorVersion": {"389-Directory/2.4.5 B2024.001.0000"},
			}),
			want: Vendor389DS,
		},
		{
			name: "openldap config context",
			entry: ldap.NewEntry("", map[string][]string{
				"configContext": {"cn=config"},
			}),
			want: VendorOpenLDAP,
		},
		{
			name: "unknown server falls back to openldap",
			entry: ldap.NewEntry("", map[string][]string{
				"objectClass": {"top"},
			}),
			want: VendorOpenLDAP,
		},
		{
			name:  "nil entry falls back to openldap",
			entry: nil,
			want:  VendorOpenLDAP,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.entry))
		})
	}
}
