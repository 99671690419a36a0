package schema

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// RootDSEAttributes are the root DSE attributes inspected by Detect.
var RootDSEAttributes = []string{ //nolint:gochecknoglobals
	"defaultNamingContext", "vendorName", "vendorVersion", "configContext", "objectClass",
}

// Detect classifies a directory server from its root DSE entry.
// Unknown servers and a nil entry fall back to OpenLDAP.
func Detect(rootDSE *ldap.Entry) Vendor {
	if rootDSE == nil {
		log.Warn().Msg("empty root DSE, defaulting to openldap schema")

		return VendorOpenLDAP
	}

	if hasAttribute(rootDSE, "defaultNamingContext") {
		return VendorActiveDirectory
	}

	vendorNames := valuesFold(rootDSE, "vendorName")

	if containsFold(vendorNames, "389") {
		return Vendor389DS
	}

	if hasAttribute(rootDSE, "configContext") || containsFold(vendorNames, "openldap") {
		return VendorOpenLDAP
	}

	log.Warn().Strs("vendorName", vendorNames).Msg("unknown directory server type, defaulting to openldap schema")

	return VendorOpenLDAP
}

func hasAttribute(e *ldap.Entry, name string) bool {
	return len(valuesFold(e, name)) > 0
}

func valuesFold(e *ldap.Entry, name string) []string {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Values
		}
	}

	return nil
}

func containsFold(values []string, needle string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}

	return false
}
