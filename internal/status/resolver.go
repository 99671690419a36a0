// Package status computes the canonical account-lifecycle status from vendor raw fields.
package status

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/record"
)

// Resolve maps vendor raw fields to a canonical status as of now.
// It has no side effects other than warning logs for malformed values,
// which skip the affected rule.
func Resolve(raw record.Raw, now time.Time) models.Status {
	switch r := raw.(type) {
	case record.ActiveDirectory:
		return activeDirectory(r, now)
	case *record.ActiveDirectory:
		return activeDirectory(*r, now)
	case record.OpenLDAP:
		return openLDAP(r, now)
	case *record.OpenLDAP:
		return openLDAP(*r, now)
	case record.DS389:
		return ds389(r, now)
	case *record.DS389:
		return ds389(*r, now)
	case nil:
		return models.StatusActive
	default:
		log.Warn().Str("vendor", string(raw.Vendor())).Msg("no status rules for vendor, assuming active")

		return models.StatusActive
	}
}

// Apply resolves and stores the status on u.
func Apply(u *record.User, now time.Time) {
	u.Status = Resolve(u.Raw, now)
}
