package status

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/record"
)

// GeneralizedTimeLayout is the seconds-precision generalized time used by passwordExpirationTime.
const GeneralizedTimeLayout = "20060102150405Z"

func ds389(r record.DS389, now time.Time) models.Status {
	if strings.EqualFold(r.NsAccountLock, "true") {
		return models.StatusInactive
	}

	if r.PasswordExpirationTime != "" {
		expires, err := time.Parse(GeneralizedTimeLayout, r.PasswordExpirationTime)
		if err != nil {
			log.Warn().Err(err).Str("passwordExpirationTime", r.PasswordExpirationTime).
				Msg("ignoring malformed passwordExpirationTime")
		} else if expires.Before(now) {
			return models.StatusInactive
		}
	}

	return models.StatusActive
}
