package status

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/record"
)

const secondsPerDay = 24 * 60 * 60

func openLDAP(r record.OpenLDAP, now time.Time) models.Status {
	if r.ShadowExpire != "" && r.ShadowExpire != "0" {
		days, err := strconv.ParseInt(r.ShadowExpire, 10, 64)
		if err != nil {
			log.Warn().Err(err).Str("shadowExpire", r.ShadowExpire).Msg("ignoring malformed shadowExpire")
		} else if days > 0 && time.Unix(days*secondsPerDay, 0).Before(now) {
			return models.StatusInactive
		}
	}

	switch strings.ToLower(r.AccountStatus) {
	case "disabled", "inactive", "locked":
		return models.StatusInactive
	}

	if r.PwdAccountLockedTime != "" && r.PwdAccountLockedTime != "0" {
		return models.StatusSuspended
	}

	return models.StatusActive
}
