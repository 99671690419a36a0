package status

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/db/models"
	"github.com/cybercore/ldap-sync/internal/record"
)

// userAccountControl flags.
const (
	uacAccountDisable      = 0x0002
	uacLockout             = 0x0010
	uacDontExpirePassword  = 0x10000
	uacPasswordExpired     = 0x800000
	uacBanned              = uacDontExpirePassword | uacPasswordExpired
	accountExpiresNever    = "9223372036854775807"
	accountExpiresNotSet   = "0"
	fileTimeTicksPerSecond = 10_000_000
	// fileTimeEpochOffset is the number of seconds between 1601-01-01 and 1970-01-01.
	fileTimeEpochOffset = 11644473600
)

func activeDirectory(r record.ActiveDirectory, now time.Time) models.Status {
	if strings.EqualFold(r.IsDeleted, "TRUE") {
		return models.StatusDeleted
	}

	if r.UserAccountControl != "" {
		uac, err := strconv.ParseInt(r.UserAccountControl, 10, 64)
		if err != nil {
			log.Warn().Err(err).Str("userAccountControl", r.UserAccountControl).
				Msg("ignoring malformed userAccountControl")
		} else {
			switch {
			case uac&uacAccountDisable != 0:
				return models.StatusInactive
			case uac&uacLockout != 0:
				return models.StatusSuspended
			case uac&uacBanned == uacBanned:
				return models.StatusBanned
			}
		}
	}

	if expires, ok := accountExpiry(r.AccountExpires); ok && expires.Before(now) {
		return models.StatusInactive
	}

	if r.LockoutTime != "" && r.LockoutTime != "0" {
		return models.StatusSuspended
	}

	return models.StatusActive
}

// accountExpiry converts an accountExpires value. It returns false for the
// never-expires sentinels and for malformed values.
func accountExpiry(value string) (time.Time, bool) {
	switch value {
	case "", accountExpiresNotSet, accountExpiresNever:
		return time.Time{}, false
	}

	ticks, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Warn().Err(err).Str("accountExpires", value).Msg("ignoring malformed accountExpires")

		return time.Time{}, false
	}

	return FileTime(ticks), true
}

// FileTime converts a Windows FILETIME (100ns ticks since 1601-01-01 UTC) to a time.
// Sub-second precision is dropped.
func FileTime(ticks int64) time.Time {
	return time.Unix(ticks/fileTimeTicksPerSecond-fileTimeEpochOffset, 0).UTC()
}
