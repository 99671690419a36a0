package config

import (
	"errors"
)

var (
	// ErrMissingDirectoryURI is returned when no LDAP URI is configured outside dry-run.
	ErrMissingDirectoryURI = errors.New("config directory.uri (LDAP_URI) can not be empty")

	// ErrMissingBaseDN is returned when no base DN is configured outside dry-run.
	ErrMissingBaseDN = errors.New("config directory.baseDN (LDAP_BASE_DN) can not be empty")

	// ErrMissingBindDN is returned when no bind DN is configured outside dry-run.
	ErrMissingBindDN = errors.New("config directory.bindDN (LDAP_BIND_DN) can not be empty")

	// ErrMissingBindPassword is returned when no bind password is configured outside dry-run.
	ErrMissingBindPassword = errors.New("config directory.bindPassword (LDAP_BIND_PW) can not be empty")

	// ErrMissingDBName is returned when no database name is configured.
	ErrMissingDBName = errors.New("config db.name (DB_NAME) can not be empty")

	// ErrMissingDBHost is returned when a network database has no host.
	ErrMissingDBHost = errors.New("config db.host (DB_HOST) can not be empty")

	// ErrIntervalCanNotBeZero is returned for a non positive sync interval.
	ErrIntervalCanNotBeZero = errors.New("config sync.interval (INTERVAL) must be positive")

	// ErrBackoffTooShort is returned when the error backoff is not longer than the interval.
	ErrBackoffTooShort = errors.New("config sync.errorBackoff must be longer than sync.interval")

	// ErrMissingCursorPath is returned when a cursor file path is empty.
	ErrMissingCursorPath = errors.New("config sync.stateFile and sync.cookieFile can not be empty")

	// ErrInvalidScheme is returned for LDAP URIs other than ldap:// and ldaps://.
	ErrInvalidScheme = errors.New("config directory.uri must use the ldap or ldaps scheme")
)

// ErrMissingDBCredentials is returned when a network database has no user or password.
var ErrMissingDBCredentials = errors.New("config db.user (DB_USER) and db.password (DB_PASS) can not be empty")
