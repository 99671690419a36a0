package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrConnectionClosed is returned when a search is issued on a dead connection.
	ErrConnectionClosed = errors.New("directory connection is closed")

	// ErrNoRootDSE is returned when the root DSE search yields no entry.
	ErrNoRootDSE = errors.New("directory returned no root DSE")

	// ErrInvalidURI is returned for URIs that can not be parsed.
	ErrInvalidURI = errors.New("invalid directory uri")
)

// ConnectionError describes a failure to dial or bind after all retries.
type ConnectionError struct {
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SearchError describes a failed directory search.
type SearchError struct {
	Op     string
	BaseDN string
	Filter string
	Err    error
}

func (e *SearchError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("LDAP %s search failed", e.Op))

	if e.Filter != "" {
		parts = append(parts, "filter: "+e.Filter)
	}

	if e.BaseDN != "" {
		parts = append(parts, "base: "+e.BaseDN)
	}

	parts = append(parts, e.Err.Error())

	return strings.Join(parts, " - ")
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is expected to clear on a later attempt.
// Invalid credentials, canceled contexts and malformed requests are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if isInvalidCredentials(err) {
		return false
	}

	if isNetworkError(err) {
		return true
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return isLDAPCodeRetryable(ldapErr.ResultCode)
	}

	var connErr *ConnectionError

	return errors.As(err, &connErr)
}

// hasCode reports whether an *ldap.Error anywhere in err's chain carries one of codes.
func hasCode(err error, codes ...uint16) bool {
	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) {
		return false
	}

	for _, code := range codes {
		if ldapErr.ResultCode == code {
			return true
		}
	}

	return false
}

func isInvalidCredentials(err error) bool {
	return hasCode(err, ldap.LDAPResultInvalidCredentials, ldap.LDAPResultInappropriateAuthentication)
}

// isNetworkError reports transport failures that leave the connection unusable.
func isNetworkError(err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}

	if hasCode(err, ldap.ErrorNetwork, ldap.LDAPResultServerDown, ldap.LDAPResultConnectError) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}

// isLDAPCodeRetryable determines if an LDAP result code indicates a transient condition.
func isLDAPCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError,
		ldap.ErrorNetwork:
		return true
	default:
		return false
	}
}
