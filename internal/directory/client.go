// Package directory connects to LDAP directory servers and issues the
// incremental searches of a sync iteration.
package directory

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/cybercore/ldap-sync/internal/config"
	"github.com/cybercore/ldap-sync/internal/metrics"
	"github.com/cybercore/ldap-sync/internal/schema"
)

// Dialer opens a transport connection to uri. tlsConfig is nil for plain ldap://.
type Dialer func(ctx context.Context, uri string, tlsConfig *tls.Config, timeout time.Duration) (Conn, error)

// Client establishes authenticated sessions with retries.
type Client struct {
	cfg        config.Directory
	auth       schema.AuthMethod
	dial       Dialer
	newBackOff func() backoff.BackOff
	now        func() time.Time
	failures   atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithBackOff replaces the retry policy between connection attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// WithAuthMethod pins the bind method of the vendor schema.
// AuthSimple never attempts NTLM, AuthAuto picks NTLM for DOMAIN\user bind DNs.
func WithAuthMethod(m schema.AuthMethod) Option {
	return func(c *Client) {
		c.auth = m
	}
}

// WithClock replaces the clock used for pull cursors.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a Client for cfg.
func NewClient(cfg config.Directory, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		auth: schema.AuthAuto,
		dial: dialURL,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second

			return b
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ConsecutiveFailures returns the number of failed Connect calls since the last success.
func (c *Client) ConsecutiveFailures() int {
	return int(c.failures.Load())
}

// Connect dials and binds, retrying transient failures with exponential backoff.
// Invalid credentials fail immediately. The returned error is a *ConnectionError.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	attempt := 0

	operation := func() (*Connection, error) {
		attempt++

		conn, err := c.open(ctx)
		if err != nil {
			if !IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		return conn, nil
	}

	conn, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.ConnectRetries)+1), //nolint:gosec // validated range
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retryIn", next).
				Str("uri", c.cfg.URI).Msg("directory connection failed, retrying")
		}),
	)
	if err != nil {
		failures := c.failures.Add(1)
		metrics.ConnectFailures.Set(float64(failures))

		log.Error().Err(err).Int64("consecutiveFailures", failures).Int("attempts", attempt).
			Str("uri", c.cfg.URI).Msg("directory connection failed")

		return nil, &ConnectionError{URI: c.cfg.URI, Err: err}
	}

	c.failures.Store(0)
	metrics.ConnectFailures.Set(0)

	return conn, nil
}

// open performs one dial, optional StartTLS and bind.
func (c *Client) open(ctx context.Context) (*Connection, error) {
	u, err := url.Parse(c.cfg.URI)
	if err != nil || u.Host == "" {
		return nil, backoff.Permanent(ErrInvalidURI)
	}

	secure := strings.EqualFold(u.Scheme, "ldaps")

	var tlsConfig *tls.Config
	if secure || c.cfg.StartTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: c.cfg.SkipVerify, //nolint:gosec // skipping verifying tls is ok for lab directories
			ServerName:         u.Hostname(),
			MinVersion:         tls.VersionTLS12,
		}
	}

	conn, err := c.dial(ctx, c.cfg.URI, tlsConfig, c.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	if !secure && c.cfg.StartTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			closeQuietly(conn)

			return nil, errStartTLS
		}
	}

	if c.cfg.Timeout > 0 {
		conn.SetTimeout(c.cfg.Timeout)
	}

	if errBind := c.bind(conn); errBind != nil {
		closeQuietly(conn)

		return nil, errBind
	}

	log.Info().Str("uri", c.cfg.URI).Bool("tls", tlsConfig != nil).Msg("directory connection established")

	return &Connection{
		conn:   conn,
		baseDN: c.cfg.BaseDN,
		alive:  true,
		now:    c.now,
	}, nil
}

func (c *Client) bind(conn Conn) error {
	if c.auth != schema.AuthSimple {
		if domain, user, ok := SplitDomainUser(c.cfg.BindDN); ok {
			return conn.NTLMBind(domain, user, c.cfg.BindPassword) //nolint:wrapcheck
		}
	}

	return conn.Bind(c.cfg.BindDN, c.cfg.BindPassword) //nolint:wrapcheck
}

// SplitDomainUser splits a DOMAIN\user bind identity.
func SplitDomainUser(bindDN string) (domain, user string, ok bool) {
	domain, user, ok = strings.Cut(bindDN, `\`)
	if !ok || domain == "" || user == "" {
		return "", "", false
	}

	return domain, user, true
}

func closeQuietly(conn Conn) {
	if errClose := conn.Close(); errClose != nil {
		log.Warn().Err(errClose).Msg("failed to close LDAP connection")
	}
}

func dialURL(_ context.Context, uri string, tlsConfig *tls.Config, timeout time.Duration) (Conn, error) {
	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if tlsConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(uri, opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return conn, nil
}
