package config

import (
	"time"

	"github.com/cybercore/ldap-sync/internal/logger"
)

// Config overall data structure.
type Config struct {
	// DryRun replaces the directory with the scripted fixture feed.
	DryRun    bool       `mapstructure:"dryRun"`
	Directory Directory  `mapstructure:"directory"`
	DB        DB         `mapstructure:"db"`
	Sync      Sync       `mapstructure:"sync"`
	Log       logger.Log `mapstructure:"log"`
	Metrics   Metrics    `mapstructure:"metrics"`
}

// Directory holds the LDAP connection settings.
type Directory struct {
	URI    string `mapstructure:"uri"`
	BaseDN string `mapstructure:"baseDN"`
	// BindDN in DOMAIN\user form selects NTLM authentication.
	BindDN       string `mapstructure:"bindDN"`
	BindPassword string `json:"-" mapstructure:"bindPassword"`
	// Type is a vendor tag or auto.
	Type       string `mapstructure:"type" validate:"oneof=activedirectory openldap 389ds auto"`
	StartTLS   bool   `mapstructure:"startTLS"`
	SkipVerify bool   `mapstructure:"skipVerify"` // lab use only

	DialTimeout    time.Duration `mapstructure:"dialTimeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectRetries int           `mapstructure:"connectRetries" validate:"min=0,max=20"`
}

// Sync holds the orchestrator settings.
type Sync struct {
	Interval time.Duration `mapstructure:"interval"`
	// ErrorBackoff defaults to twice the interval.
	ErrorBackoff   time.Duration `mapstructure:"errorBackoff"`
	PageSize       int           `mapstructure:"pageSize" validate:"min=1,max=100000"`
	IncludeDeletes bool          `mapstructure:"includeDeletes"`
	StateFile      string        `mapstructure:"stateFile"`
	CookieFile     string        `mapstructure:"cookieFile"`
}

// Metrics holds the prometheus endpoint settings.
type Metrics struct {
	// Listen is the address of the metrics endpoint, empty disables it.
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}
