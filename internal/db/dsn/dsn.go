// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cybercore/ldap-sync/internal/config"
)

// ErrUnsupportedEngine is returned for gorm engines without a driver.
var ErrUnsupportedEngine = errors.New("unsupported gorm engine")

// Create builds the Data Source Name for the configured engine.
func Create(cfg *config.DB) (string, error) {
	switch cfg.GormEngine {
	case "mysql":
		out := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Name,
		)

		if cfg.Extras != "" {
			out += "&" + strings.TrimPrefix(cfg.Extras, "&")
		}

		return out, nil
	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:   "/" + cfg.Name,
		}

		if cfg.Extras != "" {
			u.RawQuery = strings.TrimPrefix(cfg.Extras, "?")
		}

		return u.String(), nil
	case "sqlite":
		if cfg.Extras != "" {
			return cfg.Name + "?" + strings.TrimPrefix(cfg.Extras, "?"), nil
		}

		return cfg.Name, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, cfg.GormEngine)
	}
}

// Dialector returns the gorm dialector for the configured engine.
func Dialector(cfg *config.DB) (gorm.Dialector, error) {
	out, err := Create(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.GormEngine {
	case "mysql":
		return mysql.Open(out), nil
	case "postgres":
		return postgres.Open(out), nil
	default:
		return sqlite.Open(out), nil
	}
}
