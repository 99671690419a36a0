// Package config loads the sync daemon settings from an optional config file,
// a .env file and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// JSONConfigEnv holds a JSON document merged over every other source.
const JSONConfigEnv = "LDAP_SYNC_CONFIG_JSON"

// envBindings maps config keys to the environment variables of the deployment.
var envBindings = map[string]string{ //nolint:gochecknoglobals
	"dryRun":                   "DRY_RUN",
	"directory.uri":            "LDAP_URI",
	"directory.baseDN":         "LDAP_BASE_DN",
	"directory.bindDN":         "LDAP_BIND_DN",
	"directory.bindPassword":   "LDAP_BIND_PW",
	"directory.type":           "LDAP_TYPE",
	"directory.startTLS":       "LDAP_START_TLS",
	"directory.skipVerify":     "LDAP_SKIP_VERIFY",
	"directory.dialTimeout":    "LDAP_DIAL_TIMEOUT",
	"directory.timeout":        "LDAP_TIMEOUT",
	"directory.connectRetries": "LDAP_CONNECT_RETRIES",
	"db.host":                  "DB_HOST",
	"db.port":                  "DB_PORT",
	"db.name":                  "DB_NAME",
	"db.user":                  "DB_USER",
	"db.password":              "DB_PASS",
	"db.engine":                "DB_ENGINE",
	"db.extras":                "DB_EXTRAS",
	"db.autoMigrate":           "DB_AUTO_MIGRATE",
	"db.logLevel":              "DB_LOG_LEVEL",
	"sync.interval":            "INTERVAL",
	"sync.errorBackoff":        "ERROR_BACKOFF",
	"sync.pageSize":            "SYNC_PAGE_SIZE",
	"sync.includeDeletes":      "INCLUDE_DELETES",
	"sync.stateFile":           "SYNC_STATE_FILE",
	"sync.cookieFile":          "DIRSYNC_COOKIE_FILE",
	"log.level":                "LOG_LEVEL",
	"metrics.listen":           "METRICS_LISTEN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dryRun", false)
	v.SetDefault("directory.type", "activedirectory")
	v.SetDefault("directory.dialTimeout", 10*time.Second)
	v.SetDefault("directory.timeout", 30*time.Second)
	v.SetDefault("directory.connectRetries", 3)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.engine", "postgres")
	v.SetDefault("db.autoMigrate", true)
	v.SetDefault("db.logLevel", "warn")
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.pageSize", 2000)
	v.SetDefault("sync.includeDeletes", false)
	v.SetDefault("sync.stateFile", "/app/sync_state/.sync_state")
	v.SetDefault("sync.cookieFile", "/app/sync_state/.dirsync_cookie")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.appName", "ldap-sync")
	v.SetDefault("log.serviceName", "ldap-sync")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Override sets a config key above the file and the environment.
// Command line flags are passed this way.
type Override struct {
	Key   string
	Value any
}

// ReadConfig loads the configuration. path is an optional config file whose
// format follows its extension. A .env file in the working directory is
// loaded first and never overrides variables already set.
func ReadConfig(path string, overrides ...Override) (Config, error) {
	var (
		c   Config
		err error
	)

	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return Config{}, errors.Wrapf(err, "failed to bind %s", env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	for _, o := range overrides {
		v.Set(o.Key, o.Value)
	}

	if err = v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	// override it from env
	if configAsJSON := os.Getenv(JSONConfigEnv); configAsJSON != "" {
		c, err = decodeAndMergeConfig(c, configAsJSON)
		if err != nil {
			return c, err
		}
	}

	if c.Sync.ErrorBackoff == 0 {
		c.Sync.ErrorBackoff = 2 * c.Sync.Interval
	}

	return c, validate(c)
}

// secondsHookFunc accepts bare integers for durations, matching the
// INTERVAL=30 style of the deployment environment.
func secondsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(time.Duration(0)) || f.Kind() != reflect.String {
			return data, nil
		}

		s := strings.TrimSpace(data.(string)) //nolint:forcetypeassert

		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}

		return s, nil
	}
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read "+JSONConfigEnv)
	}

	return c, nil
}

// DumpConfigJSON config as JSON String. Secrets are tagged json:"-" and never printed.
func DumpConfigJSON(c Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate checks ranges with struct tags and the cross field rules by hand.
func validate(c Config) error {
	invalidErrMessage := "invalid config"

	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	if !c.DryRun {
		if err := validateDirectory(c.Directory); err != nil {
			return errors.Wrap(err, invalidErrMessage)
		}
	}

	if c.DB.Name == "" {
		return errors.Wrap(ErrMissingDBName, invalidErrMessage)
	}

	if c.DB.GormEngine != "sqlite" {
		if c.DB.Host == "" {
			return errors.Wrap(ErrMissingDBHost, invalidErrMessage)
		}

		if c.DB.User == "" || c.DB.Password == "" {
			return errors.Wrap(ErrMissingDBCredentials, invalidErrMessage)
		}
	}

	if c.Sync.Interval <= 0 {
		return errors.Wrap(ErrIntervalCanNotBeZero, invalidErrMessage)
	}

	if c.Sync.ErrorBackoff <= c.Sync.Interval {
		return errors.Wrap(ErrBackoffTooShort, invalidErrMessage)
	}

	if c.Sync.StateFile == "" || c.Sync.CookieFile == "" {
		return errors.Wrap(ErrMissingCursorPath, invalidErrMessage)
	}

	return nil
}

func validateDirectory(d Directory) error {
	switch {
	case d.URI == "":
		return ErrMissingDirectoryURI
	case d.BaseDN == "":
		return ErrMissingBaseDN
	case d.BindDN == "":
		return ErrMissingBindDN
	case d.BindPassword == "":
		return ErrMissingBindPassword
	}

	u, err := url.Parse(d.URI)
	if err != nil {
		return errors.Wrap(err, "failed to parse directory.uri")
	}

	if u.Scheme != "ldap" && u.Scheme != "ldaps" {
		return ErrInvalidScheme
	}

	return nil
}
