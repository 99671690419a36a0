package gormlogger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	gormlog "gorm.io/gorm/logger"

	"github.com/cybercore/ldap-sync/internal/logger/adapter/gormlogger"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	previous := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.TraceLevel)
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	t.Cleanup(func() { log.Logger = previous })

	return &buf
}

func query() (string, int64) {
	return "SELECT * FROM users", 3
}

func TestTrace(t *testing.T) {
	testCases := []struct {
		name    string
		level   gormlog.LogLevel
		elapsed time.Duration
		err     error
		want    string
	}{
		{name: "silent", level: gormlog.Silent, err: errors.New("boom"), want: ""}, //nolint:goerr113
		{name: "error", level: gormlog.Error, err: errors.New("boom"), want: `"level":"error"`}, //nolint:goerr113
		{name: "not found is quiet", level: gormlog.Error, err: gormlog.ErrRecordNotFound, want: ""},
		{name: "slow query", level: gormlog.Warn, elapsed: time.Second, want: `"level":"warn"`},
		{name: "fast query at warn", level: gormlog.Warn, want: ""},
		{name: "fast query at info", level: gormlog.Info, want: `"level":"trace"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := capture(t)

			l := gormlogger.New().LogMode(tc.level)
			l.Trace(context.Background(), time.Now().Add(-tc.elapsed), query, tc.err)

			if tc.want == "" {
				assert.Empty(t, buf.String())

				return
			}

			assert.Contains(t, buf.String(), tc.want)
			assert.Contains(t, buf.String(), `"sql":"SELECT * FROM users"`)
			assert.Contains(t, buf.String(), `"rows":3`)
			assert.Contains(t, buf.String(), `"component":"gorm"`)
		})
	}
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	l := gormlogger.New()
	l.Info(context.Background(), "hidden %d", 1)
	l.Warn(context.Background(), "shown %d", 2)
	l.Error(context.Background(), "shown %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "shown 3")
}
