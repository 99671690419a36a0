// Package gormlogger routes gorm log output through zerolog.
package gormlogger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowThreshold is the duration above which a query is logged as slow.
const DefaultSlowThreshold = 200 * time.Millisecond

// Logger implements gorm's logger.Interface on top of the global zerolog logger.
type Logger struct {
	level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LogRecordNotFound logs gorm.ErrRecordNotFound as an error when true.
	LogRecordNotFound bool
}

// New returns a Logger at warn level.
func New() *Logger {
	return &Logger{
		level:         gormlogger.Warn,
		SlowThreshold: DefaultSlowThreshold,
	}
}

// LogMode implements logger.Interface.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level

	return &c
}

// Info implements logger.Interface.
func (l *Logger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger().Info().Msg(fmt.Sprintf(msg, args...))
	}
}

// Warn implements logger.Interface.
func (l *Logger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger().Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

// Error implements logger.Interface.
func (l *Logger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger().Error().Msg(fmt.Sprintf(msg, args...))
	}
}

// Trace implements logger.Interface. Failed statements are logged at error,
// slow ones at warn and everything else at trace.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	var event *zerolog.Event

	lg := l.logger()

	switch {
	case err != nil && l.level >= gormlogger.Error &&
		(l.LogRecordNotFound || !errors.Is(err, gormlogger.ErrRecordNotFound)):
		event = lg.Error().Err(err)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.level >= gormlogger.Warn:
		event = lg.Warn().Dur("threshold", l.SlowThreshold)
	case l.level >= gormlogger.Info:
		event = lg.Trace()
	default:
		return
	}

	sql, rows := fc()

	event.Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query")
}

func (l *Logger) logger() *zerolog.Logger {
	lg := log.With().Str("component", "gorm").Logger()

	return &lg
}
