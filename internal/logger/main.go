// Package logger configures the global zerolog logger for the sync daemon.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelWriter splits log output by level. See WriteLevel for the routing.
type LevelWriter struct {
	io.Writer
	ErrorWriter io.Writer
	InfoWriter  io.Writer
	TraceWriter io.Writer
	WarnWriter  io.Writer
}

// WriteLevel routes p to the writer configured for level l.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	var w io.Writer

	if l == zerolog.Disabled {
		return 0, nil
	}

	switch {
	case l == zerolog.TraceLevel:
		w = lw.TraceWriter
	case l == zerolog.WarnLevel:
		w = lw.WarnWriter
	case l > zerolog.WarnLevel: // error, fatal and panic
		w = lw.ErrorWriter
	default:
		w = lw.InfoWriter // debug and info
	}

	return w.Write(p) //nolint:wrapcheck
}

// Init the zerolog logger.
// Depending on the config it enables console output, rolling files, both or
// nothing at all. Be sure to enable at least one output.
func Init(cfg Log) error {
	var (
		logLevel, err = zerolog.ParseLevel(cfg.LogLevel)
		writers       []io.Writer
		stack         bool
	)

	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("loglevel %s is not supported", cfg.LogLevel))
	}

	if cfg.ServiceName == "" {
		return ErrServiceNameIsEmpty
	}

	if cfg.AppName == "" {
		return ErrAppNameIsEmpty
	}

	if logLevel == zerolog.TraceLevel {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign
		stack = true
	}

	zerolog.SetGlobalLevel(logLevel)
	zerolog.ErrorHandler = ErrorHandler //nolint:reassign

	ph := NewPrometheusHook(cfg.ServiceName)

	if cfg.Console.Enabled {
		writers = append(writers, NewConsoleWriter(cfg))
	}

	if cfg.File.Enabled {
		fw, errFile := newRollingFile(cfg.File)
		if errFile != nil {
			return errFile
		}

		writers = append(writers, fw)
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Hook(ph).With().
		Timestamp().
		Str("app", cfg.AppName).
		Str("service", cfg.ServiceName)

	if cfg.ReportCaller {
		ctx = ctx.Caller()
	}

	if cfg.ReportCaller && stack {
		ctx = ctx.Stack()
	}

	log.Logger = ctx.Logger()

	return nil
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// newRollingFile uses LevelWriter and lumberjack to write one rolling file per level group.
func newRollingFile(cfg LogFile) (io.Writer, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil { //nolint: mnd
		return nil, errors.Wrapf(err, "can't create log directory %s", cfg.Path)
	}

	return &LevelWriter{
		ErrorWriter: rolling(cfg.Path, cfg.ErrorLog, cfg.ErrorMaxSize, cfg.ErrorMaxAge, cfg.ErrorMaxBackups),
		InfoWriter:  rolling(cfg.Path, cfg.InfoLog, cfg.InfoMaxSize, cfg.InfoMaxAge, cfg.InfoMaxBackups),
		TraceWriter: rolling(cfg.Path, cfg.TraceLog, cfg.TraceMaxSize, cfg.TraceMaxAge, cfg.TraceMaxBackups),
		WarnWriter:  rolling(cfg.Path, cfg.WarnLog, cfg.WarnMaxSize, cfg.WarnMaxAge, cfg.WarnMaxBackups),
	}, nil
}

func rolling(dir, name string, maxSize, maxAge, maxBackups int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path.Join(dir, name),
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
	}
}

// NewConsoleWriter creates the console writer. Info and debug go to stdout,
// everything else to stderr.
func NewConsoleWriter(cfg Log) io.Writer {
	lw := LevelWriter{
		ErrorWriter: os.Stderr,
		InfoWriter:  os.Stdout,
		TraceWriter: os.Stderr,
		WarnWriter:  os.Stderr,
	}

	if cfg.Console.UseConsoleWriter {
		lw.ErrorWriter = pretty(os.Stderr)
		lw.InfoWriter = pretty(os.Stdout)
		lw.TraceWriter = pretty(os.Stderr)
		lw.WarnWriter = pretty(os.Stderr)
	}

	return &lw
}

func pretty(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: zerolog.TimeFieldFormat,
	}
}
