// Package logging builds the zerolog logger shared by the dapcheck commands.
// Logs go to stderr; conformance reports own stdout.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "DAPCHECK_LOG_LEVEL"
	EnvLogTimestamp = "DAPCHECK_LOG_TIMESTAMP"
	EnvLogNoColor   = "DAPCHECK_LOG_NOCOLOR"
)

// Options controls the console logger.
type Options struct {
	Level     string
	NoColor   bool
	Timestamp bool
}

// DefaultOptions logs warnings and above, coloured, without timestamps.
func DefaultOptions() Options {
	return Options{Level: "warn"}
}

// ApplyEnv overlays the DAPCHECK_LOG_* variables that are set and parse.
func (o *Options) ApplyEnv() {
	if _, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		o.Level = strings.TrimSpace(os.Getenv(EnvLogLevel))
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		o.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		o.NoColor = v
	}
}

// New returns a console logger writing to w. An unrecognised level falls
// back to info.
func New(w io.Writer, opts Options) zerolog.Logger {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(cw).Level(level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// Init builds the logger on w and installs it as the zerolog global.
func Init(w io.Writer, opts Options) zerolog.Logger {
	logger := New(w, opts)
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level. The boolean is false for
// empty or unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
