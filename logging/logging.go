// Package logging builds the process logger.
//
// Verbosity follows the launcher's numeric scale:
//   0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace
//
// When a Sentry DSN is configured, error, fatal and panic entries are also
// reported to Sentry.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config describes the logger.
type Config struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

// LevelFor maps a verbosity to a logrus level, clamping out-of-range values.
func LevelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.FatalLevel
	case verbosity >= 5:
		return logrus.TraceLevel
	default:
		return logrus.Level(verbosity + 1)
	}
}

// New creates a logger writing to stderr.
func New(cfg Config) (*logrus.Logger, error) {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput creates a logger writing to out.
func NewWithOutput(cfg Config, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(LevelFor(cfg.Verbosity))

	switch cfg.Format {
	case "", FormatText:
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:     cfg.Color,
			DisableColors:   !cfg.Color,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("create sentry hook: %w", err)
		}
		hook.Timeout = 5 * time.Second
		hook.StacktraceConfiguration.Enable = true
		log.AddHook(hook)
	}
	return log, nil
}
