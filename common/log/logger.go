// Package log configures the process-wide logrus logger from config.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/log/hooks"
)

type Config struct {
	Level string `json:"Level,omitempty"`
	// text or json
	Format string `json:"Format,omitempty"`
	// Tag entries with the calling file:line.
	Caller bool `json:"Caller,omitempty"`
}

// Configure applies c to the standard logrus logger.
func Configure(c Config) error {
	return ConfigureLogger(log.StandardLogger(), os.Stderr, c)
}

func ConfigureLogger(l *log.Logger, out io.Writer, c Config) error {
	level := log.InfoLevel
	if strings.TrimSpace(c.Level) != "" {
		var err error
		if level, err = log.ParseLevel(c.Level); err != nil {
			return errors.Wrapf(err, "bad log level %q", c.Level)
		}
	}

	switch strings.ToLower(c.Format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", c.Format)
	}

	l.SetOutput(out)
	l.SetLevel(level)
	if c.Caller {
		l.AddHook(hooks.NewContextHook())
	}
	return nil
}

// SetLevel changes the level at runtime, ex: after a config reload.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "bad log level %q", level)
	}
	log.SetLevel(lvl)
	return nil
}
