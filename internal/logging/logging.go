// Package logging builds the structured logger used by the job runner and CLI.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config describes logger output.
type Config struct {
	// Level is one of trace, debug, info, warn, error, or none.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`

	// AddTimestamp includes a time field on every entry.
	AddTimestamp bool `yaml:"add_timestamp"`

	// StaticFields are attached to every entry.
	StaticFields map[string]string `yaml:"static_fields"`
}

// NewConfig returns the default logger configuration.
func NewConfig() Config {
	return Config{
		Level:        "info",
		Format:       "text",
		AddTimestamp: true,
	}
}

// New creates a logger writing to w.
func New(w io.Writer, cfg Config) (logrus.FieldLogger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	switch strings.ToLower(cfg.Format) {
	case "", "text", "logfmt":
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: !cfg.AddTimestamp,
			FullTimestamp:    cfg.AddTimestamp,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !cfg.AddTimestamp,
		})
	default:
		return nil, fmt.Errorf("log format %q not recognized", cfg.Format)
	}

	switch lvl := strings.ToLower(cfg.Level); lvl {
	case "none", "off":
		logger.SetOutput(io.Discard)
	case "":
		logger.SetLevel(logrus.InfoLevel)
	default:
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("log level %q not recognized", cfg.Level)
		}
		logger.SetLevel(level)
	}

	if len(cfg.StaticFields) == 0 {
		return logger, nil
	}
	fields := make(logrus.Fields, len(cfg.StaticFields))
	for k, v := range cfg.StaticFields {
		fields[k] = v
	}
	return logger.WithFields(fields), nil
}

// Noop returns a logger that discards everything.
func Noop() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
