package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/crycare/cry-pipeline/config"
)

// New builds a logger writing to out with the given level and format
// ("text" or "json").
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "console":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
	return l, nil
}

// NewFromConfig creates the process logger from pipeline settings.
func NewFromConfig(cfg *config.Root) (*logrus.Logger, error) {
	if cfg == nil {
		return New(os.Stderr, "info", "text")
	}
	return New(os.Stderr, cfg.Pipeline.LogLvl, cfg.Pipeline.LogFormat)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parseLevel(level string) (logrus.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(trimmed)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}
