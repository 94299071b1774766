// Package logging builds the structured logger threaded through the batch
// driver and CLI. Nothing below C8 touches it: C1-C7 return values and
// errors, never log lines, so there is no ambient logger state to read.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus logger writing to w (os.Stdout in production, a
// buffer in tests) at the given level name ("debug", "info", "warn",
// "error"; anything else falls back to info).
func New(w io.Writer, levelName string) *logrus.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(parseLevel(levelName))
	return logger
}

func parseLevel(name string) logrus.Level {
	switch name {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
