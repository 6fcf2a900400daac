// Package logger holds the process-wide structured logger.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. It is usable before Init with JSON output at info level.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(jsonFormatter())
	l.SetLevel(logrus.InfoLevel)
	return l
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// Init applies level and format from configuration. Unknown levels fall back to info.
func Init(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
	if format == "text" {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(jsonFormatter())
	}
}

// WithComponent tags entries with the emitting subsystem.
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// WithUser tags entries with the acting user.
func WithUser(userID string) *logrus.Entry {
	return Log.WithField("user_id", userID)
}
