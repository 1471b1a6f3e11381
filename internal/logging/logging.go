// Package logging builds the logrus logger shared by the CLI and the
// generator.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Levels and Formats list the accepted option values.
var (
	Levels  = []string{"debug", "info", "warn", "error"}
	Formats = []string{"text", "json"}
)

// New creates an isolated logger; it does not touch the logrus standard
// logger. Unknown levels fall back to info, unknown formats to text.
func New(level, format string, w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.Out = w

	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if strings.ToLower(format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return l
}
