// Package logging sets up the agent's process-wide logrus configuration.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger: text with full timestamps
// when debug is requested (readable during interactive development,
// mirrors the teacher's debug branch), JSON otherwise (for log shipping
// from a production host agent).
func Init(debug bool) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "01-02 15:04:05",
		})
		return
	}

	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stderr)
}

// For creates a component-scoped sub-logger, e.g. logging.For("ovsplugin").
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
