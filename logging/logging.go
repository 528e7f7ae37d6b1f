package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log is the base log entry for the service. Packages derive their own entries from it.
var Log = logrus.WithFields(logrus.Fields{
	"service": "notification-sync",
	"art-id":  "notification-sync",
	"group":   "org.freshbasket",
})

// SetupLogging configures the log level and formatter used by the service.
func SetupLogging(configLevel string) error {
	if configLevel == "" {
		configLevel = "info"
	}

	level, err := logrus.ParseLevel(configLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level `%s`", configLevel)
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
