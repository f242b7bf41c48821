package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ApplyLogging sets the standard logrus logger's level and formatter.
func (c *Config) ApplyLogging() error {
	return c.ApplyLoggingTo(logrus.StandardLogger())
}

// ApplyLoggingTo configures logger from the logging section.
func (c *Config) ApplyLoggingTo(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(c.Logging.Format) {
	case LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
