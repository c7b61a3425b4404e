// internal/utils/logger.go
package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/config"
)

// NewLogger builds the process logger. An empty format means JSON in
// production and text elsewhere.
func NewLogger(cfg config.LogConfig, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "text"
		if environment == "production" {
			format = "json"
		}
	}

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}
