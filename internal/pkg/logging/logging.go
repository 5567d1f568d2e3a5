// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// DebugEnv enables debug logging when set to "1".
const DebugEnv = "NB_DEBUG"

// Setup initializes the global logger with the given level and writes to stderr.
func Setup(level log.Level) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
}

// SetupFromEnv initializes the logger based on environment variables.
func SetupFromEnv() {
	level := log.InfoLevel
	if os.Getenv(DebugEnv) == "1" {
		level = log.DebugLevel
	}
	Setup(level)
}
