// Package common holds the bits shared by drivemount's CLI entry point:
// version info and log-level parsing, following the teacher's
// cmd/common/common.go.
package common

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Version returns the current version string, printed by --version.
func Version() string {
	return fmt.Sprintf("v%s", version)
}

// StringToLevel converts a string to a zerolog.Level, defaulting to Info on
// a parse failure rather than refusing to start.
func StringToLevel(input string) zerolog.Level {
	level, err := zerolog.ParseLevel(input)
	if err != nil {
		log.Error().Err(err).Str("level", input).Msg("Could not parse log level, defaulting to \"info\".")
		return zerolog.InfoLevel
	}
	return level
}

// LogLevels returns the available logging levels, for --help text.
func LogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "fatal"}
}
