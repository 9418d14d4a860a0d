// Package logging provides the default application.Logger implementation.
package logging

import (
	"log"

	"anemochory/application"
)

// LogLogger wraps the standard library's log package.
type LogLogger struct{}

// NewLogLogger returns a Logger that writes through the standard logger.
func NewLogLogger() application.Logger {
	return LogLogger{}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}
