// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stderr at the given level. format is
// "text" or "json".
func New(level, format string) (*log.Logger, error) {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(out io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}
