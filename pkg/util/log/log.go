package log

import (
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Logger is the process logger used by commands. Packages take a logger in their constructors instead.
var Logger = kitlog.NewNopLogger()

// InitLogger initialises the process logger writing to stderr and returns it.
func InitLogger(logFormat string, logLevel dslog.Level) kitlog.Logger {
	return InitLoggerWithWriter(os.Stderr, logFormat, logLevel)
}

// InitLoggerWithWriter is InitLogger with an explicit destination.
func InitLoggerWithWriter(w io.Writer, logFormat string, logLevel dslog.Level) kitlog.Logger {
	writer := kitlog.NewSyncWriter(w)
	logger := dslog.NewGoKitWithWriter(logFormat, writer)

	// use UTC timestamps and skip 5 stack frames.
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.Caller(5))

	// Must put the level filter last for efficiency.
	logger = level.NewFilter(logger, logLevel.Option)

	Logger = logger
	return logger
}

// ParseLevel turns a level name (debug, info, warn, error) into a dskit level.
func ParseLevel(s string) (dslog.Level, error) {
	var lvl dslog.Level
	if err := lvl.Set(s); err != nil {
		return dslog.Level{}, err
	}
	return lvl, nil
}
