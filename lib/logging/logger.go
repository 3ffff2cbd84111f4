// Package logging installs a zerolog backed logger factory for the dragonboat
// logger package, which every dLock package uses for its named loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// zLogger writes the messages of one package through zerolog.
type zLogger struct {
	name  string
	level logger.LogLevel
	zl    zerolog.Logger
}

func (l *zLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *zLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.zl.Debug().Msgf(format, args...)
	}
}

func (l *zLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.zl.Info().Msgf(format, args...)
	}
}

func (l *zLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.zl.Warn().Msgf(format, args...)
	}
}

func (l *zLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.zl.Error().Msgf(format, args...)
	}
}

func (l *zLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.zl.WithLevel(zerolog.PanicLevel).Msg(msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// NewLogger creates a logger for pkgName writing to w at INFO level.
func NewLogger(pkgName string, w io.Writer) logger.ILogger {
	return &zLogger{
		name:  pkgName,
		level: logger.INFO,
		zl:    zerolog.New(w).With().Timestamp().Str("pkg", pkgName).Logger(),
	}
}

// CreateLogger is the logger.Factory installed by InitLoggers. It writes
// human readable lines to stderr.
func CreateLogger(pkgName string) logger.ILogger {
	return NewLogger(pkgName, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a level name (debug, info, warn, error) to a logger.LogLevel.
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatPackages are the loggers used inside dragonboat. They are kept one
// level quieter than ours since they report every election and snapshot.
var dragonboatPackages = []string{"raft", "raftpb", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb", "config"}

// Packages are the loggers of this module.
var Packages = []string{"store", "redistore", "sqlstore", "lockmgr", "idauthority", "backend", "cli"}

// InitLoggers installs CreateLogger as the global logger factory and sets the
// level of every known logger.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	quiet := lvl
	if quiet > logger.ERROR {
		quiet--
	}
	for _, pkg := range dragonboatPackages {
		logger.GetLogger(pkg).SetLevel(quiet)
	}
	for _, pkg := range Packages {
		logger.GetLogger(pkg).SetLevel(lvl)
	}
	return nil
}
