// Package xlog provides the small set of logging helpers used throughout
// this module. It mirrors the level-tagging convention used by
// github.com/Comcast/webpa-common/logging (logging.Info(logger),
// logging.Error(logger)), rebased onto the standalone go-kit/log module.
package xlog

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MessageKey is the structured-logging key under which a human-readable
// message is logged, matching the teacher's logging.MessageKey().
const MessageKey = "msg"

// ErrorKey is the structured-logging key under which an error value is
// logged, matching the teacher's logging.ErrorKey().
const ErrorKey = "error"

// Info returns a logger that tags every statement at the info level.
func Info(logger log.Logger) log.Logger {
	return level.Info(logger)
}

// Error returns a logger that tags every statement at the error level.
func Error(logger log.Logger) log.Logger {
	return level.Error(logger)
}

// Debug returns a logger that tags every statement at the debug level.
func Debug(logger log.Logger) log.Logger {
	return level.Debug(logger)
}

// Warn returns a logger that tags every statement at the warn level.
func Warn(logger log.Logger) log.Logger {
	return level.Warn(logger)
}

// New builds the default logger for this module: logfmt to the given
// writer-backed base logger, with a timestamp and caller attached.
func New(base log.Logger) log.Logger {
	return log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
