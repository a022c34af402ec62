// Package logging wraps github.com/op/go-logging with the small set of
// leveled free functions the rest of radishkv calls.
package logging

import (
	"os"

	"github.com/op/go-logging"
)

const moduleName = "radishkv"

const (
	CRITICAL = logging.CRITICAL
	ERROR    = logging.ERROR
	WARNING  = logging.WARNING
	NOTICE   = logging.NOTICE
	INFO     = logging.INFO
	DEBUG    = logging.DEBUG
)

var logger = logging.MustGetLogger(moduleName)
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} ▶ %{level:.4s} %{id:03x}%{color:reset} %{message}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, format)
	logging.SetBackend(backendFormatter)
}

// SetLevel sets the global log level.
func SetLevel(level logging.Level) {
	logging.SetLevel(level, moduleName)
}

func Criticalf(format string, args ...interface{}) { logger.Criticalf(format, args...) }
func Critical(msg string)                          { logger.Critical(msg) }
func Errorf(format string, args ...interface{})    { logger.Errorf(format, args...) }
func Error(msg string)                             { logger.Error(msg) }
func Warningf(format string, args ...interface{})  { logger.Warningf(format, args...) }
func Warning(msg string)                           { logger.Warning(msg) }
func Noticef(format string, args ...interface{})   { logger.Noticef(format, args...) }
func Notice(msg string)                            { logger.Notice(msg) }
func Infof(format string, args ...interface{})     { logger.Infof(format, args...) }
func Info(msg string)                              { logger.Info(msg) }
func Debugf(format string, args ...interface{})    { logger.Debugf(format, args...) }
func Debug(msg string)                             { logger.Debug(msg) }
