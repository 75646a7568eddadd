package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(out)
	return l
}

// GetLogger returns the shared logger
func GetLogger() *logrus.Logger {
	return logger
}

// SetLogOutput redirects the logger and returns the previous writer
func SetLogOutput(w io.Writer) io.Writer {
	prev := logger.Out
	logger.SetOutput(w)
	return prev
}

// SetLogLevel parses and applies a level name, keeping the current level
// on an unknown name
func SetLogLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
}

func caller() string {
	_, file, line, _ := runtime.Caller(2)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// LogInfo logs an informational message
func LogInfo(format string, v ...interface{}) {
	logger.WithField("caller", caller()).Infof(format, v...)
}

// LogError logs an error message
func LogError(format string, v ...interface{}) {
	logger.WithField("caller", caller()).Errorf(format, v...)
}

// LogDebug logs a debug message
func LogDebug(format string, v ...interface{}) {
	logger.WithField("caller", caller()).Debugf(format, v...)
}

// LogOperation logs the outcome and duration of an operation
func LogOperation(operation string, startTime time.Time, err error) {
	entry := logger.WithFields(logrus.Fields{
		"operation": operation,
		"duration":  time.Since(startTime).String(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return
	}
	entry.Info("operation completed")
}

// LogFailure logs an error with the module and function it came from
func LogFailure(module, function, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   module,
		"funcName": function,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
