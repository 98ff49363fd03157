package log

import (
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger Logger = &stdLogger{exitHandler: defaultExit}
)

// SetLogger replaces the package-level logger. Intended to be called once
// during startup, before any other goroutine logs.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func Info(args ...interface{}) {
	Default().Info(args...)
}

func Warn(args ...interface{}) {
	Default().Warn(args...)
}

func Error(args ...interface{}) {
	Default().Error(args...)
}

func Debug(args ...interface{}) {
	Default().Debug(args...)
}

func Fatal(args ...interface{}) {
	Default().Fatal(args...)
}

func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Default().Fatalf(format, args...)
}
