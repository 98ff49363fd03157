package log

import (
	"fmt"
	std "log"
	"os"
)

type exitFunc func(code int)

func defaultExit(code int) {
	os.Exit(code)
}

type logLevel string

const (
	levelInfo  logLevel = "INFO"
	levelWarn  logLevel = "WARN"
	levelDebug logLevel = "DEBUG"
	levelError logLevel = "ERROR"
	levelFatal logLevel = "FATAL"
)

// stdLogger is the fallback used before a real backend is configured.
type stdLogger struct {
	exitHandler exitFunc
}

func (l *stdLogger) Info(args ...interface{}) {
	l.log(levelInfo, args...)
}

func (l *stdLogger) Warn(args ...interface{}) {
	l.log(levelWarn, args...)
}

func (l *stdLogger) Error(args ...interface{}) {
	l.log(levelError, args...)
}

func (l *stdLogger) Debug(args ...interface{}) {
	l.log(levelDebug, args...)
}

func (l *stdLogger) Fatal(args ...interface{}) {
	l.log(levelFatal, args...)
	l.exitHandler(1)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.logf(levelInfo, format, args...)
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.logf(levelWarn, format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.logf(levelError, format, args...)
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.logf(levelDebug, format, args...)
}

func (l *stdLogger) Fatalf(format string, args ...interface{}) {
	l.logf(levelFatal, format, args...)
	l.exitHandler(1)
}

func (l *stdLogger) log(level logLevel, args ...interface{}) {
	message := "[" + string(level) + "]"
	for _, arg := range args {
		message += fmt.Sprintf(" %v", arg)
	}
	std.Print(message)
}

func (l *stdLogger) logf(level logLevel, format string, args ...interface{}) {
	std.Printf("["+string(level)+"] "+format, args...)
}
