// Package log builds logrus loggers for the engine and its tools.
package log

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/fault"
)

// DebugEnv enables debug level of loggers returned by GetLogger.
const DebugEnv = "AUDIOCHAIN_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns logger that discards everything.
func Silent() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

var traces = map[string]logrus.Level{
	"debug":   logrus.TraceLevel,
	"log":     logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"info2":   logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
}

// ParseTrace maps trace level name to logrus level.
func ParseTrace(s string) (logrus.Level, error) {
	if l, ok := traces[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return logrus.InfoLevel, fault.New(fault.OutOfRange, "parse trace", s, "unknown trace level")
}
