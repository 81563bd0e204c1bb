package log

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Global verbosity for the InfoN/InfofN family. Messages with a verbosity
// above the global level are suppressed. Read from every goroutine, so
// access goes through the atomic.
var globalLogLevel uint32

func SetGlobalLogLevel(level uint) {
	atomic.StoreUint32(&globalLogLevel, uint32(level))
	if level > 2 {
		logrus.SetLevel(logrus.TraceLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func GlobalLogLevel() uint {
	return uint(atomic.LoadUint32(&globalLogLevel))
}

func Info(args ...interface{}) {
	logrus.Info(args...)
}

func Infof(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

func Info0(args ...interface{}) {
	logrus.Info(args...)
}

func Infof0(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

func Info1(args ...interface{}) {
	if GlobalLogLevel() >= 1 {
		logrus.Info(args...)
	}
}

func Infof1(format string, args ...interface{}) {
	if GlobalLogLevel() >= 1 {
		logrus.Infof(format, args...)
	}
}

func Info2(args ...interface{}) {
	if GlobalLogLevel() >= 2 {
		logrus.Info(args...)
	}
}

func Infof2(format string, args ...interface{}) {
	if GlobalLogLevel() >= 2 {
		logrus.Infof(format, args...)
	}
}

func Warn(args ...interface{}) {
	logrus.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	logrus.Warnf(format, args...)
}

func Error(args ...interface{}) {
	logrus.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}

func Panicf(format string, args ...interface{}) {
	logrus.Panicf(format, args...)
}

func Trace(args ...interface{}) {
	logrus.Trace(args...)
}

func Tracef(format string, args ...interface{}) {
	logrus.Tracef(format, args...)
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return logrus.WithFields(logrus.Fields(fields))
}
