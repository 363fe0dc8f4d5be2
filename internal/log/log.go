// Package log is the capture tool's logging facade: a small interface
// over logrus so callers depend on Logger, not the concrete library,
// plus a MultiWriter and file appender for the config-driven output
// destinations spec §6's ambient logging surface names (stdout, and
// optionally a rotated file).
package log

import "sync"

// Logger is the logging surface every other package depends on.
type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once    sync.Once
	logger  Logger
	writers *MultiWriter
)

// GetLogger returns the process-wide Logger. Panics if Init hasn't run
// — every entry point (cmd, tests that need logging) calls Init
// first.
func GetLogger() Logger {
	if logger == nil {
		panic("log: GetLogger called before Init")
	}
	return logger
}

// Init builds the process-wide Logger from cfg. Safe to call more than
// once; only the first call takes effect.
func Init(cfg *LoggerConfig) {
	once.Do(func() {
		if err := initByConfig(cfg); err != nil {
			panic(err)
		}
	})
}

// Close flushes and closes the process-wide logger's underlying
// writers (the rotated file appender, if configured). Safe to call even
// if Init was never called.
func Close() error {
	if writers == nil {
		return nil
	}
	return writers.Close()
}
