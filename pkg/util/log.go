package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat enables JSON log format
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns a logger with multiple fields
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithSlot returns a logger with SIM slot context
func WithSlot(slot int) *logrus.Entry {
	return Logger.WithField("slot", slot)
}

// WithTransport returns a logger with transport context
func WithTransport(transport string) *logrus.Entry {
	return Logger.WithField("transport", transport)
}

// WithComponent returns a logger tagged with the owning event-loop component,
// e.g. "dcsm", "dcctrl", "transportmgr", "dispatch".
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// Debug, Debugf, Info, Warn, Error, Errorf, Fatal and Fatalf log on the
// default logger; Fatal and Fatalf exit the process after logging.
func Debug(args ...interface{})                 { Logger.Debug(args...) }
func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Info(args ...interface{})                  { Logger.Info(args...) }
func Warn(args ...interface{})                  { Logger.Warn(args...) }
func Error(args ...interface{})                 { Logger.Error(args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
func Fatal(args ...interface{})                 { Logger.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { Logger.Fatalf(format, args...) }

// Warnf logs a formatted warning on the default logger.
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

// Infof logs a formatted info message on the default logger.
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}
