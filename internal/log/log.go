// Package log is a thin leveled logging facade over logrus that takes
// alternating key/value pairs, so call sites stay short.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup configures the package logger. Verbose enables debug output.
func Setup(verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects log output, mostly useful in tests
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Verbose reports whether debug output is enabled
func Verbose() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

func Debug(msg string, kv ...any) { entry(kv).Debug(msg) }
func Info(msg string, kv ...any)  { entry(kv).Info(msg) }
func Warn(msg string, kv ...any)  { entry(kv).Warn(msg) }
func Error(msg string, kv ...any) { entry(kv).Error(msg) }

func entry(kv []any) *logrus.Entry {
	return logger.WithFields(fields(kv))
}

// fields converts alternating key/value pairs into logrus fields.
// A dangling key is recorded under "!BADKEY" rather than dropped.
func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			f["!BADKEY"] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}
