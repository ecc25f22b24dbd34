// Package logger configures the process-wide logrus logger.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is used for every log line.
const TimestampFormat = "2006-01-02 15:04:05"

// Init sets up the text formatter with full timestamps. Verbose enables debug output.
func Init(out io.Writer, verbose bool) {
	f := new(logrus.TextFormatter)
	f.TimestampFormat = TimestampFormat
	f.FullTimestamp = true
	logrus.SetFormatter(f)
	if out != nil {
		logrus.SetOutput(out)
	}
	logrus.SetLevel(Level(verbose))
}

// Level maps the verbose flag to a log level.
func Level(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
