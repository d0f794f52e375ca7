// Package btlog wraps logrus with the field conventions used across the
// governor and manager packages: every entry is tagged with the URL and,
// where relevant, the operation in flight.
package btlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-wide logger instance.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel parses and applies a logrus level name.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// L returns the base logger entry with no fields attached.
func L() *logrus.Entry {
	return logrus.NewEntry(Logger)
}

// WithURL returns a logger scoped to a governed entity.
func WithURL(url string) *logrus.Entry {
	return Logger.WithField("url", url)
}

// WithOp returns a logger scoped to a governed entity and an operation name.
func WithOp(url, op string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"url": url, "op": op})
}
