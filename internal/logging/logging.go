// Package logging configures the process logger. This is the
// operational log for debugging; the user-facing activity log lives in
// internal/activity.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing structured entries to stderr and to a
// size-rotated file under dir. An empty dir logs to stderr only.
func New(dir string, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if dir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "nefwatch.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		log.SetOutput(os.Stderr)
	}

	return log
}
