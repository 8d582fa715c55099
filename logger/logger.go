package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// The shared loggers default to stdout so importers can log before main
// runs. InitLoggers swaps in the rotating file writers.
var (
	InfoLogger  = newLogger("", "info.log", logrus.InfoLevel)
	WarnLogger  = newLogger("", "warn.log", logrus.WarnLevel)
	ErrorLogger = newLogger("", "error.log", logrus.ErrorLevel)
)

// InitLoggers points the shared loggers at LOG_DIR with rotation. Call once
// at startup.
func InitLoggers() {
	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		// Fall back to stdout-only logging if the directory cannot be created.
		logDir = ""
	}

	InfoLogger = newLogger(logDir, "info.log", logrus.InfoLevel)
	WarnLogger = newLogger(logDir, "warn.log", logrus.WarnLevel)
	ErrorLogger = newLogger(logDir, "error.log", logrus.ErrorLevel)
}

func newLogger(dir, filename string, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})

	if dir == "" {
		l.SetOutput(os.Stdout)
		return l
	}

	rotator := &lumberjack.Logger{
		Filename:   dir + "/" + filename,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return l
}
