package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init() {
	out := io.Writer(os.Stdout)
	if path := os.Getenv("LOG_FILE"); path != "" {
		// Rotate on disk, keep stdout for journald/docker.
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	log.SetOutput(out)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }
