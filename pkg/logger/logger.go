package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// Init builds the process logger and installs it as zerolog's global logger.
// Development output is human readable; everything else is JSON.
func Init(env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if env != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// Gorm adapts l for gorm. SQL statements are logged at Info level unless running
// in production without debugSQL, where only warnings and slow queries show.
func Gorm(l zerolog.Logger, production, debugSQL bool) gormlogger.Interface {
	level := gormlogger.Info
	if production && !debugSQL {
		level = gormlogger.Warn
	}

	writer := l.With().Str("component", "gorm").Logger()
	return gormlogger.New(&writer, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
