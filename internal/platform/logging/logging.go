// Package logging builds the process logger: console output in development,
// a rotating file sink otherwise (30-day retention per the ops layout).
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a zerolog.Logger with the requested level and optional rotating
// file output. An unknown level falls back to info.
func New(level, file string, dev bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if dev {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		writers = append(writers, os.Stderr)
	}
	if file != "" {
		_ = os.MkdirAll(filepath.Dir(file), 0o755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB; a daily batch stays well under this
			MaxAge:     30, // days
			MaxBackups: 30,
			Compress:   true,
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
}
