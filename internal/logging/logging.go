// Package logging builds the zerolog logger shared by the node and the gateway.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/afroash/soil-monitor/internal/config"
)

// New returns a logger configured from cfg and a function that releases the
// log file, if any. Output always goes to stdout; with a file path set it is
// also written to a rotating file.
func New(cfg config.LoggingConfig, stdout io.Writer) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}

	if stdout == nil {
		stdout = os.Stdout
	}
	var console io.Writer = stdout
	if cfg.Format == "text" {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	closer := func() error { return nil }
	out := console
	if cfg.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		// The file always receives JSON lines.
		out = zerolog.MultiLevelWriter(console, file)
		closer = file.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}
