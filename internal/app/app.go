// Package app holds process setup shared by the wifisim commands.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wifisim/wifisim-go/pkg/log"
)

// ParseLevel maps a log level name to a slog level. Unknown names fall back
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w at level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ProtocolLog fans protocol events out to the debug logger and, when path is
// set, a .wlog file. Close flushes the file.
type ProtocolLog struct {
	log.Logger
	file *log.FileLogger
}

// OpenProtocolLog creates the protocol logger for a process.
func OpenProtocolLog(path string, logger *slog.Logger) (*ProtocolLog, error) {
	loggers := []log.Logger{log.NewSlogAdapter(logger)}

	var file *log.FileLogger
	if path != "" {
		var err error
		file, err = log.NewFileLogger(path)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		loggers = append(loggers, file)
	}

	return &ProtocolLog{Logger: log.NewMultiLogger(loggers...), file: file}, nil
}

// Written returns the number of events written to the file, or zero.
func (p *ProtocolLog) Written() int {
	if p.file == nil {
		return 0
	}
	return p.file.Written()
}

// Close closes the file, if any.
func (p *ProtocolLog) Close() error {
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}
