package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// Output selects where log records go besides the log file.
type Output int

const (
	// OutputLine is for one-shot commands: text records on stderr, JSON in the file.
	OutputLine Output = iota
	// OutputFullScreen is for the chat UI, which owns the terminal: file only.
	OutputFullScreen
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	File   string
	Level  slog.Level
	Output Output
	// Stderr receives line-mode records; nil means os.Stderr.
	Stderr io.Writer
}

// NewLogger builds the process logger and returns a func that closes the log
// file. If the file cannot be opened, line mode keeps logging to stderr and
// full-screen mode logs nothing.
func NewLogger(opts LoggerOptions) (*slog.Logger, func() error) {
	var console io.Writer
	if opts.Output == OutputLine {
		console = opts.Stderr
		if console == nil {
			console = os.Stderr
		}
	}

	file, err := openLogFile(opts.File)
	if err != nil {
		if console != nil {
			fmt.Fprintf(console, "Warning: logging to stderr only: %v\n", err)
		}
		return newLogger(console, nil, opts.Level), func() error { return nil }
	}
	return newLogger(console, file, opts.Level), file.Close
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// newLogger fans records out to the non-nil writers. File records carry the
// pid so runs of the chat UI and one-shot commands can be told apart.
func newLogger(console, file io.Writer, level slog.Level) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOpts).
			WithAttrs([]slog.Attr{slog.Int("pid", os.Getpid())}))
	}
	if len(handlers) == 0 {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
