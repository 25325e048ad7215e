// Package logging builds the slog.Logger shared by hooks and commands.
//
// Hooks run inside the host's process tree where stdout is the protocol
// channel, so nothing is ever written to stdout. With debug off every record
// is discarded; with debug on records go to stderr and are appended to
// <baseDir>/logs/hooks.log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the debug log written under <baseDir>/logs.
const FileName = "hooks.log"

// Options configures New.
type Options struct {
	Debug   bool
	BaseDir string
	// Stderr overrides os.Stderr (tests).
	Stderr io.Writer
	// Component is attached to every record.
	Component string
}

// New returns a logger and a function that releases its file.
// A log file that cannot be opened is not fatal; the logger falls back to
// stderr alone and reports the error.
func New(opts Options) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	if !opts.Debug {
		return slog.New(slog.DiscardHandler), noop, nil
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var (
		w       io.Writer = stderr
		closeFn           = noop
		openErr error
	)
	if opts.BaseDir != "" {
		f, err := openLogFile(opts.BaseDir)
		if err != nil {
			openErr = err
		} else {
			w = io.MultiWriter(stderr, f)
			closeFn = f.Close
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger, closeFn, openErr
}

func openLogFile(baseDir string) (*os.File, error) {
	dir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
