// Package logging routes the standard logger. Output always goes to
// stderr because stdout carries the MCP stdio transport; a size-rotated
// file can be added alongside it.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure Setup.
type Options struct {
	// File is the log file path. Empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions returns the rotation settings used when only a path is
// configured.
func DefaultOptions(file string) Options {
	return Options{File: file, MaxSizeMB: 15, MaxBackups: 3, MaxAgeDays: 28}
}

// Setup points the standard logger at stderr and, if configured, the
// rotated file. The returned func closes the file.
func Setup(opts Options) (func() error, error) {
	return setup(log.Default(), os.Stderr, opts)
}

func setup(l *log.Logger, stderr io.Writer, opts Options) (func() error, error) {
	l.SetFlags(log.LstdFlags)
	if opts.File == "" {
		l.SetOutput(stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		l.SetOutput(stderr)
		return func() error { return nil }, err
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(stderr, file))
	return file.Close, nil
}
