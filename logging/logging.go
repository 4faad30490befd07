// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/PaulFidika/rolesync/config"
)

const megabyte = 1 << 20

// New returns a logger writing to stderr and, when cfg.File is set, to a
// size-rotated file. Close the returned io.Closer on shutdown.
func New(cfg config.Log) (*logrus.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.Log, console io.Writer) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unknown LOG_FORMAT %q", cfg.Format)
	}

	if cfg.File == "" {
		log.SetOutput(console)
		return log, nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSizeMB(cfg.MaxBytes),
		MaxBackups: cfg.BackupCount,
	}
	log.SetOutput(io.MultiWriter(console, file))
	return log, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// maxSizeMB converts a byte budget to lumberjack's megabyte unit, rounding up.
func maxSizeMB(bytes int) int {
	if bytes <= 0 {
		return 1
	}
	return (bytes + megabyte - 1) / megabyte
}
