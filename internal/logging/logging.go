// Package logging points the standard logger at stdout and a rotating log
// file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/high-horse/fingerprint-server/internal/config"
)

const flags = log.LstdFlags | log.Lmicroseconds

// Setup installs the configured writer on the standard logger and returns
// it so request logging can share it. The returned closer releases the
// rotating file.
func Setup(cfg config.Log) (io.Writer, io.Closer, error) {
	w, c, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(w)
	log.SetFlags(flags)
	return w, c, nil
}

// New builds the writer without touching the standard logger.
func New(cfg config.Log) (io.Writer, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if cfg.Stdout {
		writers = append(writers, os.Stdout)
	}
	if cfg.File {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("log dir: %w", err)
		}
		rl, err := rotatelogs.New(
			filepath.Join(cfg.Dir, cfg.Pattern),
			rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "current.log")),
			rotatelogs.WithMaxAge(cfg.MaxAge),
			rotatelogs.WithRotationTime(cfg.RotationTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		writers = append(writers, rl)
		closer = rl
	}
	if len(writers) == 0 {
		return io.Discard, closer, nil
	}
	return io.MultiWriter(writers...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
