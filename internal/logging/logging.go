// internal/logging/logging.go
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// Setup builds the process logger from cfg. A file that cannot be
// opened falls back to stdout with a warning. The returned closer
// releases the file, if any.
func Setup(cfg config.LogConfig) (*logrus.Logger, func() error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	closer := func() error { return nil }
	if cfg.Output == "file" && cfg.FilePath != "" {
		f, err := openFile(cfg.FilePath)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
			closer = f.Close
		} else {
			log.WithError(err).Warn("open log file failed, using stdout")
		}
	}

	return log, closer
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
