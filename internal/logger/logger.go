package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultPath is where logs go when no file is configured. The terminal
// belongs to the UI, so logs never go to stdout or stderr.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "pdfchat.log")
}

// New returns a development logger when debug is true, otherwise a
// production (JSON, info level) logger. Both write to path.
func New(debug bool, path string) (*zap.Logger, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
