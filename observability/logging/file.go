package logging

import (
	"io"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures a size-rotated log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileWriter returns a rotating writer for opts, or nil when no path is set.
// Zero limits fall back to lumberjack's defaults.
func FileWriter(opts FileOptions) io.WriteCloser {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}
