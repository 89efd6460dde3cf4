// Package logging builds the application logger and bridges download
// progress events into it.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/download"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to console and to the rotating log file
// described by cfg. Either destination may be disabled: pass a nil console,
// or leave cfg.File empty. The returned Closer flushes the log file.
func New(cfg config.LogSettings, console io.Writer) (*log.Logger, io.Closer) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if console != nil {
		writers = append(writers, console)
	}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:  cfg.File,
			MaxSize:   cfg.MaxSizeMB,
			MaxAge:    cfg.MaxAgeDays,
			LocalTime: true,
		}
		writers = append(writers, file)
		closer = file
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           log.InfoLevel,
	})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	return logger, closer
}

// NewConsole returns a logger writing to stderr only.
// It is used before the settings are known.
func NewConsole() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
	})
}

// EventHandler returns a download progress callback that writes every
// event to logger at the matching level.
func EventHandler(logger *log.Logger) func(download.ProgressEvent) {
	return func(event download.ProgressEvent) {
		switch event.Level {
		case download.LevelVerbose:
			logger.Debug(event.Message)
		case download.LevelWarning:
			logger.Warn(event.Message)
		case download.LevelError:
			logger.Error(event.Message)
		default:
			logger.Info(event.Message)
		}
	}
}
