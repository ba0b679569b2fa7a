package ioc

import (
	"log/slog"
)

// LogSink is the seam a container's diagnostics flow through (spec.md §6
// "log_sink" container option). The default implementation forwards to
// log/slog, matching the teacher's own use of slog.Info for container
// lifecycle events.
type LogSink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink adapts a *slog.Logger to LogSink. Passing nil uses
// slog.Default().
func NewSlogSink(logger *slog.Logger) LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogSink{logger: logger}
}

func (s *slogSink) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *slogSink) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogSink) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogSink) Error(msg string, args ...any) { s.logger.Error(msg, args...) }
