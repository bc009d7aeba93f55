// Package logx is the structured logging seam shared by the compiler stages.
//
// Stages accept a Logger through their options and default to Nop, so library
// use stays silent. The CLI wires a log/slog text handler on stderr.
package logx

import (
	"io"
	"log/slog"
)

// Logger takes alternating key/value attrs, following the log/slog convention:
//
//	logger.Debug("class built", "class", "Posts", "methods", 3)
type Logger interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)
	With(attrs ...any) Logger
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
func (n Nop) With(...any) Logger { return n }

var _ Logger = Nop{}

// Slog adapts a *slog.Logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps logger; a nil logger falls back to slog.Default().
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

func (s *Slog) Debug(msg string, attrs ...any) { s.logger.Debug(msg, attrs...) }
func (s *Slog) Info(msg string, attrs ...any)  { s.logger.Info(msg, attrs...) }
func (s *Slog) Warn(msg string, attrs ...any)  { s.logger.Warn(msg, attrs...) }
func (s *Slog) Error(msg string, attrs ...any) { s.logger.Error(msg, attrs...) }

func (s *Slog) With(attrs ...any) Logger {
	return &Slog{logger: s.logger.With(attrs...)}
}

var _ Logger = (*Slog)(nil)

// NewText builds a text-handler logger writing to w. Verbose lowers the level
// from warn to debug.
func NewText(w io.Writer, verbose bool) Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return NewSlog(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
