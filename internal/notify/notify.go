package notify

import "github.com/rs/zerolog"

// Notifier surfaces user-facing toasts. Every terminal upload outcome
// produces exactly one notification.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Logger is a Notifier that writes toasts to a zerolog logger. It is the
// default sink when no UI is attached.
type Logger struct {
	log zerolog.Logger
}

// NewLogger creates a log-backed notifier.
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "notify").Logger()}
}

func (l *Logger) Success(msg string) {
	l.log.Info().Str("toast", "success").Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.log.Warn().Str("toast", "error").Msg(msg)
}

// Discard is a Notifier that drops every notification.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}
