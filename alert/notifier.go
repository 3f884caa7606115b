package alert

import (
	"context"
	"log/slog"
)

// Notifier delivers alerts to an external notification dispatcher
// (email, chat, paging). Implementations must be safe for concurrent
// use; a slow or failing notifier never blocks alert persistence.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// LogNotifier writes alerts to a structured logger. It is the default
// notifier and a reasonable fallback when no dispatcher is wired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, a *Alert) error {
	level := slog.LevelWarn
	if a.Severity == SeverityCritical {
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, "operator alert",
		slog.String("alert_id", a.ID.String()),
		slog.String("severity", string(a.Severity)),
		slog.String("component", a.Component),
		slog.String("message", a.Message),
	)
	return nil
}
