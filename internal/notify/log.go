package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log. It is the fallback when no
// broker is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Warn().
		Int("notification_id", n.ID).
		Str("title", n.Title).
		Str("text", n.Text).
		Str("reason", n.Reason).
		Msg("🔔 User notification")
	return nil
}
