package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/metrics"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log instead of Telegram. Used when no
// bot token is configured and by the demo.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, note adapter.Notification) error {
	ev := n.log.Info()
	if note.Level == adapter.NotificationError {
		ev = n.log.Warn()
	}
	ev.Str("level_hint", string(note.Level)).
		Str("job_key", note.JobKey).
		Str("tag", note.CorrelationTag).
		Str("description", note.Description).
		Msg(note.Title)
	metrics.IncNotification("log", string(note.Level), "sent")
	return nil
}
