package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"campaign-launcher/internal/config"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/metrics"
)

var _ adapter.Notifier = (*Notifier)(nil)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts launch notifications to the configured operator chats as
// plain text.
type Notifier struct {
	bot     sender
	chatIDs []int64
	log     *zerolog.Logger
}

func NewNotifier(cfg *config.BotConfig, logger *zerolog.Logger) (*Notifier, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	if len(cfg.OperatorChatIDs) == 0 {
		return nil, errors.New("no operator chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newNotifier(bot, cfg.OperatorChatIDs, logger), nil
}

func newNotifier(bot sender, chatIDs []int64, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &Notifier{bot: bot, chatIDs: chatIDs, log: &l}
}

func (n *Notifier) Notify(ctx context.Context, note adapter.Notification) error {
	text := FormatNotification(note)
	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			metrics.IncNotification("telegram", string(note.Level), "error")
			n.log.Warn().Err(err).Int64("chat_id", id).Str("job_key", note.JobKey).Msg("failed to send notification")
			errs = append(errs, err)
			continue
		}
		metrics.IncNotification("telegram", string(note.Level), "sent")
	}
	return errors.Join(errs...)
}

// FormatNotification renders a notification as plain text.
func FormatNotification(note adapter.Notification) string {
	icon := "ℹ️"
	switch note.Level {
	case adapter.NotificationSuccess:
		icon = "✅"
	case adapter.NotificationError:
		icon = "❌"
	}
	var b strings.Builder
	b.WriteString(icon + " " + note.Title)
	if note.Description != "" {
		b.WriteString("\n" + note.Description)
	}
	if note.CorrelationTag != "" {
		b.WriteString("\n" + note.CorrelationTag)
	}
	return b.String()
}
