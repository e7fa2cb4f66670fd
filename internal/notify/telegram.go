package notify

import (
	"context"
	"fmt"

	"recmirror/internal/config"
	"recmirror/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the minimal slice of the Telegram bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts sync failures and bad job outcomes into an operator
// chat. Delivery is best effort; a failed message is logged and dropped.
type TelegramNotifier struct {
	sender Sender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewWithSender(bot, cfg.ChatID, logger), nil
}

// NewWithSender wires an explicit sender, used in tests.
func NewWithSender(sender Sender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

func (n *TelegramNotifier) NotifySyncError(ctx context.Context, record *models.Record, errMsg string) {
	text := fmt.Sprintf("❌ Sync failed for record %s (id %d):\n%s", record.Name, record.ID, errMsg)
	n.send(text)
}

func (n *TelegramNotifier) NotifyJobFinished(ctx context.Context, job *models.CronJob, status string) {
	var icon string
	switch status {
	case models.RunStatusTimeout:
		icon = "⏱"
	case models.RunStatusError:
		icon = "❌"
	default:
		icon = "ℹ️"
	}
	text := fmt.Sprintf("%s Cron job %q finished with status %s (%s)", icon, job.Name, status, job.ScheduleDescription())
	n.send(text)
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Warn().Err(err).Msg("failed to send telegram notification")
	}
}
