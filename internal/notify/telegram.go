package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cronboard/cronboard/internal/synchronizer"
)

// TelegramNotifier sends transitions to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects the bot. endpoint overrides the Bot API URL
// template and may be empty.
func NewTelegramNotifier(token string, chatID int64, endpoint string) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram: token and chat id are required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(_ context.Context, tr synchronizer.Transition) error {
	m := tgbotapi.NewMessage(t.chatID, formatHTML(tr))
	m.ParseMode = "HTML"
	if _, err := t.bot.Send(m); err != nil {
		// Fallback to plain text.
		if _, err2 := t.bot.Send(tgbotapi.NewMessage(t.chatID, FormatText(tr))); err2 != nil {
			return fmt.Errorf("telegram: send: %w", err2)
		}
	}
	return nil
}

func formatHTML(tr synchronizer.Transition) string {
	return fmt.Sprintf("%s job <b>%s</b> (<code>%s</code>) in group <code>%s</code>: %s → <b>%s</b>",
		statusIcon(tr.To),
		html.EscapeString(tr.JobName),
		html.EscapeString(tr.JobID),
		html.EscapeString(tr.GroupID),
		tr.From, tr.To)
}
