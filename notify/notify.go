// Package notify delivers operational alerts. Delivery is fire and forget:
// the trading loop never blocks on a notification.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridbot/logger"
)

// AlertLevel grades a notification.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelError    AlertLevel = "error"
	LevelCritical AlertLevel = "critical"
)

// Notifier sends alerts to an external channel.
type Notifier interface {
	Send(level AlertLevel, title, message string)
}

// Nop discards every alert. Used when no channel is configured.
type Nop struct{}

func (Nop) Send(level AlertLevel, title, message string) {}

// Telegram sends alerts to a chat via the bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot. An invalid token fails fast.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth failed: %w", err)
	}
	logger.Infof("✅ telegram notifier ready as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send delivers the alert in a goroutine; failures are logged and dropped.
func (t *Telegram) Send(level AlertLevel, title, message string) {
	go func() {
		text := fmt.Sprintf("%s %s\n%s", levelEmoji(level), title, message)
		msg := tgbotapi.NewMessage(t.chatID, text)
		if _, err := t.bot.Send(msg); err != nil {
			logger.Warnf("⚠️  failed to send telegram alert: %v", err)
		}
	}()
}

func levelEmoji(level AlertLevel) string {
	switch level {
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "❌"
	case LevelCritical:
		return "🛑"
	default:
		return "💰"
	}
}
