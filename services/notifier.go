package services

import (
	"context"
	"fmt"
	"html"

	"dealtracker/models"
	"dealtracker/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is told when a tracked product first reaches its target price
type Notifier interface {
	NotifyTargetReached(ctx context.Context, p models.TrackedProduct) error
}

// messageSender is the part of *tgbotapi.BotAPI the notifier uses
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts price alerts to one chat
type TelegramNotifier struct {
	bot    messageSender
	chatID int64
	logger *utils.Logger
}

// NewTelegramNotifier connects to the bot API with token
func NewTelegramNotifier(token string, chatID int64, logger *utils.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	logger.Info("Telegram notifier authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) NotifyTargetReached(_ context.Context, p models.TrackedProduct) error {
	msg := tgbotapi.NewMessage(n.chatID, alertText(p))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send for %s: %w", p.ASIN, err)
	}
	n.logger.Info("Alert sent for %s (owner %s)", p.ASIN, p.Owner)
	return nil
}

func alertText(p models.TrackedProduct) string {
	var current, target float64
	if p.CurrentPrice != nil {
		current = *p.CurrentPrice
	}
	if p.TargetPrice != nil {
		target = *p.TargetPrice
	}
	return fmt.Sprintf("🎯 <b>Target price reached</b>\n\n%s\n\nNow: <b>%.2f</b> (target %.2f)\n<a href=\"%s\">View product</a>",
		html.EscapeString(p.Title), current, target, html.EscapeString(p.AffiliateURL))
}
