package dispatcher

import (
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// Sender delivers one HTML message to a chat.
type Sender interface {
	Send(chatID int64, text string) error
}

// telegramSender sends through the Telegram bot API. On a 429 it sleeps
// for the server-provided retry-after before surfacing the error, so the
// retry wrapper's next attempt lands after the penalty.
type telegramSender struct {
	bot   *tgbotapi.BotAPI
	sleep func(time.Duration)
}

func NewTelegramSender(token string) (Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, &errs.ExternalAPIError{API: "telegram", Err: err}
	}
	return &telegramSender{bot: bot, sleep: time.Sleep}, nil
}

func (s *telegramSender) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := s.bot.Send(msg)
	if err == nil {
		return nil
	}

	status := 0
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		status = tgErr.Code
		if tgErr.RetryAfter > 0 {
			s.sleep(time.Duration(tgErr.RetryAfter) * time.Second)
		}
	}
	return &errs.ExternalAPIError{API: "telegram", StatusCode: status, Err: err}
}
