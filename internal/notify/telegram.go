package notify

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"

	"autopost/internal/config"
	logx "autopost/pkg/logx"
)

// telegramSender pushes notifications to one chat through the Bot API.
// The bot only ever sends; it never polls for updates.
type telegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func newTelegramSender(cfg *config.NotifyTelegramConfig, log logx.Logger) (*telegramSender, error) {
	token := cfg.ResolvedToken()
	if token == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg == nil || cfg.ChatID == 0 {
		return nil, errors.New("notify: telegram chat_id is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	log.Debug("telegram notifier connected", logx.Int64("chat_id", cfg.ChatID))
	return &telegramSender{bot: bot, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

func (t *telegramSender) Send(ctx context.Context, title, message string) error {
	text := message
	if title != "" {
		text = title + "\n\n" + message
	}
	_, err := t.bot.Send(t.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
