package push

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"
)

// telegramBackend sends through the Bot API using telebot.
type telegramBackend struct {
	bot   *telebot.Bot
	token string
	chats []int64
}

func newTelegramBackend(parts []string, opts Options) (*telegramBackend, error) {
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: tgram needs <bot_token>/<chat_id>", ErrInvalidURL)
	}
	token := parts[0]
	if !strings.Contains(token, ":") {
		return nil, fmt.Errorf("%w: telegram bot token must look like <id>:<secret>", ErrInvalidURL)
	}
	var chats []int64
	for _, p := range parts[1:] {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram chat id %q is not numeric", ErrInvalidURL, p)
		}
		chats = append(chats, id)
	}

	// Offline skips the getMe round-trip at registration.
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
		Client:  opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot: %v", ErrInvalidURL, err)
	}
	return &telegramBackend{bot: bot, token: token, chats: chats}, nil
}

func (b *telegramBackend) Name() string {
	return "tgram://" + mask(b.token)
}

func (b *telegramBackend) Send(_ context.Context, title, body string) error {
	msg := text(title, body)
	for _, chat := range b.chats {
		if _, err := b.bot.Send(telebot.ChatID(chat), msg, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("telegram chat %d: %w", chat, err)
		}
	}
	return nil
}
