package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts messages to one or more Telegram chats through the Bot API.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

// DefaultTelegramTimeout bounds a single Bot API request.
const DefaultTelegramTimeout = 5 * time.Second

// NewTelegram authenticates the bot token. endpoint overrides the Bot API URL
// format (tgbotapi.APIEndpoint when empty). timeout bounds every Bot API
// request, DefaultTelegramTimeout when not positive.
func NewTelegram(token string, chatIDs []int64, endpoint string, timeout time.Duration) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram chat ids empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTelegramTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot login: %w", err)
	}
	return &Telegram{bot: bot, chatIDs: chatIDs}, nil
}

// ParseChatIDs parses a comma separated list of chat ids.
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Name implements named.
func (t *Telegram) Name() string { return "telegram" }

// Send posts the message to every chat. It returns once ctx is done even if
// a request is still in flight; the client timeout reaps that request.
func (t *Telegram) Send(ctx context.Context, m Message) error {
	text := m.Render()
	var errs []error
	for _, id := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := t.sendOne(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return &DeliveryError{Sink: t.Name(), Err: errors.Join(errs...)}
	}
	return nil
}

func (t *Telegram) sendOne(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
