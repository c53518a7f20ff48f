package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// twitchMaxLen is the Twitch chat message length limit.
const twitchMaxLen = 500

type sayer interface {
	Say(channel, text string)
}

// TwitchChat posts messages into Twitch chat channels over IRC.
type TwitchChat struct {
	client    *twitch.Client
	say       sayer
	channels  []string
	connected atomic.Bool
}

// NewTwitchChat prepares an IRC client for the bot account. Call Connect to
// open the connection.
func NewTwitchChat(username, oauthToken string, channels []string) *TwitchChat {
	client := twitch.NewClient(username, oauthToken)
	tc := &TwitchChat{client: client, say: client, channels: channels}
	client.OnConnect(func() {
		tc.connected.Store(true)
		slog.Info("twitch chat connected", slog.Any("channels", channels), slog.String("component", "notify"))
	})
	client.Join(channels...)
	return tc
}

// Connect runs the IRC connection until ctx is canceled. The client
// reconnects on its own after transient drops.
func (t *TwitchChat) Connect(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.connected.Store(false)
		_ = t.client.Disconnect()
	}()
	if err := t.client.Connect(); err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
		slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("component", "notify"))
	}
	t.connected.Store(false)
}

// Name implements named.
func (t *TwitchChat) Name() string { return "twitch" }

// Send says the flattened message in every channel.
func (t *TwitchChat) Send(ctx context.Context, m Message) error {
	if t.client != nil && !t.connected.Load() {
		return &DeliveryError{Sink: t.Name(), Err: errors.New("not connected")}
	}
	text := flatten(m.Render())
	if r := []rune(text); len(r) > twitchMaxLen {
		text = string(r[:twitchMaxLen-1]) + "…"
	}
	for _, ch := range t.channels {
		if err := ctx.Err(); err != nil {
			return &DeliveryError{Sink: t.Name(), Err: err}
		}
		t.say.Say(ch, text)
	}
	return nil
}
