// Package notify delivers rendered messages to destination chat channels.
//
// A Notifier is fire-and-forget from the caller's point of view: it returns an
// error describing what could not be delivered, and the caller logs it. No
// implementation here retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Template is a printf-style message layout.
type Template string

// Message templates.
const (
	TrackingStarted Template = "▶️ Following a new live feed!\n\nURL: https://reddit.com/live/%s"
	TrackingStopped Template = "🔁 Stopped tracking this live feed due to inactivity"
	Unfollowed      Template = "✅ Unfollowed the current live feed."
	LiveUpdate      Template = "🗣 %s New update by %s\n\n%s"
)

// Message is a template plus its arguments.
type Message struct {
	Template Template
	Args     []any
}

// Render formats the message text.
func (m Message) Render() string {
	if len(m.Args) == 0 {
		return string(m.Template)
	}
	return fmt.Sprintf(string(m.Template), m.Args...)
}

// Started announces that feedID is now tracked.
func Started(feedID string) Message { return Message{Template: TrackingStarted, Args: []any{feedID}} }

// Stopped announces that tracking ended because the feed went quiet.
func Stopped() Message { return Message{Template: TrackingStopped} }

// OperatorUnfollowed announces a manual unfollow.
func OperatorUnfollowed() Message { return Message{Template: Unfollowed} }

// Update carries one live feed update.
func Update(feedID, author, body string) Message {
	return Message{Template: LiveUpdate, Args: []any{feedID, author, body}}
}

// Notifier sends a message to its destination.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// DeliveryError reports that a sink could not deliver a message.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver via %s: %v", e.Sink, e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }

type named interface{ Name() string }

func sinkName(n Notifier) string {
	if nn, ok := n.(named); ok {
		return nn.Name()
	}
	return fmt.Sprintf("%T", n)
}

// Multi fans a message out to every sink. A failing sink does not prevent
// delivery to the others.
type Multi []Notifier

// Send delivers to all sinks and joins their failures.
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			var de *DeliveryError
			if !errors.As(err, &de) {
				err = &DeliveryError{Sink: sinkName(n), Err: err}
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to the default slog logger. It is used when no chat
// destination is configured.
type Log struct{}

// Name implements named.
func (Log) Name() string { return "log" }

// Send logs the rendered message.
func (Log) Send(ctx context.Context, m Message) error {
	slog.Info("notify", slog.String("template", templateName(m.Template)), slog.String("text", m.Render()), slog.String("component", "notify"))
	return nil
}

func templateName(t Template) string {
	switch t {
	case TrackingStarted:
		return "tracking_started"
	case TrackingStopped:
		return "tracking_stopped"
	case Unfollowed:
		return "unfollowed"
	case LiveUpdate:
		return "live_update"
	default:
		return "custom"
	}
}

// flatten collapses a multi-line message onto one line for line-oriented
// transports.
func flatten(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	return strings.Join(fields, " | ")
}
