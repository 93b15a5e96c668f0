// Package notify delivers rendered messages over email, webhook, Telegram or
// a plain writer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Channel represents a notification channel type.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
	ChannelTelegram Channel = "telegram"
	ChannelStdout   Channel = "stdout"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch ch := Channel(s); ch {
	case ChannelEmail, ChannelWebhook, ChannelTelegram, ChannelStdout:
		return ch, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

// Message is one rendered notification.
type Message struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	HTMLBody string         `json:"html_body,omitempty"`
	Format   string         `json:"format"` // "markdown", "html", "plain"
	URL      string         `json:"url,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Notifier sends messages over one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Channel() Channel
}

// Dispatcher routes messages to registered notifiers.
type Dispatcher struct {
	notifiers map[Channel]Notifier
	logger    *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifiers: make(map[Channel]Notifier),
		logger:    logger,
	}
}

// Register adds a notifier, replacing any earlier one on the same channel.
func (d *Dispatcher) Register(n Notifier) {
	d.notifiers[n.Channel()] = n
}

// Channels lists the registered channels in name order.
func (d *Dispatcher) Channels() []Channel {
	channels := make([]Channel, 0, len(d.notifiers))
	for ch := range d.notifiers {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// Dispatch sends msg to every listed channel. All channels are attempted;
// the joined error reports each one that failed or is not registered.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []Channel, msg Message) error {
	var errs []error
	for _, ch := range channels {
		notifier, ok := d.notifiers[ch]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: notifier not registered", ch))
			continue
		}
		if err := notifier.Send(ctx, msg); err != nil {
			d.logger.Error("notification failed", "channel", ch, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			continue
		}
		d.logger.Info("notification sent", "channel", ch, "title", msg.Title)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to send %d/%d notifications: %w", len(errs), len(channels), errors.Join(errs...))
	}
	return nil
}

// SendAll sends msg to every registered channel.
func (d *Dispatcher) SendAll(ctx context.Context, msg Message) error {
	return d.Dispatch(ctx, d.Channels(), msg)
}
