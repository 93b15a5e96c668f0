// Package publisher renders a digest and sends it over the configured
// notification channels.
package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/pipeline"
	"github.com/RobinCoderZhao/newsdigest/pkg/notify"
)

// Config selects delivery channels and their settings.
type Config struct {
	Channels      []string              `yaml:"channels" env:"DELIVERY_CHANNELS"`
	SubjectPrefix string                `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	Email         notify.EmailConfig    `yaml:"email"`
	Webhook       notify.WebhookConfig  `yaml:"webhook"`
	Telegram      notify.TelegramConfig `yaml:"telegram"`
}

// ParseChannels validates the configured channel names. An empty list
// means stdout.
func (c Config) ParseChannels() ([]notify.Channel, error) {
	if len(c.Channels) == 0 {
		return []notify.Channel{notify.ChannelStdout}, nil
	}
	out := make([]notify.Channel, 0, len(c.Channels))
	for _, name := range c.Channels {
		ch, err := notify.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// Publisher implements pipeline.Deliverer.
type Publisher struct {
	dispatcher *notify.Dispatcher
	channels   []notify.Channel
	prefix     string
	logger     *slog.Logger
}

// New builds a publisher with one notifier per configured channel. stdout
// is written to out, or os.Stdout when out is nil.
func New(cfg Config, out io.Writer, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	channels, err := cfg.ParseChannels()
	if err != nil {
		return nil, err
	}

	d := notify.NewDispatcher(logger)
	for _, ch := range channels {
		switch ch {
		case notify.ChannelEmail:
			if err := cfg.Email.Validate(); err != nil {
				return nil, err
			}
			d.Register(notify.NewEmailNotifier(cfg.Email))
		case notify.ChannelWebhook:
			if cfg.Webhook.URL == "" {
				return nil, fmt.Errorf("webhook: url is required")
			}
			d.Register(notify.NewWebhookNotifier(cfg.Webhook))
		case notify.ChannelTelegram:
			if cfg.Telegram.BotToken == "" || cfg.Telegram.ChannelID == "" {
				return nil, fmt.Errorf("telegram: bot_token and channel_id are required")
			}
			d.Register(notify.NewTelegramNotifier(cfg.Telegram))
		case notify.ChannelStdout:
			d.Register(notify.NewWriterNotifier(out))
		}
	}
	return NewPublisher(d, channels, cfg.SubjectPrefix, logger), nil
}

// NewPublisher creates a publisher on an existing dispatcher.
func NewPublisher(dispatcher *notify.Dispatcher, channels []notify.Channel, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		dispatcher: dispatcher,
		channels:   channels,
		prefix:     prefix,
		logger:     logger,
	}
}

// Channels returns the channels every digest is sent to.
func (p *Publisher) Channels() []notify.Channel { return p.channels }

// Deliver renders d and sends it to every channel. Any channel failing
// fails the delivery.
func (p *Publisher) Deliver(ctx context.Context, d pipeline.Digest) error {
	msg, err := Render(p.prefix, d)
	if err != nil {
		return err
	}
	p.logger.Info("delivering digest", "run_id", d.RunID, "stories", d.Total, "channels", p.channels)
	return p.dispatcher.Dispatch(ctx, p.channels, msg)
}
