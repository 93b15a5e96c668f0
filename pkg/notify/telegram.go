package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken  string `yaml:"bot_token" json:"-" env:"TELEGRAM_BOT_TOKEN"`
	ChannelID string `yaml:"channel_id" json:"channel_id" env:"TELEGRAM_CHANNEL_ID"`
	APIBase   string `yaml:"api_base" json:"api_base"`
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	config TelegramConfig
	http   *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Channel() Channel { return ChannelTelegram }

// maxMessageLen is the Bot API limit on sendMessage text, in UTF-16 code units.
const maxMessageLen = 4096

// Send posts the message as MarkdownV2. The body is escaped as plain text;
// only the title is emphasized. Text over the Bot API limit goes out as
// several messages in order, split on line boundaries.
func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	text := escapeMarkdown(msg.Body)
	if msg.Title != "" {
		text = fmt.Sprintf("*%s*\n\n%s", escapeMarkdown(msg.Title), text)
	}
	if msg.URL != "" {
		text += fmt.Sprintf("\n\n[%s](%s)", escapeMarkdown("Read more"), msg.URL)
	}

	parts := splitMessage(text, maxMessageLen)
	for i, part := range parts {
		if err := t.sendMessage(ctx, part); err != nil {
			if len(parts) == 1 {
				return err
			}
			return fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.config.ChannelID,
		"text":                     text,
		"parse_mode":               "MarkdownV2",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.config.APIBase, "/"), t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// splitMessage cuts escaped MarkdownV2 text into pieces of at most limit
// UTF-16 units. Whole lines are kept together where they fit; a longer line
// is cut mid-line but never between a backslash and the character it escapes.
func splitMessage(text string, limit int) []string {
	if textLen(text) <= limit {
		return []string{text}
	}

	var (
		parts  []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.Trim(cur.String(), "\n"); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
		curLen = 0
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := textLen(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := cutEscaped(line, limit)
			parts = append(parts, head)
			line, n = rest, textLen(rest)
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return parts
}

// cutEscaped splits s after at most limit UTF-16 units, moving a dangling
// escape backslash to the second half.
func cutEscaped(s string, limit int) (string, string) {
	n, idx := 0, 0
	for idx < len(s) {
		r, size := utf8.DecodeRuneInString(s[idx:])
		w := runeUnits(r)
		if n+w > limit {
			break
		}
		n += w
		idx += size
	}
	trailing := 0
	for j := idx - 1; j >= 0 && s[j] == '\\'; j-- {
		trailing++
	}
	if trailing%2 == 1 && idx > 1 {
		idx--
	}
	if idx == 0 {
		_, idx = utf8.DecodeRuneInString(s)
	}
	return s[:idx], s[idx:]
}

// textLen counts s the way the Bot API measures message length.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\", "_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=",
	"|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
