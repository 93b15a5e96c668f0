package notify

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"smtp_port" env:"SMTP_PORT"` // "465" for implicit TLS, otherwise STARTTLS
	Username string `yaml:"username" env:"SMTP_USER"`  // defaults to From
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"FROM_EMAIL"`
	FromName string `yaml:"from_name" env:"FROM_NAME"`
	To       string `yaml:"to" env:"TO_EMAIL"` // comma-separated
}

// Recipients returns the non-blank addresses in To.
func (c EmailConfig) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Validate reports missing settings.
func (c EmailConfig) Validate() error {
	switch {
	case c.SMTPHost == "":
		return fmt.Errorf("email: smtp_host is required")
	case c.From == "":
		return fmt.Errorf("email: from is required")
	case len(c.Recipients()) == 0:
		return fmt.Errorf("email: at least one recipient is required")
	}
	return nil
}

// EmailNotifier sends multipart text and HTML mail over SMTP.
type EmailNotifier struct {
	cfg EmailConfig
	now func() time.Time
}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	return &EmailNotifier{cfg: cfg, now: time.Now}
}

func (e *EmailNotifier) Channel() Channel { return ChannelEmail }

func (e *EmailNotifier) Send(ctx context.Context, msg Message) error {
	recipients := e.cfg.Recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}
	body := buildEmailBody(e.cfg, recipients, msg, e.now())

	addr := net.JoinHostPort(e.cfg.SMTPHost, e.cfg.SMTPPort)
	var client *smtp.Client
	var err error
	if e.cfg.SMTPPort == "465" {
		client, err = dialTLS(ctx, addr, e.cfg.SMTPHost)
	} else {
		client, err = dialSTARTTLS(ctx, addr, e.cfg.SMTPHost)
	}
	if err != nil {
		return fmt.Errorf("SMTP connect failed: %w", err)
	}
	defer client.Close()

	if e.cfg.Password != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}
	if err := client.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, to := range recipients {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("SMTP write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP close data: %w", err)
	}
	return client.Quit()
}

func dialTLS(ctx context.Context, addr, host string) (*smtp.Client, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TLS dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}
	return client, nil
}

func dialSTARTTLS(ctx context.Context, addr, host string) (*smtp.Client, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}
	return client, nil
}

// buildEmailBody renders a multipart/alternative message with a plain text
// part and, when present, an HTML part. Both parts are base64 encoded.
func buildEmailBody(cfg EmailConfig, to []string, msg Message, now time.Time) string {
	boundary := "newsdigest-" + uuid.NewString()
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "News Digest"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s <%s>\r\n", mime.BEncoding.Encode("UTF-8", fromName), cfg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", msg.Title))
	fmt.Fprintf(&sb, "Date: %s\r\n", now.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	writePart(&sb, boundary, "text/plain", msg.Body)
	if msg.HTMLBody != "" {
		writePart(&sb, boundary, "text/html", msg.HTMLBody)
	}
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)
	return sb.String()
}

func writePart(sb *strings.Builder, boundary, contentType, content string) {
	fmt.Fprintf(sb, "--%s\r\n", boundary)
	fmt.Fprintf(sb, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	sb.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	// RFC 2045 limits encoded lines to 76 characters.
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76])
		sb.WriteString("\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	sb.WriteString("\r\n")
}
