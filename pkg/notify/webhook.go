package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// WebhookIssuer is the issuer claim of signed webhook requests.
const WebhookIssuer = "newsdigest"

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	URL     string            `yaml:"url" json:"url" env:"WEBHOOK_URL"`
	Secret  string            `yaml:"secret" json:"-" env:"WEBHOOK_SECRET"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// WebhookClaims are carried by the bearer token of a signed request.
// BodySHA256 binds the token to the exact payload.
type WebhookClaims struct {
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// WebhookNotifier POSTs messages as JSON. With a secret configured each
// request carries an HS256 bearer token the receiver can verify.
type WebhookNotifier struct {
	config WebhookConfig
	http   *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Send sends a message to the webhook URL.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}
	if w.config.Secret != "" {
		token, err := w.sign(body)
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

func (w *WebhookNotifier) sign(body []byte) (string, error) {
	now := w.now()
	claims := &WebhookClaims{
		BodySHA256: bodyDigest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    WebhookIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(w.config.Secret))
}

// VerifyWebhookToken checks a bearer token produced by WebhookNotifier
// against the received body.
func VerifyWebhookToken(secret, tokenString string, body []byte) (*WebhookClaims, error) {
	claims := &WebhookClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(WebhookIssuer))
	if err != nil {
		return nil, err
	}
	if claims.BodySHA256 != bodyDigest(body) {
		return nil, fmt.Errorf("payload digest mismatch")
	}
	return claims, nil
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
