package notifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"BreakoutSentinel/internal/retry"
)

// DefaultAPIURL is the Telegram Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Notifier delivers operator messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop discards messages when Telegram is not configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	Client   *resty.Client
	Retry    *retry.Policy
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, policy *retry.Policy) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(DefaultAPIURL).
		SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   client,
		Retry:    policy,
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	var errResp apiResponse
	resp, err := t.Client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		SetError(&errResp).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.BotToken))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	if t.Retry == nil {
		return t.Send(ctx, text)
	}
	return t.Retry.Do(ctx, "telegram send", func() error {
		return t.Send(ctx, text)
	})
}

// Notify implements Notifier. Failures are logged, never fatal to trading.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := t.SendWithRetry(ctx, text); err != nil {
		log.Printf("[ERROR] telegram notify: %v", err)
		return err
	}
	return nil
}
