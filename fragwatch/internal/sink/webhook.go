package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/retry"
)

// WebhookConfig configures a JSON webhook sink.
type WebhookConfig struct {
	URL string
	// Secret, when set, signs each body with HMAC-SHA256 in X-Signature-256.
	Secret string
	// Timeout per POST. Default: 10s.
	Timeout time.Duration
	Retry   retry.Policy
}

// Webhook POSTs each payload as JSON. 5xx and transport errors are retried;
// 4xx responses are not.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook returns a webhook sink. client may be nil.
func NewWebhook(cfg WebhookConfig, client *http.Client) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sink: webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.Base <= 0 {
		cfg.Retry.Base = time.Second
	}
	cfg.Retry = retry.New(cfg.Retry)
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{cfg: cfg, client: client}, nil
}

func (w *Webhook) Close() error { return nil }

func (w *Webhook) DeliverPlayer(ctx context.Context, p PlayerPayload) error {
	return w.post(ctx, "player", p)
}

func (w *Webhook) DeliverRanking(ctx context.Context, p RankingPayload) error {
	return w.post(ctx, "ranking", p)
}

func (w *Webhook) post(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(map[string]any{"type": kind, "payload": payload})
	if err != nil {
		return fmt.Errorf("sink: webhook marshal: %w", err)
	}
	sig := w.sign(body)

	err = w.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if sig != "" {
			req.Header.Set("X-Signature-256", "sha256="+sig)
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	})
	if err != nil {
		return &SendError{Sink: "webhook", Cause: err}
	}
	return nil
}

func (w *Webhook) sign(body []byte) string {
	if w.cfg.Secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
