package integrations

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hugh/issueflow/internal/database/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body when the
// integration has a secret configured.
const SignatureHeader = "X-IssueFlow-Signature"

// Deliverer posts JSON payloads to webhook-style integrations
type Deliverer struct {
	logger *slog.Logger
	client *http.Client
}

// DeliveryConfig configures outbound delivery
type DeliveryConfig struct {
	Timeout        time.Duration
	FollowRedirect bool
}

// DeliveryResult describes one delivery attempt
type DeliveryResult struct {
	Delivered      bool   `json:"delivered"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

func NewDeliverer(logger *slog.Logger, cfg *DeliveryConfig) *Deliverer {
	timeout := 10 * time.Second
	followRedirect := false

	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		followRedirect = cfg.FollowRedirect
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 10,
	}

	var checkRedirect func(req *http.Request, via []*http.Request) error
	if !followRedirect {
		checkRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Deliverer{
		logger: logger,
		client: &http.Client{
			Transport:     transport,
			Timeout:       timeout,
			CheckRedirect: checkRedirect,
		},
	}
}

// Post sends payload as JSON to url. A non-2xx answer is reported in the
// result, not as an error; errors are reserved for payloads that cannot be
// encoded.
func (d *Deliverer) Post(ctx context.Context, url string, payload any, secret string) (*DeliveryResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryResult{Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "IssueFlow-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, secret))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		d.logger.Warn("integration delivery failed", "error", err)
		return &DeliveryResult{ResponseTimeMs: elapsed, Error: err.Error()}, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return &DeliveryResult{
		Delivered:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// testPayload builds the message a test delivery sends for the integration
// type, along with its target URL and signing secret.
func testPayload(in *models.Integration, cfg map[string]any, now time.Time) (url string, payload any, secret string, err error) {
	str := func(k string) string {
		v, _ := cfg[k].(string)
		return v
	}

	switch in.Type {
	case models.IntegrationSlack:
		return str("webhook_url"), map[string]string{
			"text": fmt.Sprintf("IssueFlow test message for %q. Feedback notifications will arrive here.", in.Name),
		}, "", nil
	case models.IntegrationWebhook:
		return str("url"), map[string]any{
			"event":          "integration.test",
			"integration_id": in.ID,
			"name":           in.Name,
			"sent_at":        now.UTC().Format(time.RFC3339),
		}, str("secret"), nil
	}
	return "", nil, "", ErrTestUnsupported
}
