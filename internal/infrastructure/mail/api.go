package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

// APITransport delivers through a transactional email HTTP API.
type APITransport struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

var _ ports.DeliveryTransport = (*APITransport)(nil)

// NewAPITransport wires endpoint and credentials from configuration.
func NewAPITransport(cfg config.MailAPIConfig) *APITransport {
	return &APITransport{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Name identifies the transport in routing tables and cost entries.
func (t *APITransport) Name() string {
	return "mail-api"
}

// Send posts the digest as one JSON message.
func (t *APITransport) Send(ctx context.Context, d domain.Deliverable) error {
	if t.endpoint == "" || t.apiKey == "" {
		return &domain.ProviderError{
			Provider: t.Name(),
			Err:      fmt.Errorf("mail api transport misconfigured"),
		}
	}
	if len(d.Recipients) == 0 {
		return &domain.ProviderError{
			Provider: t.Name(),
			Err:      fmt.Errorf("no recipients configured"),
		}
	}

	body, err := json.Marshal(map[string]any{
		"from":    t.from,
		"to":      d.Recipients,
		"subject": d.Subject,
		"text":    d.Text,
		"html":    d.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		retryable := !errors.Is(err, context.Canceled)
		return &domain.ProviderError{Provider: t.Name(), Retryable: retryable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return &domain.ProviderError{
			Provider:  t.Name(),
			Retryable: retryable,
			Err:       fmt.Errorf("mail api error %s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}
	return nil
}
