package llm

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

// OpenAIProvider implements GenerationProvider against OpenAI-compatible
// chat-completions endpoints.
type OpenAIProvider struct {
	endpoint     string
	defaultModel string
	apiKey       string
	httpClient   *http.Client
}

var _ ports.GenerationProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider from configuration.
func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{
		endpoint:     cfg.Endpoint,
		defaultModel: cfg.Model,
		apiKey:       cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name identifies the provider in routing tables and cost entries.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate posts one chat-completion request and returns the first choice
// with reported token usage.
func (p *OpenAIProvider) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	if p.apiKey == "" || p.endpoint == "" {
		return ports.GenerationResult{}, &domain.ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("openai provider misconfigured"),
		}
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		retryable := !errors.Is(err, context.Canceled)
		return ports.GenerationResult{}, &domain.ProviderError{Provider: p.Name(), Retryable: retryable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode >= 500
		return ports.GenerationResult{}, &domain.ProviderError{
			Provider:  p.Name(),
			Retryable: retryable,
			Err:       fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.GenerationResult{}, &domain.ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("decode chat response: %w", err),
		}
	}
	if len(parsed.Choices) == 0 {
		return ports.GenerationResult{}, &domain.ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("chat response contained no choices"),
		}
	}

	return ports.GenerationResult{
		Text: parsed.Choices[0].Message.Content,
		Usage: domain.Usage{
			InputUnits:  parsed.Usage.PromptTokens,
			OutputUnits: parsed.Usage.CompletionTokens,
		},
	}, nil
}
