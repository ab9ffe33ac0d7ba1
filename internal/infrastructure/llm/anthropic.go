package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

// MessagesClient captures the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService so tests can pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements GenerationProvider on the Claude Messages API.
type AnthropicProvider struct {
	msg          MessagesClient
	defaultModel string
}

var _ ports.GenerationProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider builds a provider from configuration.
func NewAnthropicProvider(cfg config.AnthropicConfig) *AnthropicProvider {
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicProvider{msg: &client.Messages, defaultModel: cfg.Model}
}

// NewAnthropicProviderWithClient wires an explicit messages client, used by
// tests.
func NewAnthropicProviderWithClient(msg MessagesClient, defaultModel string) *AnthropicProvider {
	return &AnthropicProvider{msg: msg, defaultModel: defaultModel}
}

// Name identifies the provider in routing tables and cost entries.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate issues one Messages.New call and maps the response text and token
// usage back. Failures carry a retryable/fatal classification.
func (p *AnthropicProvider) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return ports.GenerationResult{}, p.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return ports.GenerationResult{
		Text: sb.String(),
		Usage: domain.Usage{
			InputUnits:  msg.Usage.InputTokens,
			OutputUnits: msg.Usage.OutputTokens,
		},
	}, nil
}

func (p *AnthropicProvider) classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		// rate limits, timeouts and server faults are transient; auth,
		// malformed requests and exhausted quota are not
		retryable := apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= 500
		return &domain.ProviderError{Provider: p.Name(), Retryable: retryable, Err: err}
	}

	// transport-level faults are transient unless the caller canceled
	retryable := !errors.Is(err, context.Canceled)
	return &domain.ProviderError{Provider: p.Name(), Retryable: retryable, Err: err}
}
