package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewOpenAIProvider(config.OpenAIConfig{
		Endpoint: server.URL,
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
	})
	p.httpClient = server.Client()
	return p
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "generated article"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 340}
		}`))
	})

	res, err := p.Generate(context.Background(), ports.GenerationRequest{
		System:    "You write articles.",
		Prompt:    "Write about fusion.",
		MaxTokens: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated article", res.Text)
	assert.Equal(t, int64(120), res.Usage.InputUnits)
	assert.Equal(t, int64(340), res.Usage.OutputUnits)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
}

func TestOpenAIGenerateRateLimitIsRetryable(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := p.Generate(context.Background(), ports.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, "openai", domain.ProviderName(err))
}

func TestOpenAIGenerateAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := p.Generate(context.Background(), ports.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

func TestOpenAIGenerateMisconfigured(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(config.OpenAIConfig{})
	_, err := p.Generate(context.Background(), ports.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [], "usage": {}}`))
	})

	_, err := p.Generate(context.Background(), ports.GenerationRequest{Prompt: "x"})
	assert.Error(t, err)
}
