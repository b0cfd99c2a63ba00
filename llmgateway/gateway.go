// Package llmgateway implements the Language-Model Gateway: a
// primary/fallback provider pair behind a single resilient interface,
// plus the specialized helpers the pipeline stages call
// (detect_language, translate, translate_back, generate_answer,
// generate_answer_stream).
package llmgateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/healthline/service/llm"
	"github.com/healthline/service/llm/circuitbreaker"
	"github.com/healthline/service/llm/idempotency"
	"github.com/healthline/service/llm/providers"
	"github.com/healthline/service/llm/providers/openai"
	"github.com/healthline/service/llm/providers/openaicompat"
	"github.com/healthline/service/llm/retry"
)

// =============================================================================
// 🤖 语言模型网关
// =============================================================================

// ProviderConfig configures one leg (primary or fallback) of the
// gateway. Both legs are OpenAI-compatible endpoints: the teacher's
// `llm/providers/anthropic` package in this tree ships only protocol
// documentation (doc.go) with no client implementation, so rather than
// write an ungrounded Anthropic wire client the fallback leg is a
// second independently-configured OpenAI-compatible endpoint, exactly
// like the primary.
type ProviderConfig struct {
	Name    string `yaml:"name" json:"name"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
}

// Config configures the gateway's primary/fallback pair and resilience
// policy.
type Config struct {
	Primary  ProviderConfig `yaml:"primary" json:"primary"`
	Fallback ProviderConfig `yaml:"fallback" json:"fallback"`
}

// Gateway is the primary/fallback state machine the pipeline's
// generation stages call through.
type Gateway struct {
	primary  llm.Provider
	fallback llm.Provider
	embedder llm.EmbeddingProvider
	logger   *zap.Logger
}

// New builds a resilient Gateway. Each leg is wrapped in retry +
// circuit breaker + idempotency via the teacher's ResilientProvider
// decorator, so a flaky primary degrades gracefully to the fallback
// instead of failing the whole turn.
func New(cfg Config, logger *zap.Logger) *Gateway {
	primaryRaw := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.Primary.APIKey,
			BaseURL: cfg.Primary.BaseURL,
			Model:   cfg.Primary.Model,
		},
	}, logger)

	fallbackRaw := openaicompat.New(openaicompat.Config{
		ProviderName: cfg.Fallback.Name,
		APIKey:       cfg.Fallback.APIKey,
		BaseURL:      cfg.Fallback.BaseURL,
		DefaultModel: cfg.Fallback.Model,
	}, logger)

	idemMgr := idempotency.NewMemoryManager(logger)

	primary := llm.WrapProviderWithResilience(
		primaryRaw,
		retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger),
		idemMgr,
		circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger),
		logger,
	)
	fallback := llm.WrapProviderWithResilience(
		fallbackRaw,
		retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger),
		idemMgr,
		circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger),
		logger,
	)

	var embedder llm.EmbeddingProvider
	if e, ok := primaryRaw.(llm.EmbeddingProvider); ok {
		embedder = e
	}

	return &Gateway{
		primary:  primary,
		fallback: fallback,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "llm_gateway")),
	}
}

// Complete tries the primary provider, falling back to the fallback
// provider on any error (the circuit breaker wrapped around each leg
// already shields the actual upstream call; this is the outer
// primary-to-fallback failover spec.md §4.6/§4.8 describes).
func (g *Gateway) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, string, error) {
	resp, err := g.primary.Completion(ctx, req)
	if err == nil {
		return resp, g.primary.Name(), nil
	}
	g.logger.Warn("primary provider failed, trying fallback", zap.Error(err))

	resp, fbErr := g.fallback.Completion(ctx, req)
	if fbErr == nil {
		return resp, g.fallback.Name(), nil
	}

	return nil, "", fmt.Errorf("both llm providers failed: primary=%v fallback=%v", err, fbErr)
}

// Stream tries the primary provider's streaming completion, falling
// back to the fallback provider if the primary fails before producing
// a single chunk. A primary that fails mid-stream is not retried —
// the teacher's own Stream() contract is "no retry, no idempotency"
// since SSE output can't be safely replayed.
func (g *Gateway) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, string, error) {
	ch, err := g.primary.Stream(ctx, req)
	if err == nil {
		return ch, g.primary.Name(), nil
	}
	g.logger.Warn("primary stream failed, trying fallback", zap.Error(err))

	ch, fbErr := g.fallback.Stream(ctx, req)
	if fbErr == nil {
		return ch, g.fallback.Name(), nil
	}

	return nil, "", fmt.Errorf("both llm providers failed to stream: primary=%v fallback=%v", err, fbErr)
}
