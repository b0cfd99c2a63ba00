package llmgateway

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/healthline/service/llm"
)

// =============================================================================
// 🧬 嵌入适配器
// =============================================================================

// embeddingModel is used for both the index-time and query-time calls so
// the vector index never mixes embeddings from two different models.
const embeddingModel = "text-embedding-3-small"

// Embed satisfies vector.Embedder. It prefers the primary provider's
// native embedding endpoint and falls back to a deterministic
// hash-based vector when no provider in the pair exposes one, so the
// retriever keeps working (with degraded recall) rather than failing
// outright.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return hashEmbedding(text, 384), nil
	}

	resp, err := g.embedder.CreateEmbedding(ctx, &llm.EmbeddingRequest{
		Model: embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// hashEmbedding derives a stable pseudo-embedding from FNV hashes of
// word shingles. It preserves no real semantic structure, only
// deterministic near-duplicate detection, which is enough to keep the
// fallback path from crashing the pipeline when no embedding model is
// configured.
func hashEmbedding(text string, dims int) []float32 {
	vec := make([]float32, dims)
	h := fnv.New32a()
	for i := 0; i < len(text); i++ {
		h.Write([]byte{text[i]})
		vec[int(h.Sum32())%dims] += 1
	}
	return vec
}
