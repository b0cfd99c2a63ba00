package llmgateway

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/healthline/service/llm"
)

// fakeEmbeddingProvider stubs llm.EmbeddingProvider for Embed tests.
type fakeEmbeddingProvider struct {
	fakeProvider
	vectors [][]float64
	failErr error
}

func (f *fakeEmbeddingProvider) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	data := make([]llm.Embedding, len(f.vectors))
	for i, v := range f.vectors {
		data[i] = llm.Embedding{Index: i, Embedding: v}
	}
	return &llm.EmbeddingResponse{Data: data}, nil
}

func TestGateway_Embed_UsesProviderWhenAvailable(t *testing.T) {
	g := &Gateway{
		embedder: &fakeEmbeddingProvider{vectors: [][]float64{{0.1, 0.2, 0.3}}},
		logger:   zap.NewNop(),
	}

	vec, err := g.Embed(context.Background(), "chest pain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != float32(0.1) {
		t.Errorf("got %v, want [0.1 0.2 0.3]", vec)
	}
}

func TestGateway_Embed_FallsBackToHashWhenNoEmbedder(t *testing.T) {
	g := &Gateway{logger: zap.NewNop()}

	vec, err := g.Embed(context.Background(), "fever and cough")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("expected 384-dim fallback vector, got %d", len(vec))
	}
}

func TestHashEmbedding_Deterministic(t *testing.T) {
	a := hashEmbedding("same text", 64)
	b := hashEmbedding("same text", 64)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("hashEmbedding not deterministic at index %d: %v vs %v", i, a, b)
		}
	}
}

func TestHashEmbedding_DiffersForDifferentText(t *testing.T) {
	a := hashEmbedding("headache", 64)
	b := hashEmbedding("broken arm", 64)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different texts to hash to different vectors")
	}
}
