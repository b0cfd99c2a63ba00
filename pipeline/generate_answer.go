package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/healthline/service/llm"
	"github.com/healthline/service/types"
)

// AnswerGenerator is the subset of llmgateway.Gateway the generation
// stage needs.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact) (string, []types.Citation, string, error)
	GenerateAnswerStream(ctx context.Context, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact) (<-chan llm.StreamChunk, string, error)
}

// Answer is the output of the generate_answer stage.
type Answer struct {
	Text      string
	Citations []types.Citation
	Provider  string
}

// GenerateAnswer produces the grounded English answer. On failure of
// both LLM legs it degrades to a deterministic fallback composed
// directly from the gathered facts and retrieved chunks, per the
// failure semantics of the language-model gateway: a turn should
// always produce something usable for the user.
func GenerateAnswer(ctx context.Context, gen AnswerGenerator, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact, fallback func(string, []types.RetrievedChunk, []types.Fact) (string, []types.Citation), logger *zap.Logger) Result[Answer] {
	text, citations, provider, err := gen.GenerateAnswer(ctx, question, history, chunks, facts)
	if err != nil {
		logger.Warn("answer generation failed, using deterministic fallback", zap.Error(err))
		fbText, fbCitations := fallback(question, chunks, facts)
		return Degraded(Answer{Text: fbText, Citations: fbCitations}, "llm_unavailable: "+err.Error())
	}

	return Ok(Answer{Text: text, Citations: citations, Provider: provider})
}

// GenerateAnswerStream opens a streaming answer; there is no
// deterministic-fallback path for the streaming leg since a channel of
// chunks can't be composed after the fact — a stream failure is
// surfaced to the caller to fall back to the unary path.
func GenerateAnswerStream(ctx context.Context, gen AnswerGenerator, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact) (<-chan llm.StreamChunk, string, error) {
	return gen.GenerateAnswerStream(ctx, question, history, chunks, facts)
}
