package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/healthline/service/types"
)

// ContextRetriever is the subset of vector.Retriever this stage needs.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]types.RetrievedChunk, error)
}

// RetrieveContext fetches the top-k content chunks most relevant to
// the (possibly follow-up-enhanced) question. A retrieval failure
// degrades to an empty chunk set — generate_answer still has the
// gathered facts to ground on.
func RetrieveContext(ctx context.Context, r ContextRetriever, query string, k int, logger *zap.Logger) Result[[]types.RetrievedChunk] {
	chunks, err := r.Retrieve(ctx, query, k)
	if err != nil {
		logger.Warn("context retrieval failed", zap.Error(err))
		return Degraded[[]types.RetrievedChunk](nil, "retrieval_failed: "+err.Error())
	}
	return Ok(chunks)
}
