package llmgateway

import (
	"strings"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🧯 降级应答
// =============================================================================

// FallbackAnswer composes a deterministic English answer from retrieved
// chunks and graph facts, for use when both the primary and fallback
// LLM providers have failed. It never calls out to a model, so it
// always succeeds, letting the orchestrator return a Degraded rather
// than a Failed result for the turn.
func FallbackAnswer(question string, chunks []types.RetrievedChunk, facts []types.Fact) (string, []types.Citation) {
	var b strings.Builder
	b.WriteString("I'm unable to reach the language model right now, so here is what I can tell you directly from trusted sources.\n\n")

	wrote := false

	if redFlags := factsOfKind(facts, "red_flag"); len(redFlags) > 0 {
		b.WriteString("Important safety information:\n")
		for _, f := range redFlags {
			b.WriteString("- " + f.Statement + "\n")
		}
		b.WriteString("\n")
		wrote = true
	}

	if len(chunks) > 0 {
		b.WriteString("Related information:\n")
		for _, c := range chunks {
			b.WriteString("- " + c.Chunk + "\n")
		}
		b.WriteString("\n")
		wrote = true
	}

	if otherFacts := factsExcludingKind(facts, "red_flag"); len(otherFacts) > 0 {
		b.WriteString("Other known facts:\n")
		for _, f := range otherFacts {
			b.WriteString("- " + f.Statement + "\n")
		}
		wrote = true
	}

	if !wrote {
		b.WriteString("I don't have enough trusted information on hand to answer this safely. Please consult a healthcare professional.")
	} else {
		b.WriteString("\nThis is general information, not a diagnosis. Please consult a healthcare professional for guidance specific to you.")
	}

	citations := make([]types.Citation, 0, len(chunks))
	for _, c := range chunks {
		citations = append(citations, types.Citation{ChunkID: c.ID, Source: c.Source, Topic: c.Topic})
	}

	return b.String(), citations
}

func factsOfKind(facts []types.Fact, kind string) []types.Fact {
	var out []types.Fact
	for _, f := range facts {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func factsExcludingKind(facts []types.Fact, kind string) []types.Fact {
	var out []types.Fact
	for _, f := range facts {
		if f.Kind != kind {
			out = append(out, f)
		}
	}
	return out
}
