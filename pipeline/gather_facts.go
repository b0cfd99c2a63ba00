package pipeline

import (
	"context"

	"github.com/healthline/service/types"
)

// FactGraph is the subset of graph.Gateway this stage needs. Every
// method already has its own Neo4j-with-fallback resilience baked in
// (see graph.Gateway), so none of them return an error here — a
// backend outage shows up as Source == "graph_fallback" on the
// returned facts, not as a stage failure.
type FactGraph interface {
	RedFlags(ctx context.Context, symptoms []string) []types.Fact
	Contraindications(ctx context.Context, medication string, conditions []string) []types.Fact
	SafeActions(ctx context.Context, symptom string) []types.Fact
	Providers(ctx context.Context, symptom string) []types.Fact
	RelatedSymptoms(ctx context.Context, symptom string) []types.Fact
}

// FactQuery describes what to ask the fact graph for a single turn,
// derived from the user's question and health profile.
type FactQuery struct {
	Symptoms         []string
	CurrentMeds      []string
	KnownConditions  []string
}

// GatherFacts collects the structured facts relevant to the turn:
// red flags and safe actions for each mentioned symptom, provider
// recommendations, related symptoms, and medication contraindications
// against the customer's known conditions.
func GatherFacts(ctx context.Context, g FactGraph, q FactQuery) Result[[]types.Fact] {
	var facts []types.Fact
	degraded := false

	if len(q.Symptoms) > 0 {
		redFlags := g.RedFlags(ctx, q.Symptoms)
		facts = append(facts, redFlags...)
		degraded = degraded || anyFallback(redFlags)

		for _, s := range q.Symptoms {
			safe := g.SafeActions(ctx, s)
			facts = append(facts, safe...)
			degraded = degraded || anyFallback(safe)

			providers := g.Providers(ctx, s)
			facts = append(facts, providers...)
			degraded = degraded || anyFallback(providers)

			related := g.RelatedSymptoms(ctx, s)
			facts = append(facts, related...)
			degraded = degraded || anyFallback(related)
		}
	}

	for _, med := range q.CurrentMeds {
		contraindications := g.Contraindications(ctx, med, q.KnownConditions)
		facts = append(facts, contraindications...)
		degraded = degraded || anyFallback(contraindications)
	}

	if degraded {
		return Degraded(facts, "graph_backend_unavailable")
	}
	return Ok(facts)
}

func anyFallback(facts []types.Fact) bool {
	for _, f := range facts {
		if f.Source == "graph_fallback" {
			return true
		}
	}
	return false
}
