package pipeline

import (
	"context"
	"testing"

	"github.com/healthline/service/types"
)

type stubGraph struct {
	fallback bool
}

func (g stubGraph) fact(kind string) types.Fact {
	source := "graph"
	if g.fallback {
		source = "graph_fallback"
	}
	return types.Fact{Kind: kind, Source: source}
}

func (g stubGraph) RedFlags(ctx context.Context, symptoms []string) []types.Fact {
	return []types.Fact{g.fact("red_flag")}
}
func (g stubGraph) Contraindications(ctx context.Context, medication string, conditions []string) []types.Fact {
	return []types.Fact{g.fact("contraindication")}
}
func (g stubGraph) SafeActions(ctx context.Context, symptom string) []types.Fact {
	return []types.Fact{g.fact("safe_action")}
}
func (g stubGraph) Providers(ctx context.Context, symptom string) []types.Fact {
	return []types.Fact{g.fact("provider")}
}
func (g stubGraph) RelatedSymptoms(ctx context.Context, symptom string) []types.Fact {
	return []types.Fact{g.fact("related_symptom")}
}

func TestGatherFacts_OkWhenGraphHealthy(t *testing.T) {
	res := GatherFacts(context.Background(), stubGraph{}, FactQuery{
		Symptoms:        []string{"fever"},
		CurrentMeds:     []string{"ibuprofen"},
		KnownConditions: []string{"diabetes"},
	})
	if !res.IsOK() {
		t.Fatalf("expected Ok, got status %v reason %q", res.Status, res.Reason)
	}
	if len(res.Value) == 0 {
		t.Fatalf("expected non-empty facts")
	}
}

func TestGatherFacts_DegradesOnFallback(t *testing.T) {
	res := GatherFacts(context.Background(), stubGraph{fallback: true}, FactQuery{
		Symptoms: []string{"fever"},
	})
	if !res.IsDegraded() {
		t.Fatalf("expected Degraded, got status %v", res.Status)
	}
}

func TestGatherFacts_EmptyQueryYieldsNoFacts(t *testing.T) {
	res := GatherFacts(context.Background(), stubGraph{}, FactQuery{})
	if !res.IsOK() || len(res.Value) != 0 {
		t.Fatalf("expected Ok with no facts, got %+v", res)
	}
}
