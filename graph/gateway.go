package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🛡️ 图网关门面
// =============================================================================

// Gateway is the single interface the orchestrator sees for graph
// reads. It prefers the Neo4j-backed Driver and falls back to the
// in-memory FallbackGraph transparently — callers never branch on
// which backend actually answered; types.Fact.Source records it.
type Gateway struct {
	driver   *Driver
	fallback *FallbackGraph
	logger   *zap.Logger
}

// NewGateway builds a Gateway. driver may be nil, in which case every
// call is served by the fallback graph (used in tests and when the
// graph store is not configured).
func NewGateway(driver *Driver, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		driver:   driver,
		fallback: NewFallbackGraph(logger),
		logger:   logger.With(zap.String("component", "graph_gateway")),
	}
}

// RedFlags returns red-flag facts for the given symptoms.
func (g *Gateway) RedFlags(ctx context.Context, symptoms []string) []types.Fact {
	if g.driver != nil {
		if facts, err := g.queryRedFlags(ctx, symptoms); err == nil {
			return facts
		} else {
			g.logger.Warn("graph store unavailable, using fallback", zap.Error(err))
		}
	}
	return g.fallback.RedFlags(symptoms)
}

// Contraindications returns contraindication facts for a medication.
func (g *Gateway) Contraindications(ctx context.Context, medication string, conditions []string) []types.Fact {
	if g.driver != nil {
		if facts, err := g.queryContraindications(ctx, medication, conditions); err == nil {
			return facts
		} else {
			g.logger.Warn("graph store unavailable, using fallback", zap.Error(err))
		}
	}
	return g.fallback.Contraindications(medication, conditions)
}

// SafeActions returns non-prescriptive action facts for a symptom.
func (g *Gateway) SafeActions(ctx context.Context, symptom string) []types.Fact {
	if g.driver != nil {
		if facts, err := g.querySafeActions(ctx, symptom); err == nil {
			return facts
		} else {
			g.logger.Warn("graph store unavailable, using fallback", zap.Error(err))
		}
	}
	return g.fallback.SafeActions(symptom)
}

// Providers returns provider-type recommendation facts for a symptom.
func (g *Gateway) Providers(ctx context.Context, symptom string) []types.Fact {
	if g.driver != nil {
		if facts, err := g.queryProviders(ctx, symptom); err == nil {
			return facts
		} else {
			g.logger.Warn("graph store unavailable, using fallback", zap.Error(err))
		}
	}
	return g.fallback.Providers(symptom)
}

// RelatedSymptoms returns symptoms that co-occur with the given one.
func (g *Gateway) RelatedSymptoms(ctx context.Context, symptom string) []types.Fact {
	if g.driver != nil {
		if facts, err := g.queryRelatedSymptoms(ctx, symptom); err == nil {
			return facts
		} else {
			g.logger.Warn("graph store unavailable, using fallback", zap.Error(err))
		}
	}
	return g.fallback.RelatedSymptoms(symptom)
}

// Close releases the underlying Neo4j driver, if any.
func (g *Gateway) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}
