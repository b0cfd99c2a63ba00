package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🔎 五类只读查询
// =============================================================================

func recordToFact(kind string, rec *neo4j.Record) types.Fact {
	f := types.Fact{Kind: kind, Source: "graph"}
	if v, ok := rec.Get("subject"); ok {
		f.Subject, _ = v.(string)
	}
	if v, ok := rec.Get("statement"); ok {
		f.Statement, _ = v.(string)
	}
	if v, ok := rec.Get("severity"); ok {
		f.Severity, _ = v.(string)
	}
	return f
}

func runFactQuery(ctx context.Context, d *Driver, kind, cypher string, params map[string]any) ([]types.Fact, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.cfg.Database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	raw, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransactionWork) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var facts []types.Fact
		for res.Next(ctx) {
			facts = append(facts, recordToFact(kind, res.Record()))
		}
		return facts, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph query %q failed: %w", kind, err)
	}
	facts, _ := raw.([]types.Fact)
	return facts, nil
}

// RedFlags finds conditions reachable from the given symptoms via a
// RED_FLAG relationship.
func (g *Gateway) queryRedFlags(ctx context.Context, symptoms []string) ([]types.Fact, error) {
	cypher := `
MATCH (s:Symptom)-[:RED_FLAG]->(c:Condition)
WHERE s.name IN $symptoms
RETURN s.name AS subject,
       c.name + ' may indicate a serious condition requiring urgent evaluation' AS statement,
       'high' AS severity`
	return runFactQuery(ctx, g.driver, "red_flag", cypher, map[string]any{"symptoms": symptoms})
}

// Contraindications finds medications/conditions that conflict with
// the given medication.
func (g *Gateway) queryContraindications(ctx context.Context, medication string, conditions []string) ([]types.Fact, error) {
	cypher := `
MATCH (m:Medication {name: $medication})-[:CONTRAINDICATES]->(other)
RETURN m.name AS subject,
       m.name + ' should not usually be combined with ' + other.name + ' without medical advice' AS statement,
       'medium' AS severity`
	return runFactQuery(ctx, g.driver, "contraindication", cypher, map[string]any{
		"medication": medication,
		"conditions": conditions,
	})
}

// SafeActions finds non-prescriptive actions linked to a symptom.
func (g *Gateway) querySafeActions(ctx context.Context, symptom string) ([]types.Fact, error) {
	cypher := `
MATCH (s:Symptom {name: $symptom})-[:SAFE_ACTION]->(a:Action)
RETURN s.name AS subject, a.name AS statement, '' AS severity`
	return runFactQuery(ctx, g.driver, "safe_action", cypher, map[string]any{"symptom": symptom})
}

// Providers finds provider types associated with a symptom.
func (g *Gateway) queryProviders(ctx context.Context, symptom string) ([]types.Fact, error) {
	cypher := `
MATCH (s:Symptom {name: $symptom})-[:TREATED_BY]->(p:Provider)
RETURN s.name AS subject, p.name AS statement, '' AS severity`
	return runFactQuery(ctx, g.driver, "provider", cypher, map[string]any{"symptom": symptom})
}

// RelatedSymptoms finds symptoms that co-occur with the given symptom.
func (g *Gateway) queryRelatedSymptoms(ctx context.Context, symptom string) ([]types.Fact, error) {
	cypher := `
MATCH (s:Symptom {name: $symptom})-[:RELATED_TO]->(o:Symptom)
RETURN s.name AS subject, o.name AS statement, '' AS severity`
	return runFactQuery(ctx, g.driver, "related_symptom", cypher, map[string]any{"symptom": symptom})
}
