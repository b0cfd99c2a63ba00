// Package graph implements the Graph Gateway: five read-only queries
// over a labeled-property knowledge graph (red flags, contraindications,
// safe actions, provider recommendations, related symptoms), backed by
// Neo4j with a transparent in-memory fallback when the graph store is
// unavailable.
package graph

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🕸️ 内存回退图
// =============================================================================

// node and edge mirror rag.Node/rag.Edge but are scoped to the five
// health-domain node kinds this gateway understands.
type node struct {
	id         string
	kind       string // "symptom", "condition", "medication", "action", "provider"
	label      string
	properties map[string]any
}

type edge struct {
	id     string
	source string
	target string
	kind   string // "red_flag", "contraindicates", "safe_action", "treated_by", "related_to"
	weight float64
}

// FallbackGraph is an in-memory labeled-property graph used when the
// Neo4j backend is unreachable. It is adapted from the generic
// document/entity KnowledgeGraph used elsewhere in this codebase for
// retrieval-augmented generation, narrowed to health-domain nodes and
// seeded with a small curated dataset so degraded answers still carry
// real clinical signal rather than going silent.
type FallbackGraph struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	edges    map[string]*edge
	outEdges map[string][]string
	inEdges  map[string][]string
	logger   *zap.Logger
}

// NewFallbackGraph builds and seeds the fallback graph.
func NewFallbackGraph(logger *zap.Logger) *FallbackGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &FallbackGraph{
		nodes:    make(map[string]*node),
		edges:    make(map[string]*edge),
		outEdges: make(map[string][]string),
		inEdges:  make(map[string][]string),
		logger:   logger.With(zap.String("component", "graph_fallback")),
	}
	g.seed()
	return g
}

func (g *FallbackGraph) addNode(id, kind, label string, props map[string]any) {
	g.nodes[id] = &node{id: id, kind: kind, label: label, properties: props}
}

func (g *FallbackGraph) addEdge(source, target, kind string, weight float64) {
	id := fmt.Sprintf("%s-%s-%s", source, kind, target)
	g.edges[id] = &edge{id: id, source: source, target: target, kind: kind, weight: weight}
	g.outEdges[source] = append(g.outEdges[source], id)
	g.inEdges[target] = append(g.inEdges[target], id)
}

// seed installs a small curated set of symptom/condition/medication/
// action/provider facts so the fallback graph is useful on its own,
// not merely a placeholder.
func (g *FallbackGraph) seed() {
	g.addNode("sym:chest_pain", "symptom", "chest pain", nil)
	g.addNode("sym:shortness_of_breath", "symptom", "shortness of breath", nil)
	g.addNode("sym:severe_headache", "symptom", "sudden severe headache", nil)
	g.addNode("sym:high_fever", "symptom", "high fever", nil)
	g.addNode("sym:abdominal_pain", "symptom", "abdominal pain", nil)

	g.addNode("cond:heart_attack", "condition", "myocardial infarction", nil)
	g.addNode("cond:stroke", "condition", "stroke", nil)
	g.addNode("cond:appendicitis", "condition", "appendicitis", nil)

	g.addNode("act:call_emergency", "action", "call emergency services immediately", nil)
	g.addNode("act:seek_urgent_care", "action", "seek urgent care within hours", nil)
	g.addNode("act:rest_and_hydrate", "action", "rest and stay hydrated", nil)
	g.addNode("act:monitor_temperature", "action", "monitor temperature every few hours", nil)

	g.addNode("prov:cardiology", "provider", "cardiologist", nil)
	g.addNode("prov:emergency", "provider", "emergency department", nil)
	g.addNode("prov:primary_care", "provider", "primary care physician", nil)

	g.addNode("med:nsaid", "medication", "NSAIDs", nil)
	g.addNode("med:anticoagulant", "medication", "anticoagulants", nil)
	g.addNode("med:warfarin", "medication", "warfarin", nil)

	g.addEdge("sym:chest_pain", "cond:heart_attack", "red_flag", 0.9)
	g.addEdge("sym:shortness_of_breath", "cond:heart_attack", "red_flag", 0.7)
	g.addEdge("sym:severe_headache", "cond:stroke", "red_flag", 0.9)
	g.addEdge("sym:abdominal_pain", "cond:appendicitis", "red_flag", 0.6)

	g.addEdge("cond:heart_attack", "act:call_emergency", "safe_action", 1.0)
	g.addEdge("cond:stroke", "act:call_emergency", "safe_action", 1.0)
	g.addEdge("cond:appendicitis", "act:seek_urgent_care", "safe_action", 0.9)
	g.addEdge("sym:high_fever", "act:monitor_temperature", "safe_action", 0.6)
	g.addEdge("sym:high_fever", "act:rest_and_hydrate", "safe_action", 0.5)

	g.addEdge("cond:heart_attack", "prov:cardiology", "treated_by", 0.8)
	g.addEdge("cond:heart_attack", "prov:emergency", "treated_by", 1.0)
	g.addEdge("cond:stroke", "prov:emergency", "treated_by", 1.0)
	g.addEdge("sym:high_fever", "prov:primary_care", "treated_by", 0.6)

	g.addEdge("med:nsaid", "med:anticoagulant", "contraindicates", 0.7)
	g.addEdge("med:warfarin", "med:nsaid", "contraindicates", 0.8)

	g.addEdge("sym:chest_pain", "sym:shortness_of_breath", "related_to", 0.5)
	g.addEdge("sym:severe_headache", "sym:high_fever", "related_to", 0.3)
}

func (g *FallbackGraph) findByLabel(kind, label string) *node {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, n := range g.nodes {
		if n.kind != kind {
			continue
		}
		if strings.Contains(strings.ToLower(n.label), label) || strings.Contains(label, strings.ToLower(n.label)) {
			return n
		}
	}
	return nil
}

func (g *FallbackGraph) neighborsByEdgeKind(nodeID, edgeKind string) []*node {
	var out []*node
	for _, eid := range g.outEdges[nodeID] {
		e := g.edges[eid]
		if e.kind != edgeKind {
			continue
		}
		if n, ok := g.nodes[e.target]; ok {
			out = append(out, n)
		}
	}
	return out
}

// RedFlags returns facts for symptoms that match a known red-flag
// condition pattern.
func (g *FallbackGraph) RedFlags(symptoms []string) []types.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var facts []types.Fact
	for _, s := range symptoms {
		sn := g.findByLabel("symptom", s)
		if sn == nil {
			continue
		}
		for _, cond := range g.neighborsByEdgeKind(sn.id, "red_flag") {
			facts = append(facts, types.Fact{
				Kind:      "red_flag",
				Subject:   sn.label,
				Statement: fmt.Sprintf("%s can be an early sign of %s and warrants urgent evaluation", sn.label, cond.label),
				Severity:  "high",
				Source:    "graph_fallback",
			})
		}
	}
	return facts
}

// Contraindications returns facts where medication interacts badly
// with any of the given conditions or other medications.
func (g *FallbackGraph) Contraindications(medication string, conditions []string) []types.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	mn := g.findByLabel("medication", medication)
	if mn == nil {
		return nil
	}
	var facts []types.Fact
	for _, other := range g.neighborsByEdgeKind(mn.id, "contraindicates") {
		facts = append(facts, types.Fact{
			Kind:      "contraindication",
			Subject:   mn.label,
			Statement: fmt.Sprintf("%s should not usually be combined with %s without medical advice", mn.label, other.label),
			Severity:  "medium",
			Source:    "graph_fallback",
		})
	}
	return facts
}

// SafeActions returns recommended non-prescriptive actions for symptom.
func (g *FallbackGraph) SafeActions(symptom string) []types.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sn := g.findByLabel("symptom", symptom)
	if sn == nil {
		return nil
	}
	var facts []types.Fact
	seen := map[string]bool{}
	for _, action := range g.neighborsByEdgeKind(sn.id, "safe_action") {
		facts = append(facts, types.Fact{Kind: "safe_action", Subject: sn.label, Statement: action.label, Source: "graph_fallback"})
		seen[action.id] = true
	}
	for _, cond := range g.neighborsByEdgeKind(sn.id, "red_flag") {
		for _, action := range g.neighborsByEdgeKind(cond.id, "safe_action") {
			if seen[action.id] {
				continue
			}
			facts = append(facts, types.Fact{Kind: "safe_action", Subject: cond.label, Statement: action.label, Severity: "high", Source: "graph_fallback"})
			seen[action.id] = true
		}
	}
	return facts
}

// Providers returns provider-type recommendations for a symptom.
func (g *FallbackGraph) Providers(symptom string) []types.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sn := g.findByLabel("symptom", symptom)
	if sn == nil {
		return nil
	}
	var facts []types.Fact
	for _, cond := range g.neighborsByEdgeKind(sn.id, "red_flag") {
		for _, prov := range g.neighborsByEdgeKind(cond.id, "treated_by") {
			facts = append(facts, types.Fact{Kind: "provider", Subject: sn.label, Statement: prov.label, Source: "graph_fallback"})
		}
	}
	for _, prov := range g.neighborsByEdgeKind(sn.id, "treated_by") {
		facts = append(facts, types.Fact{Kind: "provider", Subject: sn.label, Statement: prov.label, Source: "graph_fallback"})
	}
	return facts
}

// RelatedSymptoms returns symptoms that co-occur with symptom.
func (g *FallbackGraph) RelatedSymptoms(symptom string) []types.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sn := g.findByLabel("symptom", symptom)
	if sn == nil {
		return nil
	}
	var facts []types.Fact
	for _, related := range g.neighborsByEdgeKind(sn.id, "related_to") {
		facts = append(facts, types.Fact{Kind: "related_symptom", Subject: sn.label, Statement: related.label, Source: "graph_fallback"})
	}
	return facts
}
