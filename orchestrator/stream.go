package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/healthline/service/llmgateway"
	"github.com/healthline/service/pipeline"
	"github.com/healthline/service/safety"
	"github.com/healthline/service/types"
	"github.com/healthline/service/vector"
)

// =============================================================================
// 📡 流式编排
// =============================================================================

// StreamEvent is one server-sent event the HTTP handler writes as
// `data: <json>\n\n`. Type is one of "chunk", "translated", "done",
// or "error".
type StreamEvent struct {
	Type      string           `json:"type"`
	Content   string           `json:"content,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	Route     pipeline.Route   `json:"route,omitempty"`
	Facts     []types.Fact     `json:"facts,omitempty"`
	Citations []types.Citation `json:"citations,omitempty"`
	Safety    types.SafetyResult `json:"safety,omitempty"`
	Metadata  *types.ResponseMetadata `json:"metadata,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ChatStream runs the pipeline through generate_answer in streaming
// mode, invoking emit for every frame. The done event is always the
// last one emitted and carries the complete answer — see
// spec.md §5's response-emission ordering guarantee. emit errors
// (e.g. a disconnected client) abort the stream; the caller's ctx
// cancellation is expected to have already stopped the upstream LLM
// call in that case.
func (o *Orchestrator) ChatStream(ctx context.Context, req ChatRequest, emit func(StreamEvent) error) error {
	turnStart := time.Now()
	var timings types.Timings

	sessionID, err := o.ensureSession(ctx, req.CustomerID, req.SessionID)
	if err != nil {
		return err
	}

	history := o.fetchHistory(ctx, sessionID)
	historyMessages := formatHistory(history)

	t0 := time.Now()
	lang := pipeline.DetectLanguage(ctx, o.llm, req.Text, o.logger)
	timings.DetectLanguageMS = time.Since(t0).Milliseconds()
	translationSkipped := lang.Value.Code == "en"

	t0 = time.Now()
	processed := pipeline.TranslateToEnglish(ctx, o.llm, req.Text, lang.Value.Code, o.logger)
	if !translationSkipped {
		timings.TranslateInMS = time.Since(t0).Milliseconds()
	}

	t0 = time.Now()
	safetyResult := pipeline.SafetyScan(safety.Scan, processed.Value)
	timings.SafetyScanMS = time.Since(t0).Milliseconds()

	symptoms := pipeline.ExtractSymptoms(processed.Value)
	conditions := pipeline.MergeUnique(req.Profile.KnownConditions, pipeline.ExtractConditions(processed.Value))

	route := pipeline.RouteVector
	if pipeline.IsGraphIntent(processed.Value) || safetyResult.Value.Flagged || len(symptoms) > 0 {
		route = pipeline.RouteGraph
	}

	k := 4
	if route == pipeline.RouteGraph {
		k = 3
	}
	enhancedQuery := vector.Enhance(processed.Value, history)

	var facts []types.Fact
	if route == pipeline.RouteGraph {
		facts = pipeline.GatherFacts(ctx, o.graph, pipeline.FactQuery{
			Symptoms:        symptoms,
			CurrentMeds:     req.Profile.CurrentMeds,
			KnownConditions: conditions,
		}).Value
	}
	chunks := pipeline.RetrieveContext(ctx, o.vector, enhancedQuery, k, o.logger).Value

	t0 = time.Now()
	streamCh, _, err := pipeline.GenerateAnswerStream(ctx, o.llm, processed.Value, historyMessages, chunks, facts)
	if err != nil {
		o.logger.Warn("stream generation failed, falling back to deterministic answer", zap.Error(err))
		fbText, fbCitations := llmgateway.FallbackAnswer(processed.Value, chunks, facts)
		return o.finishStream(ctx, emit, sessionID, req.CustomerID, req.Text, fbText, fbCitations, route, facts, safetyResult.Value, lang.Value.Code, translationSkipped, &timings, turnStart, true, "llm_unavailable")
	}

	var b strings.Builder
	for chunk := range streamCh {
		delta := chunk.Delta.Content
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if emitErr := emit(StreamEvent{Type: "chunk", Content: delta}); emitErr != nil {
			return emitErr
		}
	}
	timings.GenerateMS = time.Since(t0).Milliseconds()

	citations := make([]types.Citation, 0, len(chunks))
	for _, c := range chunks {
		citations = append(citations, types.Citation{ChunkID: c.ID, Source: c.Source, Topic: c.Topic})
	}

	return o.finishStream(ctx, emit, sessionID, req.CustomerID, req.Text, b.String(), citations, route, facts, safetyResult.Value, lang.Value.Code, translationSkipped, &timings, turnStart, false, "")
}

// finishStream applies translate-back and the disclaimer, emits the
// "translated" event (when applicable) and the terminal "done" event,
// and schedules background persistence — the tail shared by both the
// normal streaming path and the deterministic-fallback path.
func (o *Orchestrator) finishStream(ctx context.Context, emit func(StreamEvent) error, sessionID, customerID, userText, englishAnswer string, citations []types.Citation, route pipeline.Route, facts []types.Fact, safetyRes types.SafetyResult, lang string, translationSkipped bool, timings *types.Timings, turnStart time.Time, degraded bool, degradedReason string) error {
	finalAnswer := englishAnswer

	if !translationSkipped {
		t0 := time.Now()
		back := pipeline.TranslateBack(ctx, o.llm, englishAnswer, lang, o.logger)
		timings.TranslateOutMS = time.Since(t0).Milliseconds()
		finalAnswer = back.Value
		degraded = degraded || back.IsDegraded()

		if err := emit(StreamEvent{Type: "translated", Content: finalAnswer}); err != nil {
			return err
		}
	}

	redFlag := safetyRes.Flagged && safetyRes.Category == "red_flag"
	if !redFlag {
		finalAnswer += pipeline.LocalizedDisclaimer(lang)
	}

	timings.TotalMS = time.Since(turnStart).Milliseconds()

	metadata := types.ResponseMetadata{
		DetectedLanguage: lang,
		TargetLanguage:   lang,
		Degraded:         degraded,
		DegradedReason:   degradedReason,
		SafetyFlag:       safetyRes.Category,
		Timings:          *timings,
		CustomerID:       customerID,
		SessionID:        sessionID,
	}

	resp := &ChatResponse{
		SessionID: sessionID,
		Answer:    finalAnswer,
		Route:     route,
		Facts:     facts,
		Citations: citations,
		Safety:    safetyRes,
		Metadata:  metadata,
	}
	o.schedulePersistence(sessionID, customerID, userText, resp, lang)

	return emit(StreamEvent{
		Type:      "done",
		Answer:    finalAnswer,
		Route:     route,
		Facts:     facts,
		Citations: citations,
		Safety:    safetyRes,
		Metadata:  &metadata,
	})
}
