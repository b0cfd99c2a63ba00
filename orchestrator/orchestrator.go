// Package orchestrator binds the pipeline stages, the language-model
// gateway, the graph and vector gateways, and the persistence/cache
// substrate into the single entry point the HTTP surface calls for
// /chat and /chat/stream.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/healthline/service/graph"
	"github.com/healthline/service/internal/cache"
	"github.com/healthline/service/internal/database"
	"github.com/healthline/service/llmgateway"
	"github.com/healthline/service/pipeline"
	"github.com/healthline/service/safety"
	"github.com/healthline/service/types"
	"github.com/healthline/service/vector"
)

// =============================================================================
// 🎛️ 编排器
// =============================================================================

// historyDepth is how many prior turns are replayed into the LLM
// gateway and cached under session_messages.
const historyDepth = 20

// Orchestrator is the single entry point for one turn of the
// health-QA conversation.
type Orchestrator struct {
	llm    *llmgateway.Gateway
	graph  *graph.Gateway
	vector *vector.Retriever
	store  *database.Store
	cache  *cache.Substrate
	bg     *BackgroundWorker
	logger *zap.Logger
}

// New builds an Orchestrator. store and cache may be nil — every read
// through them degrades gracefully per the failure semantics in
// spec.md §4.8 (database unavailable → empty history, dropped
// persistence; cache unreachable → tier skipped).
func New(llm *llmgateway.Gateway, g *graph.Gateway, v *vector.Retriever, store *database.Store, c *cache.Substrate, bg *BackgroundWorker, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		llm:    llm,
		graph:  g,
		vector: v,
		store:  store,
		cache:  c,
		bg:     bg,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// ChatRequest is the orchestrator's input for one turn.
type ChatRequest struct {
	CustomerID string
	SessionID  string // empty → a new session is created
	Text       string
	Profile    types.HealthProfile
	Debug      bool
}

// ChatResponse is the orchestrator's output for one turn.
type ChatResponse struct {
	SessionID string
	Answer    string
	Route     pipeline.Route
	Facts     []types.Fact
	Citations []types.Citation
	Safety    types.SafetyResult
	Metadata  types.ResponseMetadata
}

// Chat runs the full unary pipeline for one turn: session upsert,
// history fetch, detect→translate→safety→(facts∥retrieve)→generate→
// translate-back→disclaimer, then schedules background persistence
// and cache invalidation. It always returns a usable answer — see
// the degradation notes on each stage it calls.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	turnStart := time.Now()
	var timings types.Timings

	sessionID, err := o.ensureSession(ctx, req.CustomerID, req.SessionID)
	if err != nil {
		return nil, err
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

	var factsResult pipeline.Result[[]types.Fact]
	var chunksResult pipeline.Result[[]types.RetrievedChunk]
	var wg sync.WaitGroup
	wg.Add(2)

	t0 = time.Now()
	go func() {
		defer wg.Done()
		if route == pipeline.RouteGraph {
			factsResult = pipeline.GatherFacts(ctx, o.graph, pipeline.FactQuery{
				Symptoms:        symptoms,
				CurrentMeds:     req.Profile.CurrentMeds,
				KnownConditions: conditions,
			})
		} else {
			factsResult = pipeline.Ok[[]types.Fact](nil)
		}
	}()
	go func() {
		defer wg.Done()
		chunksResult = pipeline.RetrieveContext(ctx, o.vector, enhancedQuery, k, o.logger)
	}()
	wg.Wait()
	timings.GatherFactsMS = time.Since(t0).Milliseconds()
	timings.RetrieveMS = timings.GatherFactsMS

	t0 = time.Now()
	answerResult := pipeline.GenerateAnswer(ctx, o.llm, processed.Value, historyMessages, chunksResult.Value, factsResult.Value, llmgateway.FallbackAnswer, o.logger)
	timings.GenerateMS = time.Since(t0).Milliseconds()

	finalAnswer := answerResult.Value.Text
	if !translationSkipped {
		t0 = time.Now()
		back := pipeline.TranslateBack(ctx, o.llm, finalAnswer, lang.Value.Code, o.logger)
		timings.TranslateOutMS = time.Since(t0).Milliseconds()
		finalAnswer = back.Value
	}

	redFlag := safetyResult.Value.Flagged && safetyResult.Value.Category == "red_flag"
	if !redFlag {
		finalAnswer += pipeline.LocalizedDisclaimer(lang.Value.Code)
	}

	timings.TotalMS = time.Since(turnStart).Milliseconds()

	degraded := factsResult.IsDegraded() || chunksResult.IsDegraded() || answerResult.IsDegraded() || lang.IsDegraded()
	reason := firstNonEmpty(answerResult.Reason, factsResult.Reason, chunksResult.Reason, lang.Reason)

	var debug any
	if req.Debug {
		debug = map[string]any{
			"enhanced_query": enhancedQuery,
			"symptoms":       symptoms,
			"conditions":     conditions,
			"llm_provider":   answerResult.Value.Provider,
		}
	}

	resp := &ChatResponse{
		SessionID: sessionID,
		Answer:    finalAnswer,
		Route:     route,
		Facts:     factsResult.Value,
		Citations: answerResult.Value.Citations,
		Safety:    safetyResult.Value,
		Metadata: types.ResponseMetadata{
			DetectedLanguage: lang.Value.Code,
			TargetLanguage:   lang.Value.Code,
			Degraded:         degraded,
			DegradedReason:   reason,
			SafetyFlag:       safetyResult.Value.Category,
			Timings:          timings,
			CustomerID:       req.CustomerID,
			SessionID:        sessionID,
			Debug:            debug,
		},
	}

	o.schedulePersistence(sessionID, req.CustomerID, req.Text, resp, lang.Value.Code)

	return resp, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatHistory(msgs []types.ChatMessage) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			out = append(out, types.NewUserMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, types.NewAssistantMessage(m.Content))
		}
	}
	return out
}

// ensureSession verifies ownership of an existing session or creates
// a new one, echoing its id back to the caller per spec.md §4.8.
func (o *Orchestrator) ensureSession(ctx context.Context, customerID, sessionID string) (string, error) {
	if sessionID == "" {
		id := uuid.NewString()
		if o.store != nil {
			now := time.Now().UTC()
			_, err := o.store.Execute(ctx,
				`INSERT INTO chat_sessions (id, customer_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				id, customerID, now, now)
			if err != nil {
				o.logger.Warn("session creation failed, continuing with in-memory session id", zap.Error(err))
			}
		}
		return id, nil
	}

	if o.store == nil {
		return sessionID, nil
	}

	var owner struct {
		CustomerID string
	}
	err := o.store.FetchRow(ctx, &owner, `SELECT customer_id FROM chat_sessions WHERE id = ?`, sessionID)
	if err == gorm.ErrRecordNotFound {
		return "", types.NewError(types.ErrSessionNotFound, "session not found").WithHTTPStatus(404)
	}
	if err != nil {
		o.logger.Warn("session ownership check failed, proceeding without verification", zap.Error(err))
		return sessionID, nil
	}
	if owner.CustomerID != customerID {
		return "", types.NewError(types.ErrSessionOwnership, "session does not belong to this customer").WithHTTPStatus(403)
	}
	return sessionID, nil
}

// fetchHistory returns up to the last historyDepth messages for a
// session, cache-first. A database outage simply yields empty
// history — the turn proceeds without prior context rather than
// failing.
func (o *Orchestrator) fetchHistory(ctx context.Context, sessionID string) []types.ChatMessage {
	key := cache.BuildKey(cache.FamilyMessages, sessionID, "20")

	if o.cache != nil {
		if raw, ok := o.cache.GetFast(ctx, key); ok {
			var msgs []types.ChatMessage
			if json.Unmarshal([]byte(raw), &msgs) == nil {
				return msgs
			}
		}
	}

	if o.store == nil {
		return nil
	}

	var rows []database.ChatMessage
	err := o.store.Fetch(ctx, &rows,
		`SELECT * FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, historyDepth)
	if err != nil {
		o.logger.Warn("history fetch failed, proceeding with empty history", zap.Error(err))
		return nil
	}

	msgs := make([]types.ChatMessage, len(rows))
	for i, r := range rows {
		msgs[len(rows)-1-i] = types.ChatMessage{
			ID:         r.ID,
			SessionID:  r.SessionID,
			Role:       types.Role(r.Role),
			Content:    r.Content,
			Language:   r.Language,
			SafetyFlag: r.SafetyFlag,
			CreatedAt:  r.CreatedAt,
		}
	}

	if o.cache != nil {
		if encoded, err := json.Marshal(msgs); err == nil {
			_ = o.cache.Set(ctx, key, string(encoded), 5*time.Minute)
		}
	}

	return msgs
}
