package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/healthline/service/orchestrator"
	"github.com/healthline/service/types"
)

// =============================================================================
// 💬 健康问答聊天 Handler
// =============================================================================

var sessionIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var supportedLanguages = map[string]bool{"en": true, "hi": true, "ta": true, "te": true, "kn": true, "ml": true}

// ChatHandler serves the health-QA /chat (unary) and /chat/stream (SSE)
// endpoints, delegating all pipeline logic to the orchestrator.
type ChatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewChatHandler creates a health-QA chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: logger}
}

// chatProfile is the wire-format health profile accepted on /chat,
// looser than types.HealthProfile since booleans here collapse into
// the condition list the orchestrator actually consumes.
type chatProfile struct {
	Age               int      `json:"age,omitempty"`
	Sex               string   `json:"sex,omitempty"`
	Diabetes          bool     `json:"diabetes,omitempty"`
	Hypertension      bool     `json:"hypertension,omitempty"`
	Pregnancy         bool     `json:"pregnancy,omitempty"`
	City              string   `json:"city,omitempty"`
	MedicalConditions []string `json:"medical_conditions,omitempty"`
}

type chatRequestBody struct {
	Text      string      `json:"text"`
	Lang      string      `json:"lang"`
	Profile   chatProfile `json:"profile"`
	Debug     bool        `json:"debug,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

type chatSafetyMentalHealth struct {
	Crisis  bool     `json:"crisis"`
	Matched []string `json:"matched,omitempty"`
}

type chatSafetyPregnancy struct {
	Concern bool     `json:"concern"`
	Matched []string `json:"matched,omitempty"`
}

type chatSafetyBody struct {
	RedFlag      bool                    `json:"red_flag"`
	Matched      []string                `json:"matched,omitempty"`
	MentalHealth chatSafetyMentalHealth  `json:"mental_health"`
	Pregnancy    chatSafetyPregnancy     `json:"pregnancy"`
}

type chatResponseBody struct {
	Answer    string                  `json:"answer"`
	Route     string                  `json:"route"`
	Facts     []types.Fact            `json:"facts"`
	Citations []types.Citation        `json:"citations"`
	Safety    chatSafetyBody          `json:"safety"`
	Metadata  types.ResponseMetadata  `json:"metadata"`
}

// HandleChat serves POST /chat — the unary answer endpoint.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var body chatRequestBody
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	customerID, apiErr := customerIDFromRequest(r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	if apiErr := validateChatBody(&body); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	req := orchestrator.ChatRequest{
		CustomerID: customerID,
		SessionID:  body.SessionID,
		Text:       body.Text,
		Profile:    toHealthProfile(customerID, body.Profile),
		Debug:      body.Debug,
	}

	resp, err := h.orch.Chat(r.Context(), req)
	if err != nil {
		h.handleOrchestratorError(w, err)
		return
	}

	WriteSuccess(w, toChatResponseBody(resp))
}

// HandleChatStream serves POST /chat/stream — the SSE answer endpoint.
func (h *ChatHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var body chatRequestBody
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	customerID, apiErr := customerIDFromRequest(r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	if apiErr := validateChatBody(&body); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	req := orchestrator.ChatRequest{
		CustomerID: customerID,
		SessionID:  body.SessionID,
		Text:       body.Text,
		Profile:    toHealthProfile(customerID, body.Profile),
		Debug:      body.Debug,
	}

	err := h.orch.ChatStream(r.Context(), req, func(ev orchestrator.StreamEvent) error {
		encoded, encErr := json.Marshal(ev)
		if encErr != nil {
			return encErr
		}
		if _, wErr := w.Write([]byte("data: ")); wErr != nil {
			return wErr
		}
		if _, wErr := w.Write(encoded); wErr != nil {
			return wErr
		}
		if _, wErr := w.Write([]byte("\n\n")); wErr != nil {
			return wErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.logger.Error("chat stream ended with error", zap.Error(err))
	}
}

func validateChatBody(body *chatRequestBody) *types.Error {
	if body.Lang == "" {
		body.Lang = "en"
	}
	if len(body.Text) == 0 {
		return types.NewError(types.ErrValidation, "text is required")
	}
	if len(body.Text) > 5000 {
		return types.NewError(types.ErrValidation, "text exceeds 5000 characters")
	}
	if !supportedLanguages[body.Lang] {
		return types.NewError(types.ErrValidation, "unsupported lang")
	}
	if body.SessionID != "" && !sessionIDPattern.MatchString(body.SessionID) {
		return types.NewError(types.ErrValidation, "session_id must be a UUID")
	}
	return nil
}

func toHealthProfile(customerID string, p chatProfile) types.HealthProfile {
	conditions := append([]string{}, p.MedicalConditions...)
	if p.Diabetes {
		conditions = append(conditions, "diabetes")
	}
	if p.Hypertension {
		conditions = append(conditions, "hypertension")
	}

	profile := types.HealthProfile{
		CustomerID:      customerID,
		Sex:             p.Sex,
		KnownConditions: conditions,
		City:            p.City,
	}
	if p.Age > 0 {
		profile.AgeBand = ageToBand(p.Age)
	}
	if p.Pregnancy {
		profile.PregnancyStatus = "pregnant"
	}
	return profile
}

func ageToBand(age int) string {
	switch {
	case age < 13:
		return "child"
	case age < 20:
		return "teen"
	case age < 65:
		return "adult"
	default:
		return "senior"
	}
}

func toChatResponseBody(resp *orchestrator.ChatResponse) chatResponseBody {
	safety := chatSafetyBody{}
	switch resp.Safety.Category {
	case "red_flag":
		safety.RedFlag = true
		safety.Matched = resp.Safety.Matched
	case "crisis":
		safety.MentalHealth = chatSafetyMentalHealth{Crisis: true, Matched: resp.Safety.Matched}
	case "pregnancy_emergency":
		safety.Pregnancy = chatSafetyPregnancy{Concern: true, Matched: resp.Safety.Matched}
	}

	facts := resp.Facts
	if facts == nil {
		facts = []types.Fact{}
	}
	citations := resp.Citations
	if citations == nil {
		citations = []types.Citation{}
	}

	return chatResponseBody{
		Answer:    resp.Answer,
		Route:     string(resp.Route),
		Facts:     facts,
		Citations: citations,
		Safety:    safety,
		Metadata:  resp.Metadata,
	}
}

// customerIDFromRequest reads the authenticated customer id attached by
// upstream auth middleware. Until JWT issuance is wired in (spec §1
// non-goal for this core), the id is passed through the X-Customer-ID
// header the API-key middleware sets after validating the key.
func customerIDFromRequest(r *http.Request) (string, *types.Error) {
	id := r.Header.Get("X-Customer-ID")
	if id == "" {
		return "", types.NewError(types.ErrAuthentication, "missing customer identity").WithHTTPStatus(http.StatusUnauthorized)
	}
	return id, nil
}

// handleOrchestratorError maps orchestrator-surfaced errors (session
// ownership, session not found) to the HTTP surface; anything else is
// wrapped as an internal error rather than leaking implementation
// detail to the caller.
func (h *ChatHandler) handleOrchestratorError(w http.ResponseWriter, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "chat turn failed").WithCause(err), h.logger)
}
