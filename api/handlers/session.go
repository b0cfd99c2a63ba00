package handlers

import (
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/healthline/service/internal/cache"
	"github.com/healthline/service/internal/database"
	"github.com/healthline/service/types"
)

// =============================================================================
// 🗂️ 会话接口 Handler
// =============================================================================

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SessionHandler serves the session and customer read endpoints:
// GET /session/{sid}, GET /session/{sid}/messages, DELETE /session/{sid},
// GET /customer/{uid}/sessions.
type SessionHandler struct {
	store  *database.Store
	cache  *cache.Substrate
	logger *zap.Logger
}

// NewSessionHandler creates a session/customer read-surface handler.
func NewSessionHandler(store *database.Store, c *cache.Substrate, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{store: store, cache: c, logger: logger}
}

type sessionBody struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Title       string    `json:"title,omitempty"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastMessage time.Time `json:"last_message_at,omitempty"`
}

type sessionWithMessagesBody struct {
	sessionBody
	Messages []types.ChatMessage `json:"messages"`
}

// HandleGetSession serves GET /session/{sid} — the full session with
// its message history.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if !uuidPattern.MatchString(sid) {
		WriteError(w, types.NewError(types.ErrValidation, "session id must be a UUID"), h.logger)
		return
	}

	session, apiErr := h.loadSessionForCaller(r, sid)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	messages := h.loadMessages(r, sid)

	w.Header().Set("Vary", "Accept-Encoding")
	WriteSuccess(w, sessionWithMessagesBody{sessionBody: *session, Messages: messages})
}

// HandleGetSessionMessages serves GET /session/{sid}/messages.
func (h *SessionHandler) HandleGetSessionMessages(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if !uuidPattern.MatchString(sid) {
		WriteError(w, types.NewError(types.ErrValidation, "session id must be a UUID"), h.logger)
		return
	}

	if _, apiErr := h.loadSessionForCaller(r, sid); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	w.Header().Set("Vary", "Accept-Encoding")
	WriteSuccess(w, h.loadMessages(r, sid))
}

// HandleDeleteSession serves DELETE /session/{sid}, cascading to its
// messages.
func (h *SessionHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if !uuidPattern.MatchString(sid) {
		WriteError(w, types.NewError(types.ErrValidation, "session id must be a UUID"), h.logger)
		return
	}

	if _, apiErr := h.loadSessionForCaller(r, sid); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	if h.store == nil {
		WriteError(w, types.NewError(types.ErrBackendDegraded, "store unavailable"), h.logger)
		return
	}

	ctx := r.Context()
	if _, err := h.store.Execute(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sid); err != nil {
		h.logger.Error("failed to delete session messages", zap.Error(err))
		WriteError(w, types.NewError(types.ErrInternalError, "delete failed").WithCause(err), h.logger)
		return
	}
	if _, err := h.store.Execute(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sid); err != nil {
		h.logger.Error("failed to delete session", zap.Error(err))
		WriteError(w, types.NewError(types.ErrInternalError, "delete failed").WithCause(err), h.logger)
		return
	}

	if h.cache != nil {
		cache.BumpFamily(cache.FamilySession)
		cache.BumpFamily(cache.FamilyMessages)
	}

	WriteSuccess(w, map[string]bool{"deleted": true})
}

// HandleListCustomerSessions serves GET /customer/{uid}/sessions.
func (h *SessionHandler) HandleListCustomerSessions(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if !uuidPattern.MatchString(uid) {
		WriteError(w, types.NewError(types.ErrValidation, "customer id must be a UUID"), h.logger)
		return
	}

	caller := r.Header.Get("X-Customer-ID")
	if caller == "" {
		WriteError(w, types.NewError(types.ErrAuthentication, "missing customer identity").WithHTTPStatus(http.StatusUnauthorized), h.logger)
		return
	}
	if caller != uid && !isAdmin(r) {
		WriteError(w, types.NewError(types.ErrForbidden, "not permitted to list this customer's sessions").WithHTTPStatus(http.StatusForbidden), h.logger)
		return
	}

	if h.store == nil {
		WriteSuccess(w, []sessionBody{})
		return
	}

	var rows []database.ChatSession
	if err := h.store.Fetch(r.Context(), &rows,
		`SELECT * FROM chat_sessions WHERE customer_id = ? ORDER BY created_at DESC`, uid); err != nil {
		h.logger.Warn("session list failed, returning empty list", zap.Error(err))
		WriteSuccess(w, []sessionBody{})
		return
	}

	out := make([]sessionBody, len(rows))
	for i, row := range rows {
		out[i] = toSessionBody(row)
	}

	w.Header().Set("Vary", "Accept-Encoding")
	WriteSuccess(w, out)
}

// loadSessionForCaller fetches the session and enforces owner-or-admin
// access before returning it.
func (h *SessionHandler) loadSessionForCaller(r *http.Request, sid string) (*sessionBody, *types.Error) {
	caller := r.Header.Get("X-Customer-ID")
	if caller == "" {
		return nil, types.NewError(types.ErrAuthentication, "missing customer identity").WithHTTPStatus(http.StatusUnauthorized)
	}

	if h.store == nil {
		return nil, types.NewError(types.ErrBackendDegraded, "store unavailable").WithHTTPStatus(http.StatusServiceUnavailable)
	}

	var row database.ChatSession
	err := h.store.FetchRow(r.Context(), &row, `SELECT * FROM chat_sessions WHERE id = ?`, sid)
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found").WithHTTPStatus(http.StatusNotFound)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "session lookup failed").WithCause(err)
	}
	if row.CustomerID != caller && !isAdmin(r) {
		return nil, types.NewError(types.ErrSessionOwnership, "session does not belong to this customer").WithHTTPStatus(http.StatusForbidden)
	}

	body := toSessionBody(row)
	return &body, nil
}

func (h *SessionHandler) loadMessages(r *http.Request, sid string) []types.ChatMessage {
	if h.store == nil {
		return nil
	}
	var rows []database.ChatMessage
	if err := h.store.Fetch(r.Context(), &rows,
		`SELECT * FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sid); err != nil {
		h.logger.Warn("message list failed, returning empty list", zap.Error(err))
		return nil
	}

	out := make([]types.ChatMessage, len(rows))
	for i, row := range rows {
		out[i] = types.ChatMessage{
			ID:         row.ID,
			SessionID:  row.SessionID,
			Role:       types.Role(row.Role),
			Content:    row.Content,
			Language:   row.Language,
			SafetyFlag: row.SafetyFlag,
			CreatedAt:  row.CreatedAt,
		}
	}
	return out
}

func toSessionBody(row database.ChatSession) sessionBody {
	return sessionBody{
		ID:         row.ID,
		CustomerID: row.CustomerID,
		Title:      row.Title,
		Language:   row.Language,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

// isAdmin reports whether the caller's API key carries the admin role,
// set by the API-key auth middleware after validating the key. Full
// role-based access control is out of scope (spec §1 non-goal); this
// is the one-bit seam the middleware populates today.
func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Customer-Role") == "admin"
}
