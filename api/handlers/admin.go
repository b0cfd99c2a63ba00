package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/healthline/service/internal/cache"
	"github.com/healthline/service/internal/database"
	"github.com/healthline/service/types"
)

// =============================================================================
// 🩺 缓存/连接池管理 Handler
// =============================================================================

// AdminHandler serves the operational introspection surface: cache
// hit/miss statistics, cache configuration, relational pool stats,
// and admin-gated cache invalidation by key pattern. Grounded on the
// original service's /cache/stats, /cache/info, and /cache/invalidate
// endpoints.
type AdminHandler struct {
	cache  *cache.Substrate
	store  *database.Store
	logger *zap.Logger
}

// NewAdminHandler creates the admin introspection handler.
func NewAdminHandler(c *cache.Substrate, store *database.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{cache: c, store: store, logger: logger}
}

type cacheStatsBody struct {
	Statistics *cache.Stats        `json:"statistics"`
	Info       cache.Info          `json:"info"`
	Pool       *database.PoolStats `json:"pool,omitempty"`
}

// HandleCacheStats serves GET /cache/stats — requires an
// authenticated caller, mirroring the original's require_auth
// dependency (any signed-in customer may read operational stats;
// only invalidation is admin-gated).
func (h *AdminHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Customer-ID") == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", h.logger)
		return
	}

	mgr := h.cache.Manager()
	if mgr == nil {
		WriteSuccess(w, cacheStatsBody{Info: cache.Info{Enabled: false}})
		return
	}

	stats, err := mgr.GetStats(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrBackendDegraded, "cache stats unavailable").WithCause(err), h.logger)
		return
	}

	body := cacheStatsBody{Statistics: stats, Info: mgr.Info(r.Context())}
	if h.store != nil && h.store.Pool() != nil {
		poolStats := h.store.Pool().GetStats()
		body.Pool = &poolStats
	}
	WriteSuccess(w, body)
}

// HandleCacheInfo serves GET /cache/info — static cache configuration
// plus a live reachability probe, without the running counters
// /cache/stats reports.
func (h *AdminHandler) HandleCacheInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Customer-ID") == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", h.logger)
		return
	}

	mgr := h.cache.Manager()
	if mgr == nil {
		WriteSuccess(w, cache.Info{Enabled: false})
		return
	}
	WriteSuccess(w, mgr.Info(r.Context()))
}

type cacheInvalidateBody struct {
	DeletedKeys int64  `json:"deleted_keys"`
	Pattern     string `json:"pattern"`
}

// HandleCacheInvalidate serves POST /cache/invalidate?pattern=... —
// admin-only, matching the original's role check ("Only admins can
// invalidate cache"). An absent pattern invalidates every chat
// response cache entry, the original's invalidate_all_cache default.
func (h *AdminHandler) HandleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Customer-ID") == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", h.logger)
		return
	}
	if !isAdmin(r) {
		WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden, "only admins can invalidate cache", h.logger)
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "chat:response:*"
	}

	mgr := h.cache.Manager()
	if mgr == nil {
		WriteSuccess(w, cacheInvalidateBody{DeletedKeys: 0, Pattern: pattern})
		return
	}

	deleted, err := mgr.ScanDelete(r.Context(), trimWildcard(pattern))
	if err != nil {
		WriteError(w, types.NewError(types.ErrBackendDegraded, "cache invalidation failed").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, cacheInvalidateBody{DeletedKeys: deleted, Pattern: pattern})
}

// trimWildcard strips a trailing "*" from a SCAN-style pattern, since
// Manager.ScanDelete appends its own "*" to the prefix it's given.
func trimWildcard(pattern string) string {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		return pattern[:len(pattern)-1]
	}
	return pattern
}
