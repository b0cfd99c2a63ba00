package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/healthline/service/internal/cache"
)

func newTestSubstrate(t *testing.T) (*miniredis.Miniredis, *cache.Substrate) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	substrate, err := cache.NewSubstrate(cache.SubstrateConfig{
		L1Capacity: 64,
		L1TTL:      time.Minute,
		L2:         cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build substrate: %v", err)
	}
	return mr, substrate
}

func TestAdminHandler_CacheStats_RequiresAuth(t *testing.T) {
	mr, substrate := newTestSubstrate(t)
	defer mr.Close()

	h := NewAdminHandler(substrate, nil, zap.NewNop())
	r := httptest.NewRequest("GET", "/cache/stats", nil)
	w := httptest.NewRecorder()

	h.HandleCacheStats(w, r)
	if w.Code != 401 {
		t.Errorf("expected 401 without X-Customer-ID, got %d", w.Code)
	}
}

func TestAdminHandler_CacheStats_ReportsCounters(t *testing.T) {
	mr, substrate := newTestSubstrate(t)
	defer mr.Close()

	h := NewAdminHandler(substrate, nil, zap.NewNop())
	r := httptest.NewRequest("GET", "/cache/stats", nil)
	r.Header.Set("X-Customer-ID", "cust-1")
	w := httptest.NewRecorder()

	h.HandleCacheStats(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminHandler_CacheInvalidate_RejectsNonAdmin(t *testing.T) {
	mr, substrate := newTestSubstrate(t)
	defer mr.Close()

	h := NewAdminHandler(substrate, nil, zap.NewNop())
	r := httptest.NewRequest("POST", "/cache/invalidate", nil)
	r.Header.Set("X-Customer-ID", "cust-1")
	w := httptest.NewRecorder()

	h.HandleCacheInvalidate(w, r)
	if w.Code != 403 {
		t.Errorf("expected 403 for non-admin caller, got %d", w.Code)
	}
}

func TestAdminHandler_CacheInvalidate_AdminDeletesMatchingKeys(t *testing.T) {
	mr, substrate := newTestSubstrate(t)
	defer mr.Close()

	mgr := substrate.Manager()
	if err := mgr.Set(context.Background(), "chat:response:a", "1", time.Minute); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	h := NewAdminHandler(substrate, nil, zap.NewNop())
	r := httptest.NewRequest("POST", "/cache/invalidate?pattern=chat:response:*", nil)
	r.Header.Set("X-Customer-ID", "cust-1")
	r.Header.Set("X-Customer-Role", "admin")
	w := httptest.NewRecorder()

	h.HandleCacheInvalidate(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
