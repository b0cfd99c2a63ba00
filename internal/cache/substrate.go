package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ 两层缓存基座
// =============================================================================

// Substrate is the two-tier cache the rest of the service talks to:
// an L1 in-process LRU in front of the L2 Manager (Redis). Callers
// never address L1 or L2 directly.
type Substrate struct {
	l1         *L1
	l2         *Manager
	l1TTL      time.Duration
	logger     *zap.Logger
}

// SubstrateConfig configures the combined substrate.
type SubstrateConfig struct {
	L1Capacity int
	L1TTL      time.Duration
	L2         Config
}

// Manager exposes the L2 Redis manager for callers (the cache
// statistics/info/invalidate admin surface) that need Redis-level
// operations L1's in-process map has no equivalent for. Nil when L2
// never connected.
func (s *Substrate) Manager() *Manager {
	return s.l2
}

// DefaultSubstrateConfig mirrors the teacher's cache defaults, with a
// short L1 TTL since L1 is meant to absorb bursts, not replace L2.
func DefaultSubstrateConfig() SubstrateConfig {
	return SubstrateConfig{
		L1Capacity: 4096,
		L1TTL:      15 * time.Second,
		L2:         DefaultConfig(),
	}
}

// NewSubstrate builds the two-tier cache, connecting to Redis for L2.
func NewSubstrate(cfg SubstrateConfig, logger *zap.Logger) (*Substrate, error) {
	l2, err := NewManager(cfg.L2, logger)
	if err != nil {
		return nil, err
	}
	return &Substrate{
		l1:     NewL1(cfg.L1Capacity),
		l2:     l2,
		l1TTL:  cfg.L1TTL,
		logger: logger.With(zap.String("component", "cache_substrate")),
	}, nil
}

// GetFast is the fast-path read: check L1, then issue a single,
// no-retry L2 read. Used on the request hot path where a cache miss
// should fall through to the origin immediately rather than delay the
// caller with retries.
func (s *Substrate) GetFast(ctx context.Context, key string) (string, bool) {
	if v, ok := s.l1.Get(key); ok {
		return v, true
	}

	v, err := s.l2.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			s.logger.Debug("fast-path L2 read error, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}

	s.l1.Set(key, v, s.l1TTL)
	return v, true
}

// GetReliable is the reliable-path read, used for data whose absence
// is expensive to recompute (e.g. gathered facts ahead of a slow LLM
// call): it retries the L2 read a bounded number of times with a
// short linear backoff before giving up.
func (s *Substrate) GetReliable(ctx context.Context, key string, attempts int, delay time.Duration) (string, bool) {
	if v, ok := s.l1.Get(key); ok {
		return v, true
	}

	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := s.l2.Get(ctx, key)
		if err == nil {
			s.l1.Set(key, v, s.l1TTL)
			return v, true
		}
		if IsCacheMiss(err) {
			return "", false
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(delay):
		}
	}

	s.logger.Warn("reliable-path L2 read exhausted retries", zap.String("key", key), zap.Error(lastErr))
	return "", false
}

// Set writes through both tiers. L2 TTL is caller-specified; L1 uses
// the substrate's shorter fixed TTL regardless, since L1 exists only
// to smooth bursts within a single process.
func (s *Substrate) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.l1.Set(key, value, s.l1TTL)
	return s.l2.Set(ctx, key, value, ttl)
}

// InvalidateKey removes a single key from both tiers.
func (s *Substrate) InvalidateKey(ctx context.Context, key string) error {
	s.l1.Delete(key)
	return s.l2.Delete(ctx, key)
}

// InvalidateFamily is the scan-invalidate mode: it bumps the family's
// in-process version (so every key built after this call is fresh),
// clears L1 entirely (L1 has no prefix index to target selectively),
// and best-effort scans L2 for the old-versioned prefix so memory
// isn't held by keys nothing will ever address again.
func (s *Substrate) InvalidateFamily(ctx context.Context, family Family) error {
	oldVersion := globalVersions.get(family)
	BumpFamily(family)
	s.l1.Purge()

	prefix := string(family) + ":"
	_ = oldVersion
	_, err := s.l2.ScanDelete(ctx, prefix)
	return err
}

// Close releases the L2 Redis connection.
func (s *Substrate) Close() error {
	return s.l2.Close()
}
