// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// compressionThreshold is the value size above which Set transparently
// gzip+base64 encodes the payload before writing to Redis. Below it,
// compression overhead isn't worth the CPU.
const compressionThreshold = 1024

const compressedPrefix = "gz1:"

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager 缓存管理器
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool

	// hits/misses/errors track Get outcomes for GetStats, the same
	// running counters the original cache service kept under a
	// stats_lock (hits, misses, errors, total_requests).
	hits   uint64
	misses uint64
	errors uint64
}

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建缓存管理器
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 获取缓存值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", fmt.Errorf("cache manager is closed")
	}

	val, err := m.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddUint64(&m.misses, 1)
		return "", ErrCacheMiss
	}
	if err != nil {
		atomic.AddUint64(&m.errors, 1)
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	atomic.AddUint64(&m.hits, 1)
	return decompress(val)
}

// Set 设置缓存值
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	stored, err := compress(value)
	if err != nil {
		return fmt.Errorf("cache compress failed: %w", err)
	}

	if err := m.redis.Set(ctx, key, stored, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// compress gzip+base64 encodes value when it exceeds
// compressionThreshold, prefixing the result so Get can tell a
// compressed payload from a plain one. Small values are stored as-is
// to avoid paying compression overhead for no benefit.
func compress(value string) (string, error) {
	if len(value) < compressionThreshold {
		return value, nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(value)); err != nil {
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}

	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decompress(stored string) (string, error) {
	if len(stored) < len(compressedPrefix) || stored[:len(compressedPrefix)] != compressedPrefix {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(stored[len(compressedPrefix):])
	if err != nil {
		return "", fmt.Errorf("cache decode failed: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("cache decompress failed: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return "", fmt.Errorf("cache decompress failed: %w", err)
	}

	return string(out), nil
}

// GetJSON 获取 JSON 缓存值
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return nil
}

// SetJSON 设置 JSON 缓存值
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除缓存值
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	if len(keys) == 0 {
		return nil
	}

	err := m.redis.Del(ctx, keys...).Err()
	if err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// Exists 检查键是否存在
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fmt.Errorf("cache manager is closed")
	}

	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache exists check failed: %w", err)
	}

	return count, nil
}

// Expire 设置键的过期时间
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	err := m.redis.Expire(ctx, key, ttl).Err()
	if err != nil {
		return fmt.Errorf("cache expire failed: %w", err)
	}

	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.logger.Info("closing cache manager")

	return m.redis.Close()
}

// ScanDelete 按前缀扫描并删除键（用于整族失效的兜底路径）
//
// ScanDelete iterates keys matching prefix+"*" via SCAN (never KEYS, to
// avoid blocking Redis) and deletes them in batches of 256. It is the
// scan-invalidate mode of last resort, used only when a family's keys
// were written before key versioning was introduced or version bump
// tracking was lost (e.g. after a cold restart racing a write).
func (m *Manager) ScanDelete(ctx context.Context, prefix string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fmt.Errorf("cache manager is closed")
	}

	var cursor uint64
	var deleted int64
	match := prefix + "*"

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return deleted, fmt.Errorf("cache scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := m.redis.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("cache scan-delete failed: %w", err)
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return
		}
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			m.logger.Error("cache health check failed", zap.Error(err))
		} else {
			m.logger.Debug("cache health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats mirrors the original cache service's get_statistics response:
// the gateway's own hit/miss/error counters plus a snapshot of
// Redis's own memory and connection usage.
type Stats struct {
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Errors          uint64  `json:"errors"`
	TotalRequests   uint64  `json:"total_requests"`
	HitRatePercent  float64 `json:"hit_rate_percent"`
	CacheEnabled    bool    `json:"cache_enabled"`
	RedisAvailable  bool    `json:"redis_available"`
	UsedMemoryBytes int64   `json:"used_memory_bytes"`
	MaxMemoryBytes  int64   `json:"max_memory_bytes"`
	Connections     int64   `json:"connected_clients"`
}

// GetStats reports the running hit/miss/error counters alongside a
// point-in-time read of Redis's INFO stats/memory/clients sections,
// the same split the original service returned from
// get_statistics()+get_cache_info().
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("cache manager is closed")
	}

	hits := atomic.LoadUint64(&m.hits)
	misses := atomic.LoadUint64(&m.misses)
	errs := atomic.LoadUint64(&m.errors)
	total := hits + misses

	stats := &Stats{
		Hits:          hits,
		Misses:        misses,
		Errors:        errs,
		TotalRequests: total,
		CacheEnabled:  true,
	}
	if total > 0 {
		stats.HitRatePercent = float64(hits) / float64(total) * 100
	}

	info, err := m.redis.Info(ctx, "memory", "clients").Result()
	if err != nil {
		stats.RedisAvailable = false
		return stats, nil
	}
	stats.RedisAvailable = true

	fields := parseRedisInfo(info)
	stats.UsedMemoryBytes = fields["used_memory"]
	stats.MaxMemoryBytes = fields["maxmemory"]
	stats.Connections = fields["connected_clients"]

	return stats, nil
}

// Info mirrors the original's get_cache_info(): static configuration
// plus a live reachability probe, without the running counters
// GetStats reports.
type Info struct {
	Enabled              bool   `json:"enabled"`
	TTLSeconds           int64  `json:"ttl_seconds"`
	PoolSize             int    `json:"pool_size"`
	CompressionThreshold int    `json:"compress_threshold"`
	RedisAvailable       bool   `json:"redis_available"`
	Addr                 string `json:"addr"`
}

func (m *Manager) Info(ctx context.Context) Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{
		Enabled:              !m.closed,
		TTLSeconds:           int64(m.config.DefaultTTL.Seconds()),
		PoolSize:             m.config.PoolSize,
		CompressionThreshold: compressionThreshold,
		Addr:                 m.config.Addr,
	}
	if !m.closed {
		info.RedisAvailable = m.redis.Ping(ctx).Err() == nil
	}
	return info
}

// parseRedisInfo extracts the handful of numeric fields GetStats
// needs from a raw Redis INFO section (plain "key:value\r\n" lines).
func parseRedisInfo(raw string) map[string]int64 {
	fields := make(map[string]int64)
	for _, line := range strings.Split(raw, "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			fields[k] = n
		}
	}
	return fields
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
