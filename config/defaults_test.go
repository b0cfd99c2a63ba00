package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	// Each sub-config should be non-zero
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AgentConfig{}, cfg.Agent)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, GraphConfig{}, cfg.Graph)
	assert.NotEqual(t, VectorIndexConfig{}, cfg.VectorIndex)
	assert.NotEqual(t, LLMProviderConfig{}, cfg.LLMPrimary)
	assert.NotEqual(t, LLMProviderConfig{}, cfg.LLMFallback)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, "default-agent", cfg.Name)
	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.True(t, cfg.StreamEnabled)
	assert.NotEmpty(t, cfg.SystemPrompt)
	assert.NotEmpty(t, cfg.Description)

	// Memory sub-config
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, "buffer", cfg.Memory.Type)
	assert.Equal(t, 100, cfg.Memory.MaxMessages)
	assert.Equal(t, 8000, cfg.Memory.TokenLimit)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "agentflow", cfg.User)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "agentflow", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultGraphConfig(t *testing.T) {
	cfg := DefaultGraphConfig()
	assert.Equal(t, "bolt://localhost:7687", cfg.URI)
	assert.Equal(t, "neo4j", cfg.Username)
	assert.Equal(t, "neo4j", cfg.Database)
	assert.Equal(t, 50, cfg.MaxPoolSize)
	assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ConnLifetime)
}

func TestDefaultVectorIndexConfig(t *testing.T) {
	cfg := DefaultVectorIndexConfig()
	assert.Equal(t, "data/vector_index.db", cfg.Path)
	assert.Equal(t, 384, cfg.Dimensions)
	assert.Equal(t, 5, cfg.TopK)
}

func TestDefaultLLMPrimaryConfig(t *testing.T) {
	cfg := DefaultLLMPrimaryConfig()
	assert.Equal(t, "openai", cfg.Name)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestDefaultLLMFallbackConfig(t *testing.T) {
	cfg := DefaultLLMFallbackConfig()
	assert.Equal(t, "openai-compat-fallback", cfg.Name)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Empty(t, cfg.APIKey)
	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "agentflow", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
