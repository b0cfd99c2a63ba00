// =============================================================================
// 📦 AgentFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Agent:       DefaultAgentConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Graph:       DefaultGraphConfig(),
		VectorIndex: DefaultVectorIndexConfig(),
		LLMPrimary:  DefaultLLMPrimaryConfig(),
		LLMFallback: DefaultLLMFallbackConfig(),
		LLM:         DefaultLLMConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		GRPCPort:        9090,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		APIKeys:            nil,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:          "default-agent",
		Description:   "Default AgentFlow agent",
		Model:         "gpt-4",
		SystemPrompt:  "You are a helpful AI assistant.",
		MaxIterations: 10,
		Temperature:   0.7,
		MaxTokens:     4096,
		Timeout:       5 * time.Minute,
		StreamEnabled: true,
		Memory: MemoryConfig{
			Enabled:     true,
			Type:        "buffer",
			MaxMessages: 100,
			TokenLimit:  8000,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentflow",
		Password:        "",
		Name:            "agentflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultGraphConfig 返回默认知识图谱配置
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		URI:            "bolt://localhost:7687",
		Username:       "neo4j",
		Password:       "",
		Database:       "neo4j",
		MaxPoolSize:    50,
		AcquireTimeout: 10 * time.Second,
		ConnLifetime:   30 * time.Minute,
	}
}

// DefaultVectorIndexConfig 返回默认向量索引配置
func DefaultVectorIndexConfig() VectorIndexConfig {
	return VectorIndexConfig{
		Path:       "data/vector_index.db",
		Dimensions: 384,
		TopK:       5,
	}
}

// DefaultLLMPrimaryConfig 返回默认主语言模型提供方配置
func DefaultLLMPrimaryConfig() LLMProviderConfig {
	return LLMProviderConfig{
		Name:    "openai",
		APIKey:  "",
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	}
}

// DefaultLLMFallbackConfig 返回默认备用语言模型提供方配置
func DefaultLLMFallbackConfig() LLMProviderConfig {
	return LLMProviderConfig{
		Name:    "openai-compat-fallback",
		APIKey:  "",
		BaseURL: "",
		Model:   "gpt-4o-mini",
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "openai",
		APIKey:          "",
		BaseURL:         "",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentflow",
		SampleRate:   0.1,
	}
}
