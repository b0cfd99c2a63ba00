// Package main provides the Healthline server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/healthline/service/api/handlers"
	"github.com/healthline/service/config"
	"github.com/healthline/service/graph"
	"github.com/healthline/service/internal/cache"
	"github.com/healthline/service/internal/database"
	"github.com/healthline/service/internal/metrics"
	"github.com/healthline/service/internal/server"
	"github.com/healthline/service/internal/telemetry"
	"github.com/healthline/service/llmgateway"
	"github.com/healthline/service/orchestrator"
	"github.com/healthline/service/vector"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server is Healthline's main server, wiring the full health-QA
// container: cache substrate, Postgres store, knowledge graph,
// embedded vector index, LLM gateway, orchestrator, and HTTP surface.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers
	db         *gorm.DB

	httpManager    *server.Manager
	metricsManager *server.Manager

	substrate *cache.Substrate
	store     *database.Store
	graphGW   *graph.Gateway
	graphDrv  *graph.Driver
	retriever *vector.Retriever
	llm       *llmgateway.Gateway
	bg        *orchestrator.BackgroundWorker
	orch      *orchestrator.Orchestrator

	chatHandler    *handlers.ChatHandler
	sessionHandler *handlers.SessionHandler
	healthHandler  *handlers.HealthHandler
	adminHandler   *handlers.AdminHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer creates a new Healthline server instance.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
		db:         db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start boots every tier of the container and both HTTP listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("healthline", s.logger)

	if err := s.initContainer(); err != nil {
		return fmt.Errorf("failed to init container: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 容器初始化
// =============================================================================

// initContainer builds the cache, store, graph, vector, and LLM
// tiers, then wires them into the orchestrator. Every tier degrades
// gracefully when unavailable — see each constructor's failure
// semantics — so a missing Redis or Neo4j never blocks startup.
func (s *Server) initContainer() error {
	substrateCfg := cache.SubstrateConfig{
		L1Capacity: 4096,
		L1TTL:      cache.DefaultSubstrateConfig().L1TTL,
		L2: cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		},
	}
	substrate, err := cache.NewSubstrate(substrateCfg, s.logger)
	if err != nil {
		s.logger.Warn("cache substrate unavailable, responses will skip caching", zap.Error(err))
	}
	s.substrate = substrate

	if s.db != nil {
		pool, err := database.NewPoolManager(s.db, database.DefaultPoolConfig(), s.logger)
		if err != nil {
			s.logger.Warn("database pool manager init failed, persistence disabled", zap.Error(err))
		} else {
			s.store = database.NewStore(pool, s.logger)
		}
	}

	if s.cfg.Graph.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Graph.AcquireTimeout)
		defer cancel()
		drv, err := graph.NewDriver(ctx, graph.DriverConfig{
			URI:            s.cfg.Graph.URI,
			Username:       s.cfg.Graph.Username,
			Password:       s.cfg.Graph.Password,
			Database:       s.cfg.Graph.Database,
			MaxPoolSize:    s.cfg.Graph.MaxPoolSize,
			AcquireTimeout: s.cfg.Graph.AcquireTimeout,
			ConnLifetime:   s.cfg.Graph.ConnLifetime,
		}, s.logger)
		if err != nil {
			s.logger.Warn("graph driver unavailable, serving from the in-memory fallback graph", zap.Error(err))
		} else {
			s.graphDrv = drv
		}
	}
	s.graphGW = graph.NewGateway(s.graphDrv, s.logger)

	s.llm = llmgateway.New(llmgateway.Config{
		Primary: llmgateway.ProviderConfig{
			Name:    s.cfg.LLMPrimary.Name,
			APIKey:  s.cfg.LLMPrimary.APIKey,
			BaseURL: s.cfg.LLMPrimary.BaseURL,
			Model:   s.cfg.LLMPrimary.Model,
		},
		Fallback: llmgateway.ProviderConfig{
			Name:    s.cfg.LLMFallback.Name,
			APIKey:  s.cfg.LLMFallback.APIKey,
			BaseURL: s.cfg.LLMFallback.BaseURL,
			Model:   s.cfg.LLMFallback.Model,
		},
	}, s.logger)

	retriever, err := vector.Open(vector.Config{
		Path:       s.cfg.VectorIndex.Path,
		Dimensions: s.cfg.VectorIndex.Dimensions,
		TopK:       s.cfg.VectorIndex.TopK,
	}, s.llm, s.logger)
	if err != nil {
		s.logger.Warn("vector index unavailable, retrieval degrades to graph-only answers", zap.Error(err))
	}
	s.retriever = retriever

	s.bg = orchestrator.NewBackgroundWorker(4, 256, s.logger)

	s.orch = orchestrator.New(s.llm, s.graphGW, s.retriever, s.store, s.substrate, s.bg, s.logger)

	s.logger.Info("Container initialized",
		zap.Bool("cache", s.substrate != nil),
		zap.Bool("database", s.store != nil),
		zap.Bool("graph_driver", s.graphDrv != nil),
		zap.Bool("vector_index", s.retriever != nil),
	)

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.chatHandler = handlers.NewChatHandler(s.orch, s.logger)
	s.sessionHandler = handlers.NewSessionHandler(s.store, s.substrate, s.logger)
	s.adminHandler = handlers.NewAdminHandler(s.substrate, s.store, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer builds the route table and middleware chain, then
// starts the HTTP listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /chat", s.chatHandler.HandleChat)
	mux.HandleFunc("POST /chat/stream", s.chatHandler.HandleChatStream)
	mux.HandleFunc("GET /session/{sid}", s.sessionHandler.HandleGetSession)
	mux.HandleFunc("GET /session/{sid}/messages", s.sessionHandler.HandleGetSessionMessages)
	mux.HandleFunc("DELETE /session/{sid}", s.sessionHandler.HandleDeleteSession)
	mux.HandleFunc("GET /customer/{uid}/sessions", s.sessionHandler.HandleListCustomerSessions)

	mux.HandleFunc("GET /cache/stats", s.adminHandler.HandleCacheStats)
	mux.HandleFunc("GET /cache/info", s.adminHandler.HandleCacheInfo)
	mux.HandleFunc("POST /cache/invalidate", s.adminHandler.HandleCacheInvalidate)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	bgCtx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, true, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown blocks until a shutdown signal arrives, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown gracefully tears down every tier in reverse dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.bg != nil {
		s.bg.Shutdown(ctx)
	}

	if s.graphDrv != nil {
		if err := s.graphDrv.Close(ctx); err != nil {
			s.logger.Error("Graph driver shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
