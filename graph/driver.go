package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// =============================================================================
// 🔌 图数据库驱动
// =============================================================================

// DriverConfig configures the Neo4j connection.
type DriverConfig struct {
	URI          string        `yaml:"uri" json:"uri"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"password"`
	Database     string        `yaml:"database" json:"database"`
	MaxPoolSize  int           `yaml:"max_pool_size" json:"max_pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" json:"conn_lifetime"`
}

// DefaultDriverConfig returns sensible defaults, matching the pool
// sizing conventions of internal/database.DefaultPoolConfig.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		URI:            "bolt://localhost:7687",
		Database:       "neo4j",
		MaxPoolSize:    50,
		AcquireTimeout: 30 * time.Second,
		ConnLifetime:   time.Hour,
	}
}

// Driver wraps a neo4j.DriverWithContext with the reconnect policy
// used by the rest of the gateway layer: one retry after a fresh
// session is acquired, never an unbounded retry loop.
type Driver struct {
	driver neo4j.DriverWithContext
	cfg    DriverConfig
	logger *zap.Logger
}

// NewDriver dials Neo4j and verifies connectivity once at startup,
// mirroring the teacher's "ping on construct" convention for Redis and
// Postgres pools.
func NewDriver(ctx context.Context, cfg DriverConfig, logger *zap.Logger) (*Driver, error) {
	d, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
			c.ConnectionAcquisitionTimeout = cfg.AcquireTimeout
			c.MaxConnectionLifetime = cfg.ConnLifetime
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.VerifyConnectivity(verifyCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	logger.Info("graph driver initialized", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))

	return &Driver{driver: d, cfg: cfg, logger: logger.With(zap.String("component", "graph_driver"))}, nil
}

// ExecuteRead runs work in a read session, with the gateway's
// one-retry-after-reconnect policy.
func (d *Driver) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.cfg.Database, AccessMode: neo4j.AccessModeRead})
	result, err := session.ExecuteRead(ctx, work)
	session.Close(ctx)
	if err == nil {
		return result, nil
	}

	d.logger.Warn("graph read failed, retrying once with fresh session", zap.Error(err))
	session2 := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.cfg.Database, AccessMode: neo4j.AccessModeRead})
	defer session2.Close(ctx)
	return session2.ExecuteRead(ctx, work)
}

// Close shuts down the driver's connection pool.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
