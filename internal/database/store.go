package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 📦 关系型存储网关
// =============================================================================

// Store is the relational store gateway: a thin layer over PoolManager
// offering fetch/fetchrow/fetchval/execute primitives, each retried
// exactly once after a transparent reconnect if the first attempt hit
// a connection-class error.
type Store struct {
	pool   *PoolManager
	logger *zap.Logger
}

// NewStore wraps a PoolManager as a Store.
func NewStore(pool *PoolManager, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "store"))}
}

// Pool exposes the underlying PoolManager for callers (the cache/pool
// statistics admin surface) that need connection-pool metrics Store's
// query primitives don't report.
func (s *Store) Pool() *PoolManager {
	return s.pool
}

// Fetch runs query and scans every matching row into dest, a pointer
// to a slice of structs.
func (s *Store) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	return s.withReconnect(ctx, func() error {
		return s.pool.DB().WithContext(ctx).Raw(query, args...).Scan(dest).Error
	})
}

// FetchRow runs query and scans the first matching row into dest, a
// pointer to a struct. Returns gorm.ErrRecordNotFound if there is no
// match.
func (s *Store) FetchRow(ctx context.Context, dest any, query string, args ...any) error {
	return s.withReconnect(ctx, func() error {
		tx := s.pool.DB().WithContext(ctx).Raw(query, args...).Scan(dest)
		if tx.Error != nil {
			return tx.Error
		}
		if tx.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// FetchVal runs query and scans a single scalar column into dest, a
// pointer to a scalar type.
func (s *Store) FetchVal(ctx context.Context, dest any, query string, args ...any) error {
	return s.withReconnect(ctx, func() error {
		return s.pool.DB().WithContext(ctx).Raw(query, args...).Row().Scan(dest)
	})
}

// Execute runs a non-SELECT statement and returns the number of rows
// affected.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := s.withReconnect(ctx, func() error {
		tx := s.pool.DB().WithContext(ctx).Exec(query, args...)
		affected = tx.RowsAffected
		return tx.Error
	})
	return affected, err
}

// withReconnect runs fn once; if it fails with a connection-class
// error, it blocks on EnsureConnected and retries fn exactly one more
// time. A second failure is returned as-is — callers are expected to
// treat repeated failures as a degraded backend (types.ErrBackendDegraded),
// not to retry further themselves.
func (s *Store) withReconnect(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isRetryableError(err) {
		return err
	}

	s.logger.Warn("store operation hit connection error, reconnecting", zap.Error(err))
	if connErr := s.pool.EnsureConnected(ctx); connErr != nil {
		return fmt.Errorf("reconnect failed after store error %v: %w", err, connErr)
	}

	return fn()
}
