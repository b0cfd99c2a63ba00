// Package vector implements the Vector Retriever: a process-wide
// singleton over an embedded, persistent vector index returning the
// top-k most similar content chunks for a query.
package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🔍 向量检索器
// =============================================================================

// Embedder turns text into an embedding vector. The LLM gateway's
// embedding-capable provider satisfies this in production; tests use a
// deterministic hash-based stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the embedded vector index.
type Config struct {
	Path       string `yaml:"path" json:"path"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	TopK       int    `yaml:"top_k" json:"top_k"`
}

// DefaultConfig returns sensible defaults for the embedded index.
func DefaultConfig() Config {
	return Config{Path: "data/vector_index.db", Dimensions: 384, TopK: 5}
}

// Retriever is the singleton handle over the embedded vector index.
type Retriever struct {
	db       *sql.DB
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
}

var (
	once     sync.Once
	instance *Retriever
	initErr  error
)

// Open returns the process-wide Retriever singleton, opening the
// embedded index on first call and registering the sqlite-vec
// extension with the driver. Subsequent calls return the same handle
// regardless of the arguments passed, matching the "open once, cache
// handle" requirement for an embedded store shared across requests.
func Open(cfg Config, embedder Embedder, logger *zap.Logger) (*Retriever, error) {
	once.Do(func() {
		sqlite_vec.Auto()

		db, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			initErr = fmt.Errorf("failed to open vector index: %w", err)
			return
		}
		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to ping vector index: %w", err)
			return
		}
		if err := ensureSchema(db, cfg.Dimensions); err != nil {
			initErr = err
			return
		}

		instance = &Retriever{
			db:       db,
			embedder: embedder,
			cfg:      cfg,
			logger:   logger.With(zap.String("component", "vector_retriever")),
		}
		logger.Info("vector retriever initialized", zap.String("path", cfg.Path), zap.Int("dimensions", cfg.Dimensions))
	})

	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

func ensureSchema(db *sql.DB, dims int) error {
	_, err := db.Exec(fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
  embedding float[%d]
)`, dims))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS chunk_meta (
  rowid INTEGER PRIMARY KEY,
  chunk_id TEXT NOT NULL,
  content TEXT NOT NULL,
  source TEXT NOT NULL,
  topic TEXT
)`)
	if err != nil {
		return fmt.Errorf("failed to create chunk metadata table: %w", err)
	}
	return nil
}

// IndexChunk stores a content chunk and its embedding.
func (r *Retriever) IndexChunk(ctx context.Context, chunkID, content, source, topic string) error {
	embedding, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO chunk_meta(chunk_id, content, source, topic) VALUES (?, ?, ?, ?)`,
		chunkID, content, source, topic)
	if err != nil {
		return fmt.Errorf("failed to insert chunk metadata: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	packed, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_vectors(rowid, embedding) VALUES (?, ?)`, rowID, packed); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	return tx.Commit()
}

// Retrieve returns up to k content chunks most similar to query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	packed, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT m.chunk_id, m.content, m.source, m.topic, v.distance
FROM chunk_vectors v
JOIN chunk_meta m ON m.rowid = v.rowid
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, packed, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []types.RetrievedChunk
	for rows.Next() {
		var chunk types.RetrievedChunk
		var distance float64
		if err := rows.Scan(&chunk.ID, &chunk.Chunk, &chunk.Source, &chunk.Topic, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector search result: %w", err)
		}
		chunk.Score = 1 / (1 + distance)
		results = append(results, chunk)
	}

	return results, rows.Err()
}

// Close releases the embedded index's handle.
func (r *Retriever) Close() error {
	return r.db.Close()
}
