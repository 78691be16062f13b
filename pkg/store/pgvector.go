package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/recallai/recall/pkg/types"
)

// PgVectorIndex implements VectorIndex on PostgreSQL with the pgvector
// extension. It can share a connection pool with the relational store or
// run against a dedicated DSN.
type PgVectorIndex struct {
	db    *sql.DB
	table string
}

// PgVectorConfig holds connection options for the vector index.
type PgVectorConfig struct {
	DSN             string
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPgVectorIndex opens a pgvector-backed index.
func NewPgVectorIndex(cfg PgVectorConfig) (*PgVectorIndex, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	table := cfg.Table
	if table == "" {
		table = "entity_embeddings"
	}

	return &PgVectorIndex{db: db, table: table}, nil
}

// NewPgVectorIndexFromDB wraps an existing pool, for deployments where the
// vector table lives in the same database as the relational store.
func NewPgVectorIndexFromDB(db *sql.DB, table string) *PgVectorIndex {
	if table == "" {
		table = "entity_embeddings"
	}
	return &PgVectorIndex{db: db, table: table}
}

// QueryNearest returns the entities closest to the vector by cosine
// distance, scoped to the filter's user, entity types and status.
func (x *PgVectorIndex) QueryNearest(ctx context.Context, vector []float32, filter VectorFilter, limit int) ([]VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	entityTypes := make([]string, len(filter.EntityTypes))
	for i, t := range filter.EntityTypes {
		entityTypes[i] = string(t)
	}

	status := filter.Status
	if status == "" {
		status = "active"
	}

	// The table name comes from configuration, never from request input.
	query := fmt.Sprintf(`
		SELECT entity_id, entity_type, embedding <=> $1 AS distance
		FROM %s
		WHERE user_id = $2
		  AND entity_type = ANY($3)
		  AND status = $4
		ORDER BY embedding <=> $1
		LIMIT $5`, pq.QuoteIdentifier(x.table))

	rows, err := x.db.QueryContext(ctx, query,
		pgvector.NewVector(vector), filter.UserID, pq.Array(entityTypes), status, limit)
	if err != nil {
		return nil, &types.TransientStoreError{Store: "pgvector", Op: "query_nearest", Err: err}
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var hit VectorHit
		var entityType string
		if err := rows.Scan(&hit.ID, &entityType, &hit.Distance); err != nil {
			return nil, &types.TransientStoreError{Store: "pgvector", Op: "scan", Err: err}
		}
		hit.Type = types.EntityType(entityType)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.TransientStoreError{Store: "pgvector", Op: "query_nearest", Err: err}
	}

	return hits, nil
}

// Close releases the connection pool.
func (x *PgVectorIndex) Close() error {
	return x.db.Close()
}
