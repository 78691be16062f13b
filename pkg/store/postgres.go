package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/recallai/recall/pkg/types"
)

// tableForType maps an entity type onto its relational table. The closed
// map keeps request input out of SQL text.
var tableForType = map[types.EntityType]string{
	types.EntityTypeMemoryUnit: "memory_units",
	types.EntityTypeConcept:    "concepts",
	types.EntityTypeArtifact:   "artifacts",
}

// PostgresStore implements RelationalStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds connection pool options.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresStore opens the relational store.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open relational store: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying pool so the pgvector index can share it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// FetchMetadata returns lightweight metadata for the given ids. Ids with no
// row are simply absent from the result.
func (s *PostgresStore) FetchMetadata(ctx context.Context, ids []string, entityType types.EntityType, userID string) ([]types.EntityMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, ok := tableForType[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	query := fmt.Sprintf(`
		SELECT id, importance, created_at, updated_at
		FROM %s
		WHERE user_id = $1 AND id = ANY($2)`, table)

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, &types.TransientStoreError{Store: "postgres", Op: "fetch_metadata", Err: err}
	}
	defer rows.Close()

	var out []types.EntityMetadata
	for rows.Next() {
		m := types.EntityMetadata{Type: entityType}
		var updatedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Importance, &m.CreatedAt, &updatedAt); err != nil {
			return nil, &types.TransientStoreError{Store: "postgres", Op: "scan", Err: err}
		}
		if updatedAt.Valid {
			m.LastModified = updatedAt.Time
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.TransientStoreError{Store: "postgres", Op: "fetch_metadata", Err: err}
	}
	return out, nil
}

// FetchContent returns full records for the given ids.
func (s *PostgresStore) FetchContent(ctx context.Context, ids []string, entityType types.EntityType, userID string) ([]ContentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, ok := tableForType[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	query := fmt.Sprintf(`
		SELECT id, title, content, importance, created_at, updated_at
		FROM %s
		WHERE user_id = $1 AND id = ANY($2)`, table)

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, &types.TransientStoreError{Store: "postgres", Op: "fetch_content", Err: err}
	}
	defer rows.Close()

	var out []ContentRecord
	for rows.Next() {
		r := ContentRecord{Type: entityType}
		var title, content sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(&r.ID, &title, &content, &r.Importance, &r.CreatedAt, &updatedAt); err != nil {
			return nil, &types.TransientStoreError{Store: "postgres", Op: "scan", Err: err}
		}
		r.Title = title.String
		r.Content = content.String
		if updatedAt.Valid {
			r.LastModified = updatedAt.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.TransientStoreError{Store: "postgres", Op: "fetch_content", Err: err}
	}
	return out, nil
}

// FetchParameters returns the user's stored parameter overrides, or
// (nil, nil) when none exist.
func (s *PostgresStore) FetchParameters(ctx context.Context, userID string) (*types.UserParameters, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT params FROM user_parameters WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &types.TransientStoreError{Store: "postgres", Op: "fetch_parameters", Err: err}
	}

	params := &types.UserParameters{}
	if err := json.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("stored parameters for user %s are malformed: %w", userID, err)
	}
	return params, nil
}

// SaveParameters persists the user's parameter overrides.
func (s *PostgresStore) SaveParameters(ctx context.Context, userID string, params *types.UserParameters) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_parameters (user_id, params, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET params = $2, updated_at = NOW()`,
		userID, raw)
	if err != nil {
		return &types.TransientStoreError{Store: "postgres", Op: "save_parameters", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
