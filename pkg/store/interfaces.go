// Package store defines the backing-store collaborators the pipeline
// coordinates (a vector similarity index, a graph store, and a relational
// metadata/content store) together with their production implementations
// and circuit-breaker wrappers.
//
// The pipeline depends only on the interfaces here; tests substitute
// in-memory fakes and deployments pick concrete backends at wire-up time.
package store

import (
	"context"
	"time"

	"github.com/recallai/recall/pkg/types"
)

// VectorHit is one nearest-neighbor result. Distance is the index's raw
// distance metric; similarity is derived as 1 - distance by the caller.
type VectorHit struct {
	ID       string
	Type     types.EntityType
	Distance float64
}

// VectorFilter scopes a nearest-neighbor query to one user's active
// entities of the given types.
type VectorFilter struct {
	UserID      string
	EntityTypes []types.EntityType
	Status      string
}

// VectorIndex is the vector similarity collaborator.
type VectorIndex interface {
	// QueryNearest returns up to limit entities closest to the vector,
	// restricted by the filter, ordered by ascending distance.
	QueryNearest(ctx context.Context, vector []float32, filter VectorFilter, limit int) ([]VectorHit, error)

	Close() error
}

// GraphStore is the graph traversal collaborator. Queries are opaque
// parameterized statements produced by the query builder; no caller ever
// interpolates values into query text.
type GraphStore interface {
	// Run executes a parameterized query and returns its rows as
	// column-name keyed maps.
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	Close(ctx context.Context) error
}

// ContentRecord is a fully hydrated entity as fetched from the relational
// store, before scoring details are attached.
type ContentRecord struct {
	ID           string
	Type         types.EntityType
	Title        string
	Content      string
	Importance   float64
	CreatedAt    time.Time
	LastModified time.Time
}

// RelationalStore is the metadata and content collaborator. It also
// persists per-user parameter overrides for the parameter resolver.
type RelationalStore interface {
	// FetchMetadata returns lightweight metadata for the given ids of one
	// entity type. Missing rows are simply absent from the result, never an
	// error.
	FetchMetadata(ctx context.Context, ids []string, entityType types.EntityType, userID string) ([]types.EntityMetadata, error)

	// FetchContent returns full records for the given ids of one entity
	// type.
	FetchContent(ctx context.Context, ids []string, entityType types.EntityType, userID string) ([]ContentRecord, error)

	// FetchParameters returns the user's stored parameter overrides, or
	// (nil, nil) when the user has none.
	FetchParameters(ctx context.Context, userID string) (*types.UserParameters, error)

	// SaveParameters persists the user's parameter overrides. Validation
	// happens at this boundary, before the call.
	SaveParameters(ctx context.Context, userID string, params *types.UserParameters) error

	Close() error
}
