package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/graphquery"
	"github.com/recallai/recall/pkg/params"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/types"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	err     error
	waitCtx bool // block every call until the context expires
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.EmbedSingle(context.Background(), texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	wait := f.waitCtx
	f.mu.Unlock()
	if wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

type fakeVectorIndex struct {
	mu    sync.Mutex
	calls int
	hits  []store.VectorHit
	err   error
}

func (f *fakeVectorIndex) QueryNearest(context.Context, []float32, store.VectorFilter, int) ([]store.VectorHit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeVectorIndex) Close() error { return nil }

type fakeGraphStore struct {
	mu    sync.Mutex
	calls int
	rows  []map[string]any
	err   error
}

func (f *fakeGraphStore) Run(context.Context, string, map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeGraphStore) Close(context.Context) error { return nil }

func (f *fakeGraphStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRelational struct {
	mu          sync.Mutex
	metadata    map[string]types.EntityMetadata
	content     map[string]store.ContentRecord
	metadataErr error
	contentErr  error
}

func newFakeRelational() *fakeRelational {
	return &fakeRelational{
		metadata: make(map[string]types.EntityMetadata),
		content:  make(map[string]store.ContentRecord),
	}
}

func (f *fakeRelational) FetchMetadata(_ context.Context, ids []string, _ types.EntityType, _ string) ([]types.EntityMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	out := make([]types.EntityMetadata, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.metadata[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRelational) FetchContent(_ context.Context, ids []string, _ types.EntityType, _ string) ([]store.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contentErr != nil {
		return nil, f.contentErr
	}
	out := make([]store.ContentRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := f.content[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRelational) FetchParameters(context.Context, string) (*types.UserParameters, error) {
	return nil, nil
}

func (f *fakeRelational) SaveParameters(context.Context, string, *types.UserParameters) error {
	return nil
}

func (f *fakeRelational) Close() error { return nil }

// addEntity registers metadata and content rows for one entity.
func (f *fakeRelational) addEntity(id string, entityType types.EntityType, importance float64, modified time.Time) {
	f.metadata[id] = types.EntityMetadata{
		ID:           id,
		Type:         entityType,
		Importance:   importance,
		CreatedAt:    modified,
		LastModified: modified,
	}
	f.content[id] = store.ContentRecord{
		ID:           id,
		Type:         entityType,
		Title:        "title " + id,
		Content:      "content " + id,
		Importance:   importance,
		CreatedAt:    modified,
		LastModified: modified,
	}
}

type testHarness struct {
	embedder   *fakeEmbedder
	index      *fakeVectorIndex
	graph      *fakeGraphStore
	relational *fakeRelational
	cache      *cache.Layer
	orch       *Orchestrator
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testLogWriter{t}, nil))
}

type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// newHarness wires an orchestrator over fakes with an in-memory cache.
func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := testLogger(t)

	builder, err := graphquery.NewBuilder()
	require.NoError(t, err)

	h := &testHarness{
		embedder:   &fakeEmbedder{},
		index:      &fakeVectorIndex{},
		graph:      &fakeGraphStore{},
		relational: newFakeRelational(),
		cache:      cache.NewLayer(cache.NewMemory(), logger),
	}

	orch, err := NewOrchestrator(Deps{
		Grounding: NewGroundingStage(h.embedder, h.index, h.cache, logger),
		Traversal: NewTraversalStage(h.graph, builder, h.cache, logger),
		Metadata:  NewMetadataHydrator(h.relational, logger),
		Scoring:   NewScoringStage(nil, logger),
		Hydrator:  NewContentHydrator(h.relational, logger),
		Cache:     h.cache,
		Resolver:  params.NewResolver(h.relational, logger),
		Logger:    logger,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func seedHit(id string, entityType types.EntityType, distance float64) store.VectorHit {
	return store.VectorHit{ID: id, Type: entityType, Distance: distance}
}

func graphRow(id string, entityType types.EntityType) map[string]any {
	return map[string]any{"id": id, "type": string(entityType)}
}

func requireUniqueIDs(t *testing.T, ids []string) {
	t.Helper()
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id in stage output: %s", id)
		}
		seen[id] = struct{}{}
	}
}
