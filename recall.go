package recall

import (
	"context"
	"errors"
	"log/slog"

	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/embedder"
	"github.com/recallai/recall/pkg/graphquery"
	"github.com/recallai/recall/pkg/params"
	"github.com/recallai/recall/pkg/pipeline"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/telemetry"
	"github.com/recallai/recall/pkg/types"
)

// Recall is the main interface for retrieving memories. The chat layer
// calls Retrieve with the input contract and renders the output
// contract; it has no other coupling to pipeline internals.
type Recall interface {
	// Retrieve runs the hybrid retrieval pipeline for one request. The
	// returned result is always non-nil; on the fatal path it carries a
	// failure summary and empty hydrated lists alongside a non-nil error.
	Retrieve(ctx context.Context, req types.RetrievalRequest) (*types.RetrievalResult, error)

	// Parameters returns the effective retrieval parameters for a user:
	// defaults overlaid with any stored overrides.
	Parameters(ctx context.Context, userID string) (types.UserParameters, error)

	// UpdateParameters validates and persists per-user parameter
	// overrides. Out-of-range values are rejected with a ValidationError.
	UpdateParameters(ctx context.Context, userID string, p types.UserParameters) error

	// Presets lists the named parameter presets loaded at startup.
	Presets() []string

	// Close releases every backing-store connection.
	Close(ctx context.Context) error
}

// Options tunes optional client behavior.
type Options struct {
	// PresetsDir holds named parameter preset files (yaml). Empty
	// disables presets.
	PresetsDir string
	// Recorder receives per-retrieval telemetry rows. Nil disables
	// recording.
	Recorder *telemetry.Recorder
	Logger   *slog.Logger
}

// Client is the main implementation of the Recall interface.
type Client struct {
	orchestrator *pipeline.Orchestrator
	resolver     *params.Resolver
	recorder     *telemetry.Recorder
	logger       *slog.Logger

	graph      store.GraphStore
	index      store.VectorIndex
	relational store.RelationalStore
	embedder   embedder.Client
	cache      *cache.Layer
}

// NewClient wires a retrieval client from its collaborators. Every
// store is an interface, so tests substitute fakes and deployments pick
// backends at wire-up time. kv may be nil to disable caching.
func NewClient(
	graph store.GraphStore,
	index store.VectorIndex,
	relational store.RelationalStore,
	embedderClient embedder.Client,
	kv cache.KeyValue,
	opts *Options,
) (*Client, error) {
	if graph == nil || index == nil || relational == nil || embedderClient == nil {
		return nil, &types.ConfigurationError{
			Component: "client",
			Reason:    "graph store, vector index, relational store and embedder are all required",
		}
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	builder, err := graphquery.NewBuilder()
	if err != nil {
		return nil, err
	}

	cacheLayer := cache.NewLayer(kv, logger)
	resolver := params.NewResolver(relational, logger)
	if opts.PresetsDir != "" {
		if err := resolver.LoadPresets(opts.PresetsDir); err != nil {
			return nil, err
		}
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Deps{
		Grounding: pipeline.NewGroundingStage(embedderClient, index, cacheLayer, logger),
		Traversal: pipeline.NewTraversalStage(graph, builder, cacheLayer, logger),
		Metadata:  pipeline.NewMetadataHydrator(relational, logger),
		Scoring:   pipeline.NewScoringStage(nil, logger),
		Hydrator:  pipeline.NewContentHydrator(relational, logger),
		Cache:     cacheLayer,
		Resolver:  resolver,
		Recorder:  opts.Recorder,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		orchestrator: orchestrator,
		resolver:     resolver,
		recorder:     opts.Recorder,
		logger:       logger,
		graph:        graph,
		index:        index,
		relational:   relational,
		embedder:     embedderClient,
		cache:        cacheLayer,
	}, nil
}

// Retrieve implements Recall.
func (c *Client) Retrieve(ctx context.Context, req types.RetrievalRequest) (*types.RetrievalResult, error) {
	return c.orchestrator.Retrieve(ctx, req)
}

// Parameters implements Recall.
func (c *Client) Parameters(ctx context.Context, userID string) (types.UserParameters, error) {
	if userID == "" {
		return types.UserParameters{}, &types.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return c.resolver.Resolve(ctx, userID, ""), nil
}

// UpdateParameters implements Recall.
func (c *Client) UpdateParameters(ctx context.Context, userID string, p types.UserParameters) error {
	return c.resolver.Update(ctx, userID, p)
}

// Presets implements Recall.
func (c *Client) Presets() []string {
	return c.resolver.PresetNames()
}

// Close implements Recall. Every backend is closed; the first error
// does not stop the rest.
func (c *Client) Close(ctx context.Context) error {
	errs := []error{
		c.graph.Close(ctx),
		c.index.Close(),
		c.relational.Close(),
		c.embedder.Close(),
		c.cache.Close(),
		c.recorder.Flush(),
	}
	return errors.Join(errs...)
}

var _ Recall = (*Client)(nil)
