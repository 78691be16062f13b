package recall

import (
	"context"
	"log/slog"
	"time"

	"github.com/recallai/recall/pkg/alert"
	"github.com/recallai/recall/pkg/cache"
	"github.com/recallai/recall/pkg/config"
	"github.com/recallai/recall/pkg/embedder"
	"github.com/recallai/recall/pkg/store"
	"github.com/recallai/recall/pkg/telemetry"
)

// Open builds a Client with the concrete production backends named in
// the configuration: neo4j for the graph, postgres for metadata and
// content, pgvector for similarity, openai for embeddings, and the
// configured cache backend. Store clients are wrapped in circuit
// breakers when breaking is enabled.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		var err error
		logger, err = telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, err
		}
	}

	var alerter alert.Alerter = &alert.NoOpAlerter{}
	if cfg.Alert.Enabled {
		alerter = alert.NewEmailAlerter(cfg.Alert)
	}

	// Backends opened so far are closed again if wiring fails partway;
	// once NewClient succeeds, the client owns them.
	var undo closers
	defer func() { undo.closeAll() }()

	graph, err := store.NewNeo4jStore(cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() { _ = graph.Close(ctx) })

	relational, err := store.NewPostgresStore(store.PostgresConfig{
		DSN:             cfg.Relational.DSN,
		MaxOpenConns:    cfg.Relational.MaxOpenConns,
		MaxIdleConns:    cfg.Relational.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Relational.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() { _ = relational.Close() })

	// The vector table usually lives in the same database as the
	// relational store, in which case both share one pool.
	var index store.VectorIndex
	if cfg.Vector.DSN == "" || cfg.Vector.DSN == cfg.Relational.DSN {
		index = store.NewPgVectorIndexFromDB(relational.DB(), cfg.Vector.Table)
	} else {
		separate, err := store.NewPgVectorIndex(store.PgVectorConfig{
			DSN:   cfg.Vector.DSN,
			Table: cfg.Vector.Table,
		})
		if err != nil {
			return nil, err
		}
		undo = append(undo, func() { _ = separate.Close() })
		index = separate
	}

	graphStore := store.NewBreakerGraphStore(graph, cfg.CircuitBreaker, alerter)
	index = store.NewBreakerVectorIndex(index, cfg.CircuitBreaker, alerter)

	embedderClient, err := embedder.NewOpenAIClient(embedder.Config{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() { _ = embedderClient.Close() })

	kv, err := openCacheBackend(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if kv != nil {
		undo = append(undo, func() { _ = kv.Close() })
	}

	var recorder *telemetry.Recorder
	if cfg.Telemetry.ParquetPath != "" {
		recorder, err = telemetry.NewRecorder(cfg.Telemetry.ParquetPath)
		if err != nil {
			logger.Warn("telemetry recorder unavailable, continuing without it", "error", err)
		}
	}

	client, err := NewClient(graphStore, index, relational, embedderClient, kv, &Options{
		PresetsDir: cfg.Retrieval.PresetsDir,
		Recorder:   recorder,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	undo = nil
	return client, nil
}

// closers is a stack of cleanup hooks for partially-wired backends.
type closers []func()

// closeAll runs the hooks in reverse of the order they were added.
func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openCacheBackend picks the KeyValue backend by name. Unknown names
// fall back to the in-memory backend.
func openCacheBackend(ctx context.Context, cfg config.CacheConfig) (cache.KeyValue, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	case "badger":
		return cache.NewBadger(cfg.BadgerDir)
	case "none":
		return nil, nil
	default:
		return cache.NewMemory(), nil
	}
}
