package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/recallai/recall/pkg/alert"
	"github.com/recallai/recall/pkg/config"
	"github.com/recallai/recall/pkg/types"
)

// breakerSettings builds gobreaker settings shared by all store wrappers.
// On trip the alerter is notified; the pipeline keeps serving degraded
// results while the breaker is open.
func breakerSettings(name string, cfg config.CircuitBreakerConfig, alerter alert.Alerter) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				msg := fmt.Sprintf("Circuit breaker %q changed state from %s to %s. Too many store failures detected.", name, from, to)
				if alerter != nil {
					_ = alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg)
				}
				slog.Warn("circuit breaker opened", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
}

// BreakerVectorIndex wraps a VectorIndex with a circuit breaker.
type BreakerVectorIndex struct {
	index VectorIndex
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerVectorIndex wraps the index. When breaking is disabled the
// index is returned unwrapped.
func NewBreakerVectorIndex(index VectorIndex, cfg config.CircuitBreakerConfig, alerter alert.Alerter) VectorIndex {
	if !cfg.Enabled {
		return index
	}
	return &BreakerVectorIndex{
		index: index,
		cb:    gobreaker.NewCircuitBreaker(breakerSettings("vector-index", cfg, alerter)),
	}
}

func (b *BreakerVectorIndex) QueryNearest(ctx context.Context, vector []float32, filter VectorFilter, limit int) ([]VectorHit, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.index.QueryNearest(ctx, vector, filter, limit)
	})
	if err != nil {
		return nil, wrapBreakerErr("vector-index", "query_nearest", err)
	}
	return result.([]VectorHit), nil
}

func (b *BreakerVectorIndex) Close() error {
	return b.index.Close()
}

// BreakerGraphStore wraps a GraphStore with a circuit breaker.
type BreakerGraphStore struct {
	store GraphStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerGraphStore wraps the store. When breaking is disabled the store
// is returned unwrapped.
func NewBreakerGraphStore(store GraphStore, cfg config.CircuitBreakerConfig, alerter alert.Alerter) GraphStore {
	if !cfg.Enabled {
		return store
	}
	return &BreakerGraphStore{
		store: store,
		cb:    gobreaker.NewCircuitBreaker(breakerSettings("graph-store", cfg, alerter)),
	}
}

func (b *BreakerGraphStore) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.store.Run(ctx, query, params)
	})
	if err != nil {
		return nil, wrapBreakerErr("graph-store", "run", err)
	}
	return result.([]map[string]any), nil
}

func (b *BreakerGraphStore) Close(ctx context.Context) error {
	return b.store.Close(ctx)
}

// wrapBreakerErr keeps breaker rejections inside the transient taxonomy so
// stages degrade the same way whether the store failed or the breaker was
// already open.
func wrapBreakerErr(storeName, op string, err error) error {
	if _, ok := err.(*types.TransientStoreError); ok {
		return err
	}
	return &types.TransientStoreError{Store: storeName, Op: op, Err: err}
}
