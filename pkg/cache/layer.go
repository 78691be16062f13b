package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/recallai/recall/pkg/types"
	"github.com/recallai/recall/pkg/utils"
)

// Key prefixes keep the three tiers from colliding in a shared backend.
const (
	fullResultPrefix = "recall:full:"
	seedPrefix       = "recall:seed:"
	candidatePrefix  = "recall:cand:"
)

// Layer is the three-tier retrieval cache: full results, per-phrase
// seeds, and per-seed-set candidates. A nil *Layer disables caching:
// every read is a miss and every write a no-op, so callers never need
// a branch on whether caching is configured.
//
// Backend failures are logged and treated as misses; the cache can
// never fail a retrieval.
type Layer struct {
	kv     KeyValue
	logger *slog.Logger
}

// NewLayer wraps a backend. Passing a nil backend returns a nil Layer.
func NewLayer(kv KeyValue, logger *slog.Logger) *Layer {
	if kv == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{kv: kv, logger: logger}
}

// WeightsSignature renders a weight triple into a stable string for key
// hashing, so identical requests with different weights never share a
// full-result entry.
func WeightsSignature(w types.RetrievalWeights) string {
	return strings.Join([]string{
		strconv.FormatFloat(w.Alpha, 'f', -1, 64),
		strconv.FormatFloat(w.Beta, 'f', -1, 64),
		strconv.FormatFloat(w.Gamma, 'f', -1, 64),
	}, ",")
}

// FullResultKey identifies a complete retrieval: user, conversation,
// scenario, the normalized phrase set (order-independent), and the
// scoring weights in effect.
func FullResultKey(userID, conversationID string, scenario types.Scenario, phrases []string, weights types.RetrievalWeights) string {
	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.Strings(sorted)

	return fullResultPrefix + utils.HashStrings(
		userID,
		conversationID,
		string(scenario),
		strings.Join(sorted, "\x1f"),
		WeightsSignature(weights),
	)
}

func seedKey(userID, phrase string) string {
	return seedPrefix + utils.HashStrings(userID, phrase)
}

func candidateKey(userID string, scenario types.Scenario, seedIDs []string) string {
	return candidatePrefix + utils.HashStrings(userID, string(scenario), utils.HashSorted(seedIDs))
}

// GetFullResult returns a cached retrieval result, or ok=false.
func (l *Layer) GetFullResult(ctx context.Context, key string) (*types.RetrievalResult, bool) {
	if l == nil {
		return nil, false
	}
	var result types.RetrievalResult
	if !l.get(ctx, key, &result) {
		return nil, false
	}
	return &result, true
}

// SetFullResult stores a complete retrieval result.
func (l *Layer) SetFullResult(ctx context.Context, key string, result *types.RetrievalResult, ttl time.Duration) {
	if l == nil || result == nil {
		return
	}
	l.set(ctx, key, result, ttl)
}

// GetSeeds returns cached grounding seeds for one phrase.
func (l *Layer) GetSeeds(ctx context.Context, userID, phrase string) ([]types.SeedEntity, bool) {
	if l == nil {
		return nil, false
	}
	var seeds []types.SeedEntity
	if !l.get(ctx, seedKey(userID, phrase), &seeds) {
		return nil, false
	}
	return seeds, true
}

// SetSeeds stores grounding seeds for one phrase. An empty seed list is
// cached too: a phrase that grounded to nothing stays nothing for the TTL.
func (l *Layer) SetSeeds(ctx context.Context, userID, phrase string, seeds []types.SeedEntity, ttl time.Duration) {
	if l == nil {
		return
	}
	if seeds == nil {
		seeds = []types.SeedEntity{}
	}
	l.set(ctx, seedKey(userID, phrase), seeds, ttl)
}

// GetCandidates returns cached traversal output for a seed set.
func (l *Layer) GetCandidates(ctx context.Context, userID string, scenario types.Scenario, seedIDs []string) ([]types.CandidateEntity, bool) {
	if l == nil {
		return nil, false
	}
	var candidates []types.CandidateEntity
	if !l.get(ctx, candidateKey(userID, scenario, seedIDs), &candidates) {
		return nil, false
	}
	return candidates, true
}

// SetCandidates stores traversal output for a seed set.
func (l *Layer) SetCandidates(ctx context.Context, userID string, scenario types.Scenario, seedIDs []string, candidates []types.CandidateEntity, ttl time.Duration) {
	if l == nil {
		return
	}
	if candidates == nil {
		candidates = []types.CandidateEntity{}
	}
	l.set(ctx, candidateKey(userID, scenario, seedIDs), candidates, ttl)
}

// Close closes the underlying backend.
func (l *Layer) Close() error {
	if l == nil {
		return nil
	}
	return l.kv.Close()
}

func (l *Layer) get(ctx context.Context, key string, out any) bool {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		l.logger.Warn("cache entry undecodable, treating as miss", "key", key, "error", err)
		return false
	}
	return true
}

func (l *Layer) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		l.logger.Warn("cache encode failed, skipping write", "key", key, "error", err)
		return
	}
	if err := l.kv.Set(ctx, key, raw, ttl); err != nil {
		l.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
