// Package recall retrieves memories for a personal knowledge assistant.
//
// Given a set of natural-language key phrases, it produces a ranked,
// fully-hydrated set of memory units, concepts and artifacts that a
// downstream language model can consume as context. Retrieval runs as a
// six-stage pipeline over three heterogeneous backing stores:
//
//  1. Normalize the key phrases.
//  2. Ground each phrase in the vector index to find seed entities.
//  3. Expand seeds into a candidate set by graph traversal.
//  4. Hydrate lightweight metadata for every candidate.
//  5. Score candidates (semantic similarity, recency, importance) and
//     keep the top N.
//  6. Hydrate full content for the winners.
//
// Stages 1-5 degrade on failure (a dead graph store still yields the
// seeds, missing metadata still scores with neutral defaults), while a
// stage-6 failure is fatal, since scored references without content are
// useless downstream. A three-tier cache (full results, per-phrase
// seeds, per-seed-set candidates) wraps the pipeline.
//
// Basic usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := recall.Open(ctx, cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	result, err := client.Retrieve(ctx, types.RetrievalRequest{
//		UserID:     "u-123",
//		KeyPhrases: []string{"skiing", "winter trip planning"},
//		Scenario:   types.ScenarioNeighborhood,
//	})
//
// Tests construct clients with NewClient and in-memory fakes for the
// store interfaces.
package recall
