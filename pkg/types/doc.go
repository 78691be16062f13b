// Package types defines the shared data model for the retrieval pipeline:
// entities as they move through the stages (seed, candidate, scored),
// per-user tunable parameters, the per-request execution context, and the
// error taxonomy shared by every stage.
package types
