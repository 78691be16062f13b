// Package telemetry provides structured logging for the retrieval pipeline:
// a slog.Handler chain that enriches records with request identity from the
// context, and a Parquet sink that batches per-request pipeline telemetry
// for offline analysis.
package telemetry

type contextKey string

const (
	// ContextKeyUserID carries the requesting user through store calls.
	ContextKeyUserID contextKey = "recall_user_id"
	// ContextKeyRequestID carries the pipeline request id.
	ContextKeyRequestID contextKey = "recall_request_id"
	// ContextKeyScenario carries the traversal scenario name.
	ContextKeyScenario contextKey = "recall_scenario"
)
