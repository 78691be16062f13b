package recall

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/config"
)

func testWireLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(wireLogWriter{t}, nil))
}

type wireLogWriter struct{ t *testing.T }

func (w wireLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestClosersRunInReverseOrder(t *testing.T) {
	var order []string
	c := closers{
		func() { order = append(order, "first") },
		func() { order = append(order, "second") },
		func() { order = append(order, "third") },
	}
	c.closeAll()
	assert.Equal(t, []string{"third", "second", "first"}, order)

	var empty closers
	empty.closeAll() // must be a no-op
}

func TestOpenClosesBackendsOnWiringFailure(t *testing.T) {
	// Graph and relational constructors open lazily, so wiring proceeds
	// offline until the embedder rejects the missing API key. The error
	// path must unwind the handles opened before it without panicking.
	cfg := &config.Config{
		Graph: config.GraphConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
			Password: "secret",
		},
		Relational: config.RelationalConfig{
			DSN: "postgres://localhost:5432/recall?sslmode=disable",
		},
	}

	client, err := Open(context.Background(), cfg, testWireLogger(t))
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "api key")
}
