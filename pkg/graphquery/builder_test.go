package graphquery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/types"
)

func seeds(ids ...string) []types.SeedEntity {
	out := make([]types.SeedEntity, len(ids))
	for i, id := range ids {
		out[i] = types.SeedEntity{ID: id, Type: types.EntityTypeMemoryUnit, Similarity: 0.8}
	}
	return out
}

func TestNewBuilderValidatesTemplates(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Len(t, b.templates, 3)
}

func TestValidateTemplateRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"missing seed ids", "MATCH (n {user_id: $user_id}) RETURN n LIMIT $limit /* %d */"},
		{"missing limit", "MATCH (n {user_id: $user_id}) WHERE n.id IN $seed_ids RETURN n /* %d */"},
		{"no hop placeholder", "MATCH (n {user_id: $user_id}) WHERE n.id IN $seed_ids RETURN n LIMIT $limit"},
		{"double hop placeholder", "MATCH (n)-[*1..%d]-()-[*1..%d]-() WHERE n.id IN $seed_ids AND n.u = $user_id RETURN n LIMIT $limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateTemplate(tt.text))
		})
	}
}

func TestBuildBindsAllValuesAsParameters(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	// Hostile input stays out of the query text entirely.
	userID := `user' OR 1=1 //`
	hostileSeed := `x"}) MATCH (m) DETACH DELETE m //`

	q, err := b.Build(types.ScenarioNeighborhood, seeds(hostileSeed), userID, 2, 50)
	require.NoError(t, err)

	assert.NotContains(t, q.Text, userID)
	assert.NotContains(t, q.Text, hostileSeed)
	assert.Equal(t, userID, q.Params["user_id"])
	assert.Equal(t, []string{hostileSeed}, q.Params["seed_ids"])
	assert.Equal(t, 50, q.Params["limit"])
	assert.Contains(t, q.Text, "*1..2")
}

func TestBuildUnknownScenarioFallsBack(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	q, err := b.Build(types.Scenario("full_text"), seeds("mu-1"), "user-1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, types.ScenarioNeighborhood, q.Scenario)
}

func TestBuildClampsHopBound(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	q, err := b.Build(types.ScenarioNeighborhood, seeds("mu-1"), "user-1", 99, 10)
	require.NoError(t, err)
	assert.Contains(t, q.Text, "*1..10")

	q, err = b.Build(types.ScenarioNeighborhood, seeds("mu-1"), "user-1", 0, 10)
	require.NoError(t, err)
	assert.Contains(t, q.Text, "*1..1")
}

func TestBuildScenarioShapes(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	timeline, err := b.Build(types.ScenarioTimeline, seeds("mu-1"), "user-1", 2, 10)
	require.NoError(t, err)
	assert.Contains(t, timeline.Text, "PRECEDES|FOLLOWS")
	assert.Contains(t, timeline.Text, "ORDER BY e.occurred_at")

	conceptual, err := b.Build(types.ScenarioConceptual, seeds("mu-1"), "user-1", 2, 10)
	require.NoError(t, err)
	assert.Contains(t, conceptual.Text, "INSTANCE_OF|RELATED_TO")

	// All templates return the same row shape.
	for _, q := range []*Query{timeline, conceptual} {
		assert.True(t, strings.Contains(q.Text, "e.id AS id"))
		assert.True(t, strings.Contains(q.Text, "e.kind AS type"))
	}
}

func TestBuildRejectsInvalidArgs(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	_, err = b.Build(types.ScenarioNeighborhood, seeds("mu-1"), "", 2, 10)
	assert.Error(t, err)

	_, err = b.Build(types.ScenarioNeighborhood, seeds("mu-1"), "user-1", 2, 0)
	assert.Error(t, err)
}
