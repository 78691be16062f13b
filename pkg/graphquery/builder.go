// Package graphquery builds the parameterized graph queries the traversal
// stage executes. Templates form a closed, named set validated at
// construction time; every request-supplied value travels as a bound
// parameter, never as query text.
package graphquery

import (
	"fmt"
	"strings"

	"github.com/recallai/recall/pkg/types"
)

// Param names shared by every template. Request values bind to these; query
// text never embeds them.
const (
	paramSeedIDs = "$seed_ids"
	paramUserID  = "$user_id"
	paramLimit   = "$limit"
)

// hopPlaceholder marks where the validated hop bound is rendered. Cypher
// cannot parameterize variable-length bounds, so the bound is an integer
// clamped to [1,10] before formatting - it is never request text.
const hopPlaceholder = "%d"

// Query is an opaque, fully-parameterized statement ready for the graph
// store.
type Query struct {
	Scenario types.Scenario
	Text     string
	Params   map[string]any
}

type template struct {
	scenario types.Scenario
	text     string
}

// The closed template set. Each template returns rows shaped
// (id, type) so the traversal stage maps them uniformly.
var scenarioTemplates = map[types.Scenario]string{
	types.ScenarioNeighborhood: `
MATCH (s:Entity {user_id: $user_id})
WHERE s.id IN $seed_ids
OPTIONAL MATCH (s)-[*1..%d]-(n:Entity {user_id: $user_id})
WHERE n.status = 'active'
WITH collect(DISTINCT s) + collect(DISTINCT n) AS entities
UNWIND entities AS e
WITH DISTINCT e
RETURN e.id AS id, e.kind AS type
LIMIT $limit`,

	types.ScenarioTimeline: `
MATCH (s:Entity {user_id: $user_id})
WHERE s.id IN $seed_ids
OPTIONAL MATCH (s)-[:PRECEDES|FOLLOWS*1..%d]-(n:Entity {user_id: $user_id})
WHERE n.status = 'active'
WITH collect(DISTINCT s) + collect(DISTINCT n) AS entities
UNWIND entities AS e
WITH DISTINCT e
RETURN e.id AS id, e.kind AS type
ORDER BY e.occurred_at DESC
LIMIT $limit`,

	types.ScenarioConceptual: `
MATCH (s:Entity {user_id: $user_id})
WHERE s.id IN $seed_ids
OPTIONAL MATCH (s)-[:INSTANCE_OF|RELATED_TO*1..%d]-(n:Entity {user_id: $user_id})
WHERE n.status = 'active'
WITH collect(DISTINCT s) + collect(DISTINCT n) AS entities
UNWIND entities AS e
WITH DISTINCT e
RETURN e.id AS id, e.kind AS type
LIMIT $limit`,
}

// Builder holds the validated template set.
type Builder struct {
	templates map[types.Scenario]*template
}

// NewBuilder validates every critical template and fails fast when one is
// missing or malformed. A bad template would silently corrupt every later
// request, so this is the one place startup-time validation is appropriate.
func NewBuilder() (*Builder, error) {
	critical := []types.Scenario{
		types.ScenarioNeighborhood,
		types.ScenarioTimeline,
		types.ScenarioConceptual,
	}

	templates := make(map[types.Scenario]*template, len(critical))
	for _, scenario := range critical {
		text, ok := scenarioTemplates[scenario]
		if !ok {
			return nil, &types.ConfigurationError{
				Component: "graphquery",
				Reason:    fmt.Sprintf("missing critical template %q", scenario),
			}
		}
		if err := validateTemplate(text); err != nil {
			return nil, &types.ConfigurationError{
				Component: "graphquery",
				Reason:    fmt.Sprintf("template %q is malformed", scenario),
				Err:       err,
			}
		}
		templates[scenario] = &template{scenario: scenario, text: text}
	}

	return &Builder{templates: templates}, nil
}

// validateTemplate checks that a template binds every required parameter
// and carries exactly one hop-bound placeholder.
func validateTemplate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("template is empty")
	}
	for _, p := range []string{paramSeedIDs, paramUserID, paramLimit} {
		if !strings.Contains(text, p) {
			return fmt.Errorf("template does not bind %s", p)
		}
	}
	if strings.Count(text, hopPlaceholder) != 1 {
		return fmt.Errorf("template must contain exactly one hop-bound placeholder")
	}
	return nil
}

// Build returns a fully-parameterized query for the scenario. Unknown
// scenario names fall back to neighborhood. The hop bound is clamped to
// [1,10] and the result limit must be positive.
func (b *Builder) Build(scenario types.Scenario, seeds []types.SeedEntity, userID string, maxHops, maxResults int) (*Query, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if maxResults <= 0 {
		return nil, fmt.Errorf("max results must be positive, got %d", maxResults)
	}

	tmpl, ok := b.templates[scenario]
	if !ok {
		tmpl = b.templates[types.ScenarioNeighborhood]
	}

	if maxHops < 1 {
		maxHops = 1
	} else if maxHops > 10 {
		maxHops = 10
	}

	seedIDs := make([]string, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.ID
	}

	return &Query{
		Scenario: tmpl.scenario,
		Text:     fmt.Sprintf(tmpl.text, maxHops),
		Params: map[string]any{
			"seed_ids": seedIDs,
			"user_id":  userID,
			"limit":    maxResults,
		},
	}, nil
}
