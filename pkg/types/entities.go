package types

import (
	"time"
)

// EntityType identifies which store partition an entity lives in.
type EntityType string

const (
	EntityTypeMemoryUnit EntityType = "memory_unit"
	EntityTypeConcept    EntityType = "concept"
	EntityTypeArtifact   EntityType = "artifact"
)

// Scenario selects which graph traversal template the pipeline uses.
type Scenario string

const (
	ScenarioNeighborhood Scenario = "neighborhood"
	ScenarioTimeline     Scenario = "timeline"
	ScenarioConceptual   Scenario = "conceptual"
)

// SeedEntity is an entity found directly via vector similarity to a key
// phrase. Seeds are ephemeral; they exist only inside a single request.
type SeedEntity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Similarity float64    `json:"similarity"`
}

// CandidateEntity is any entity under consideration after graph expansion:
// the seeds themselves plus their graph-discovered neighbors. Similarity is
// meaningful only when WasSeed is true.
type CandidateEntity struct {
	ID          string     `json:"id"`
	Type        EntityType `json:"type"`
	WasSeed     bool       `json:"was_seed"`
	HopDistance int        `json:"hop_distance"`
	Similarity  float64    `json:"similarity,omitempty"`
}

// EntityMetadata is the lightweight per-entity record fetched before
// scoring. A candidate with no metadata row is scored with neutral defaults.
type EntityMetadata struct {
	ID           string     `json:"id"`
	Type         EntityType `json:"type"`
	Importance   float64    `json:"importance"`
	CreatedAt    time.Time  `json:"created_at"`
	LastModified time.Time  `json:"last_modified"`
}

// ScoreBreakdown holds the per-dimension components of a final score.
type ScoreBreakdown struct {
	Semantic   float64 `json:"semantic"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
}

// ScoredEntity is a candidate with its weighted final score attached.
type ScoredEntity struct {
	ID          string         `json:"id"`
	Type        EntityType     `json:"type"`
	FinalScore  float64        `json:"final_score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	WasSeed     bool           `json:"was_seed"`
	HopDistance int            `json:"hop_distance"`
}

// RetrievedRecord is a fully hydrated entity ready for the downstream
// language model: content plus the scoring trail that selected it.
type RetrievedRecord struct {
	ID           string         `json:"id"`
	Type         EntityType     `json:"type"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Importance   float64        `json:"importance"`
	CreatedAt    time.Time      `json:"created_at"`
	LastModified time.Time      `json:"last_modified"`
	FinalScore   float64        `json:"final_score"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
}

// ParseScenario maps a raw scenario name onto a known Scenario. Unknown
// names fall back to the neighborhood scenario rather than failing, so a
// caller with a stale scenario list still gets a usable traversal.
func ParseScenario(raw string) Scenario {
	switch Scenario(raw) {
	case ScenarioNeighborhood, ScenarioTimeline, ScenarioConceptual:
		return Scenario(raw)
	default:
		return ScenarioNeighborhood
	}
}
