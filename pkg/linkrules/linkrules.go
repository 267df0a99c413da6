// Package linkrules decides which auto-generated edges should exist between
// a candidate node and the rest of the graph: similarity links, structural
// links (same session, shared tags, temporal proximity), and contradiction
// detection between near-duplicate nodes.
package linkrules

import (
	"math"
	"strings"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Proposal is one edge a LinkRule wants the AutoLinker to create.
type Proposal struct {
	From, To cortex.NodeId
	Relation cortex.Relation
	Weight   float32
	Prov     cortex.EdgeProvenance
}

// LinkRule evaluates one candidate node against one neighbor and proposes
// zero or one edge.
type LinkRule interface {
	Name() string
	Evaluate(candidate, neighbor cortex.Node, similarity float32, cfg cortex.SimilarityConfig) (Proposal, bool)
}

// SimilarityLinkRule proposes a related_to edge when cosine similarity
// clears AutoLinkThreshold but stays below DedupThreshold (at or above
// DedupThreshold is the dedup engine's territory, not auto-linking).
type SimilarityLinkRule struct{}

func (SimilarityLinkRule) Name() string { return "similarity" }

func (SimilarityLinkRule) Evaluate(candidate, neighbor cortex.Node, similarity float32, cfg cortex.SimilarityConfig) (Proposal, bool) {
	if similarity < cfg.AutoLinkThreshold || similarity >= cfg.DedupThreshold {
		return Proposal{}, false
	}
	return Proposal{
		From:     candidate.ID,
		To:       neighbor.ID,
		Relation: cortex.RelationRelatedTo,
		Weight:   similarity,
		Prov:     cortex.AutoSimilarityProvenance(similarity),
	}, true
}

// SameSessionRule proposes a related_to edge between two nodes sharing a
// non-empty source session.
type SameSessionRule struct{}

func (SameSessionRule) Name() string { return "same_session" }

func (SameSessionRule) Evaluate(candidate, neighbor cortex.Node, _ float32, _ cortex.SimilarityConfig) (Proposal, bool) {
	if candidate.Source.Session == nil || neighbor.Source.Session == nil {
		return Proposal{}, false
	}
	if *candidate.Source.Session == "" || *candidate.Source.Session != *neighbor.Source.Session {
		return Proposal{}, false
	}
	return Proposal{
		From:     candidate.ID,
		To:       neighbor.ID,
		Relation: cortex.RelationRelatedTo,
		Weight:   0.5,
		Prov:     cortex.AutoStructuralProvenance("same_session"),
	}, true
}

// SharedTagsRule proposes a related_to edge when two nodes share at least
// two tags.
type SharedTagsRule struct{}

func (SharedTagsRule) Name() string { return "shared_tags" }

func (SharedTagsRule) Evaluate(candidate, neighbor cortex.Node, _ float32, _ cortex.SimilarityConfig) (Proposal, bool) {
	if sharedTagCount(candidate.Tags, neighbor.Tags) < 2 {
		return Proposal{}, false
	}
	return Proposal{
		From:     candidate.ID,
		To:       neighbor.ID,
		Relation: cortex.RelationRelatedTo,
		Weight:   0.4,
		Prov:     cortex.AutoStructuralProvenance("shared_tags"),
	}, true
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// TemporalProximityRule proposes a led_to edge between two nodes from the
// same agent created within 5 minutes of each other, oldest to newest.
type TemporalProximityRule struct{}

func (TemporalProximityRule) Name() string { return "temporal_proximity" }

const temporalProximityWindow = 5 * time.Minute

func (TemporalProximityRule) Evaluate(candidate, neighbor cortex.Node, _ float32, _ cortex.SimilarityConfig) (Proposal, bool) {
	if candidate.Source.Agent == "" || candidate.Source.Agent != neighbor.Source.Agent {
		return Proposal{}, false
	}
	delta := candidate.CreatedAt.Sub(neighbor.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > temporalProximityWindow {
		return Proposal{}, false
	}
	from, to := neighbor.ID, candidate.ID
	if candidate.CreatedAt.Before(neighbor.CreatedAt) {
		from, to = candidate.ID, neighbor.ID
	}
	return Proposal{
		From:     from,
		To:       to,
		Relation: cortex.RelationLedTo,
		Weight:   0.3,
		Prov:     cortex.AutoStructuralProvenance("temporal_proximity"),
	}, true
}

// DefaultStructuralRules returns the three built-in structural LinkRule
// implementations in evaluation order.
func DefaultStructuralRules() []LinkRule {
	return []LinkRule{SameSessionRule{}, SharedTagsRule{}, TemporalProximityRule{}}
}

// negationLexicon is the fixed set of negation markers the contradiction
// heuristic checks for asymmetry between two otherwise-similar nodes.
var negationLexicon = []string{"not", "never", "no longer", "isn't", "won't", "cannot"}

func containsNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, neg := range negationLexicon {
		if strings.Contains(lower, neg) {
			return true
		}
	}
	return false
}

// IsContradiction reports whether candidate and neighbor look like a
// contradiction: cosine similarity at or above ContradictionThreshold (so
// they are clearly about the same thing) and exactly one of the two bodies
// carries a negation marker the other doesn't.
func IsContradiction(candidate, neighbor cortex.Node, similarity float32, cfg cortex.SimilarityConfig) bool {
	if similarity < cfg.ContradictionThreshold {
		return false
	}
	a := containsNegation(candidate.Title + " " + candidate.Body)
	b := containsNegation(neighbor.Title + " " + neighbor.Body)
	return a != b
}

// CosineSimilarity computes cosine similarity between two equal-length
// embeddings, returning 0 for mismatched or zero-norm inputs.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
