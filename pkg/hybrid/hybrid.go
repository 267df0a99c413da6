// Package hybrid blends vector similarity, graph proximity, and node
// importance into a single ranked result set, then applies query-time
// temporal/echo decay before final ranking.
package hybrid

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
	"github.com/cortex-db/cortex/pkg/embed"
	"github.com/cortex-db/cortex/pkg/graph"
	"github.com/cortex-db/cortex/pkg/linkrules"
	"github.com/cortex-db/cortex/pkg/vectorindex"
)

// Weights controls the alpha/beta/gamma blend of raw HybridSearch scores:
// vector similarity, graph proximity, and node importance respectively.
type Weights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// DefaultWeights returns the documented 0.6/0.3/0.1 blend.
func DefaultWeights() Weights {
	return Weights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}
}

// defaultGraphDepth is the BFS cap used when computing graph_score.
const defaultGraphDepth = 3

// Request parameterizes a HybridSearch call.
type Request struct {
	QueryVector []float32
	QueryText   string // used only if QueryVector is nil and Embedder is set
	AnchorIDs   []cortex.NodeId
	Limit       int
	Weights     Weights
	GraphDepth  int // 0 means defaultGraphDepth
	Decay       cortex.ScoreDecayConfig
	Filter      func(cortex.Node) bool
}

// Match is a single ranked hybrid search result.
type Match struct {
	Node      cortex.Node
	VecScore  float64
	GraphScore float64
	Raw       float64
	Score     float64 // raw after temporal/echo decay
}

// NodeStore is the subset of storage HybridSearch needs to resolve ids to
// live nodes.
type NodeStore interface {
	GetNode(ctx context.Context, id cortex.NodeId) (cortex.Node, bool, error)
}

// Searcher runs hybrid search over a vector index, a graph engine for
// anchor proximity, and an embedder for text queries.
type Searcher struct {
	store    NodeStore
	index    *vectorindex.Index
	engine   *graph.Engine
	embedder embed.Embedder
}

// NewSearcher constructs a Searcher. embedder may be nil if callers always
// supply QueryVector directly.
func NewSearcher(store NodeStore, index *vectorindex.Index, engine *graph.Engine, embedder embed.Embedder) *Searcher {
	return &Searcher{store: store, index: index, engine: engine, embedder: embedder}
}

// Search implements hybrid_search(query_text, anchor_ids, limit, config)
// from the scoring module: gather top-K (K = limit*3) candidates from the
// vector index, union in the 1-hop neighbors of every anchor, score each
// candidate as α·vec_score + β·graph_score + γ·importance, apply
// temporal/echo decay, and return the top Limit by decayed score.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Match, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	weights := req.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	depth := req.GraphDepth
	if depth <= 0 {
		depth = defaultGraphDepth
	}

	queryVec := req.QueryVector
	if queryVec == nil {
		if s.embedder == nil || req.QueryText == "" {
			return nil, cortex.NewError(cortex.ErrKindValidation, "hybrid search requires a query vector or text with an embedder", nil)
		}
		v, err := s.embedder.Embed(ctx, req.QueryText)
		if err != nil {
			return nil, cortex.NewError(cortex.ErrKindEmbedder, "embed query text", err)
		}
		queryVec = v
	}

	candidateK := limit * 3
	if candidateK < limit {
		candidateK = limit
	}
	raw, err := s.index.Search(queryVec, candidateK, 0, vectorindex.SearchOptions{})
	if err != nil {
		return nil, cortex.NewError(cortex.ErrKindStorage, "vector search", err)
	}

	candidateIDs := make(map[cortex.NodeId]bool, len(raw))
	for _, r := range raw {
		candidateIDs[r.ID] = true
	}

	// graph_score(n) = max over anchors of 1/(1+hops), via BFS from each
	// anchor capped at depth; also contributes each anchor's 1-hop
	// neighbors as extra candidates per spec.md §4.4 step 5.
	proximity := make(map[cortex.NodeId]float64, len(candidateIDs))
	if s.engine != nil {
		for _, anchor := range req.AnchorIDs {
			sub, err := s.engine.Traverse(ctx, graph.TraversalRequest{
				Start:     anchor,
				Direction: graph.DirectionBoth,
				Strategy:  graph.StrategyBFS,
				MaxDepth:  depth,
				Budget:    cortex.DefaultTraversalBudget(),
			})
			if err != nil {
				continue
			}
			for id, hops := range sub.Depth {
				p := 1.0 / (1.0 + float64(hops))
				if p > proximity[id] {
					proximity[id] = p
				}
			}
			for _, id := range sub.AtDepth(1) {
				candidateIDs[id] = true
			}
		}
	}

	now := time.Now().UTC()
	matches := make([]Match, 0, len(candidateIDs))
	for id := range candidateIDs {
		node, ok, err := s.store.GetNode(ctx, id)
		if err != nil || !ok {
			continue
		}
		if req.Filter != nil && !req.Filter(node) {
			continue
		}

		vecScore := 0.0
		if len(node.Embedding) > 0 {
			vecScore = float64(linkrules.CosineSimilarity(queryVec, node.Embedding))
		}
		graphScore := proximity[id]

		rawScore := weights.Alpha*vecScore + weights.Beta*graphScore + weights.Gamma*float64(node.Importance)
		decayed := ApplyScoreDecay(rawScore, node, now, req.Decay)

		matches = append(matches, Match{
			Node:       node,
			VecScore:   vecScore,
			GraphScore: graphScore,
			Raw:        rawScore,
			Score:      decayed,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ApplyScoreDecay reranks a raw hybrid score by the node's kind-specific
// temporal decay and access ("echo") reinforcement, ported verbatim from
// the original vector/scoring.rs apply_score_decay / spec.md §4.8:
//
//	kind_rate       = config.by_kind[node.kind] ?? config.daily_rate
//	days_idle       = (now - node.last_accessed_at) clamped to [0, max_age_days]
//	temporal_factor = max(min_factor, exp(-kind_rate * days_idle))
//	echo_factor     = min(echo_cap, 1 + node.access_count * echo_weight)
//	final_score     = raw * (1 - recency_bias)
//	                + raw * temporal_factor * echo_factor * recency_bias
//
// Disabled (recency_bias == 0, or cfg.Enabled == false) is the identity.
func ApplyScoreDecay(raw float64, node cortex.Node, now time.Time, cfg cortex.ScoreDecayConfig) float64 {
	recencyBias := float64(cfg.RecencyWeight)
	if !cfg.Enabled || recencyBias == 0 {
		return raw
	}

	kindRate := cfg.DailyRate
	if cfg.ByKind != nil {
		if r, ok := cfg.ByKind[node.Kind.String()]; ok {
			kindRate = r
		}
	}

	daysIdle := now.Sub(node.LastAccessedAt).Hours() / 24.0
	if daysIdle < 0 {
		daysIdle = 0
	}
	if cfg.MaxAgeDays > 0 && daysIdle > cfg.MaxAgeDays {
		daysIdle = cfg.MaxAgeDays
	}

	temporalFactor := math.Exp(-kindRate * daysIdle)
	if temporalFactor < cfg.MinFactor {
		temporalFactor = cfg.MinFactor
	}

	echoFactor := 1.0 + float64(node.AccessCount)*cfg.EchoWeight
	if echoFactor > cfg.EchoCap {
		echoFactor = cfg.EchoCap
	}

	return raw*(1-recencyBias) + raw*temporalFactor*echoFactor*recencyBias
}
