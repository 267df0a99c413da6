// Package autolinker runs the background cycle that discovers similarity
// and structural edges between nodes, decays stale edges, and flags
// contradictions, ported from the original linker/engine.rs state machine.
package autolinker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
	"github.com/cortex-db/cortex/pkg/decay"
	"github.com/cortex-db/cortex/pkg/embed"
	"github.com/cortex-db/cortex/pkg/linkrules"
	"github.com/cortex-db/cortex/pkg/metrics"
	"github.com/cortex-db/cortex/pkg/vectorindex"
)

// State names the auto-linker's position in its run_cycle state machine.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateProposing
	StateCommitting
	StateDecaying
	StateDeduping
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProposing:
		return "proposing"
	case StateCommitting:
		return "committing"
	case StateDecaying:
		return "decaying"
	case StateDeduping:
		return "deduping"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

const cursorMetadataKey = "autolinker.cursor"

type cursor struct {
	LastProcessedUpdatedAt time.Time `json:"last_processed_updated_at"`
	CycleCount             uint64    `json:"cycle_count"`
}

// CycleResult summarizes what one run_cycle did, for logging and tests.
type CycleResult struct {
	NodesScanned    int
	EdgesProposed   int
	EdgesCommitted  int
	EdgesDecayed    int
	EdgesPruned     int
	EdgesDeleted    int
	Contradictions  int
	FinalState      State
}

// AutoLinker drives the periodic linking/decay cycle described in the
// linker module.
type AutoLinker struct {
	store    storeAPI
	index    *vectorindex.Index
	embedder embed.Embedder
	cfg      cortex.AutoLinkerConfig
	metrics  *metrics.MetricsCollector
	log      *slog.Logger

	mu          sync.Mutex
	state       State
	cycleCount  uint64
	stats       *Metrics

	runNow   chan struct{}
	shutdown chan struct{}
	done     chan struct{}
}

// Stats returns the auto-linker's live metrics snapshot.
func (a *AutoLinker) Stats() Snapshot {
	return a.stats.Snapshot()
}

// storeAPI is the subset of *store.Store the auto-linker depends on.
type storeAPI interface {
	AllNodes(ctx context.Context) ([]cortex.Node, error)
	AllEdges(ctx context.Context) ([]cortex.Edge, error)
	PutEdge(ctx context.Context, e cortex.Edge) error
	DeleteEdge(ctx context.Context, id cortex.EdgeId, actor string) error
	PutMetadata(ctx context.Context, key string, value []byte) error
	GetMetadata(ctx context.Context, key string) ([]byte, bool, error)
}

// New constructs an AutoLinker. index must already be populated with every
// embedded node's vector (callers are responsible for keeping it in sync
// via embed.EmbedNode + index.Insert on write).
func New(store storeAPI, index *vectorindex.Index, embedder embed.Embedder, cfg cortex.AutoLinkerConfig, mc *metrics.MetricsCollector, log *slog.Logger) *AutoLinker {
	if log == nil {
		log = slog.Default()
	}
	return &AutoLinker{
		store:    store,
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		metrics:  mc,
		log:      log,
		state:    StateIdle,
		stats:    NewMetrics(),
		runNow:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State reports the auto-linker's current state machine position.
func (a *AutoLinker) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AutoLinker) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *AutoLinker) loadCursor(ctx context.Context) cursor {
	raw, ok, err := a.store.GetMetadata(ctx, cursorMetadataKey)
	if err != nil || !ok {
		return cursor{}
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}
	}
	return c
}

func (a *AutoLinker) saveCursor(ctx context.Context, c cursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return a.store.PutMetadata(ctx, cursorMetadataKey, raw)
}

// Run starts the background ticker loop. It blocks until ctx is cancelled
// or Shutdown is called; callers typically invoke it with `go`.
func (a *AutoLinker) Run(ctx context.Context) {
	defer close(a.done)

	if a.cfg.RunOnStartup {
		if _, err := a.RunCycle(ctx); err != nil {
			a.log.Error("autolinker startup cycle failed", "err", err)
		}
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown:
			return
		case <-ticker.C:
			if _, err := a.RunCycle(ctx); err != nil {
				a.log.Error("autolinker cycle failed", "err", err)
			}
		case <-a.runNow:
			if _, err := a.RunCycle(ctx); err != nil {
				a.log.Error("autolinker cycle failed", "err", err)
			}
		}
	}
}

// TriggerNow requests an out-of-band cycle run, coalescing with any
// already-pending request.
func (a *AutoLinker) TriggerNow() {
	select {
	case a.runNow <- struct{}{}:
	default:
	}
}

// Shutdown stops the background loop and waits for Run to return.
func (a *AutoLinker) Shutdown() {
	close(a.shutdown)
	<-a.done
}

// RunCycle executes one pass of the nine-step cycle: scan for nodes
// updated since the cursor, propose candidate edges via similarity search
// and structural rules, commit the proposals (capped by the per-cycle
// budgets), optionally decay existing edges, optionally run a dedup sweep,
// advance the cursor, and record metrics.
func (a *AutoLinker) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{}
	a.stats.ResetCycleMetrics()
	cycleStart := time.Now().UTC()

	// 1. SCANNING: find nodes updated since the cursor.
	a.setState(StateScanning)
	cur := a.loadCursor(ctx)
	allNodes, err := a.store.AllNodes(ctx)
	if err != nil {
		a.setState(StateIdle)
		return result, cortex.NewError(cortex.ErrKindStorage, "list nodes for autolinker scan", err)
	}
	allEdges, err := a.store.AllEdges(ctx)
	if err != nil {
		a.setState(StateIdle)
		return result, cortex.NewError(cortex.ErrKindStorage, "list edges for autolinker scan", err)
	}
	a.stats.SetTotalNodes(uint64(len(allNodes)))
	a.stats.SetTotalEdges(uint64(len(allEdges)))

	var candidates []cortex.Node
	newestSeen := cur.LastProcessedUpdatedAt
	for _, n := range allNodes {
		if n.UpdatedAt.After(cur.LastProcessedUpdatedAt) {
			candidates = append(candidates, n)
			if n.UpdatedAt.After(newestSeen) {
				newestSeen = n.UpdatedAt
			}
		}
	}
	if len(candidates) > a.cfg.MaxNodesPerCycle {
		candidates = candidates[:a.cfg.MaxNodesPerCycle]
	}
	result.NodesScanned = len(candidates)
	a.stats.AddNodesProcessed(uint64(len(candidates)))
	a.stats.SetBacklogSize(uint64(len(candidates)))

	// 2. PROPOSING: similarity search + structural rules per candidate.
	a.setState(StateProposing)
	structuralRules := linkrules.DefaultStructuralRules()
	var proposals []linkrules.Proposal
	var dedupCandidates []dedupPair
	var contradictions int

	nodeByID := make(map[cortex.NodeId]cortex.Node, len(allNodes))
	for _, n := range allNodes {
		nodeByID[n.ID] = n
	}

	// matchCount tracks, per candidate, how many similarity edges it has
	// already matched against this cycle. A node that keeps matching past
	// GenericContentThreshold reads as generic (a hub of shared vocabulary
	// rather than a meaningful relation) and stops collecting more.
	matchCount := make(map[cortex.NodeId]int)
	generic := make(map[cortex.NodeId]bool)

	for _, cand := range candidates {
		if len(cand.Embedding) > 0 && a.index != nil {
			neighbors, err := a.index.Search(cand.Embedding, a.cfg.Similarity.AutoLinkK, 0, vectorindex.SearchOptions{})
			if err == nil {
				for _, res := range neighbors {
					if res.ID == cand.ID {
						continue
					}
					neighbor, ok := nodeByID[res.ID]
					if !ok {
						continue
					}
					if float32(res.Score) >= a.cfg.Similarity.DedupThreshold {
						dedupCandidates = append(dedupCandidates, dedupPair{From: cand.ID, To: neighbor.ID, Similarity: float32(res.Score)})
					}
					suppressed := a.cfg.GenericContentThreshold > 0 && matchCount[cand.ID] >= a.cfg.GenericContentThreshold
					if suppressed && !generic[cand.ID] {
						generic[cand.ID] = true
						a.log.Info("autolinker: candidate has generic content, suppressing further similarity edges",
							"node", cand.ID, "matches", matchCount[cand.ID])
					}
					if !suppressed {
						if p, ok := (linkrules.SimilarityLinkRule{}).Evaluate(cand, neighbor, float32(res.Score), a.cfg.Similarity); ok {
							proposals = append(proposals, p)
							matchCount[cand.ID]++
						}
					}
					if linkrules.IsContradiction(cand, neighbor, float32(res.Score), a.cfg.Similarity) {
						contradictions++
						proposals = append(proposals, linkrules.Proposal{
							From:     cand.ID,
							To:       neighbor.ID,
							Relation: cortex.RelationContradicts,
							Weight:   float32(res.Score),
							Prov:     cortex.AutoContradictionProvenance("negation_asymmetry"),
						})
					}
				}
			}
		}

		for _, n := range allNodes {
			if n.ID == cand.ID {
				continue
			}
			for _, rule := range structuralRules {
				if p, ok := rule.Evaluate(cand, n, 0, a.cfg.Similarity); ok {
					proposals = append(proposals, p)
				}
			}
		}
	}
	proposals = mergeProposals(proposals)
	result.EdgesProposed = len(proposals)
	result.Contradictions = contradictions
	a.stats.AddContradictionsFound(uint64(contradictions))

	// 3. COMMITTING: persist proposals, capped by per-cycle and per-node budgets.
	a.setState(StateCommitting)
	edgesPerNode := make(map[cortex.NodeId]int)
	committed := 0
	for _, p := range proposals {
		if committed >= a.cfg.MaxEdgesPerCycle {
			break
		}
		if edgesPerNode[p.From] >= a.cfg.MaxEdgesPerNode {
			continue
		}
		edge := cortex.NewEdge(p.From, p.To, p.Relation, p.Weight, p.Prov)
		if err := edge.Validate(); err != nil {
			continue
		}
		if err := a.store.PutEdge(ctx, edge); err != nil {
			continue
		}
		edgesPerNode[p.From]++
		committed++
	}
	result.EdgesCommitted = committed
	a.stats.AddEdgesCreated(uint64(committed))

	// 4/5. DECAY?: every DecayEveryNCycles cycles, decay existing edges.
	if a.cfg.DecayEveryNCycles > 0 && a.cycleCount%a.cfg.DecayEveryNCycles == 0 {
		a.setState(StateDecaying)
		decayed, pruned, deleted, err := a.runDecay(ctx, nodeByID, allEdges)
		if err != nil {
			a.log.Error("autolinker decay pass failed", "err", err)
		}
		result.EdgesDecayed = decayed
		result.EdgesPruned = pruned
		result.EdgesDeleted = deleted
		a.stats.AddEdgesPruned(uint64(pruned))
		a.stats.AddEdgesDeleted(uint64(deleted))
	}

	// 6/7. DEDUP?: every DedupEveryNCycles cycles, flag near-duplicate pairs
	// found during proposing with a supersedes edge. Cortex never merges
	// node contents automatically; it only ever records that a pair looks
	// like a duplicate and leaves reconciliation to whatever operator
	// surface reads the supersedes edges back out.
	if a.cfg.DedupEveryNCycles > 0 && a.cycleCount%a.cfg.DedupEveryNCycles == 0 {
		a.setState(StateDeduping)
		duplicates := a.runDedup(ctx, dedupCandidates, allEdges)
		a.stats.AddDuplicatesFound(uint64(duplicates))
	}

	// 8. Advance cursor, 9. DONE.
	a.cycleCount++
	if err := a.saveCursor(ctx, cursor{LastProcessedUpdatedAt: newestSeen, CycleCount: a.cycleCount}); err != nil {
		a.log.Error("autolinker failed to persist cursor", "err", err)
	}
	a.setState(StateDone)

	a.stats.IncrementCycle()
	a.stats.UpdateCursor(newestSeen)
	a.stats.SetCycleDuration(time.Since(cycleStart))

	if a.metrics != nil {
		a.metrics.RecordAutoLinkerCycle(result.EdgesCommitted, len(candidates))
	}
	return result, nil
}

// dedupPair is a candidate/neighbor pair whose similarity search score met
// DedupThreshold during proposing, carried forward to the dedup step so it
// doesn't need to be re-searched.
type dedupPair struct {
	From       cortex.NodeId
	To         cortex.NodeId
	Similarity float32
}

// runDedup emits a supersedes edge (and bumps DuplicatesFound) for every
// pair in candidates that doesn't already have one, in either direction.
// It never touches node content: merging is left to whatever surface reads
// the supersedes edges back out.
func (a *AutoLinker) runDedup(ctx context.Context, candidates []dedupPair, existingEdges []cortex.Edge) int {
	has := make(map[[2]cortex.NodeId]bool, len(existingEdges))
	for _, e := range existingEdges {
		if e.Relation == cortex.RelationSupersedes {
			has[[2]cortex.NodeId{e.From, e.To}] = true
			has[[2]cortex.NodeId{e.To, e.From}] = true
		}
	}

	flagged := 0
	for _, c := range candidates {
		key := [2]cortex.NodeId{c.From, c.To}
		if has[key] {
			continue
		}
		edge := cortex.NewEdge(c.From, c.To, cortex.RelationSupersedes, c.Similarity, cortex.AutoDedupProvenance(c.Similarity))
		if err := edge.Validate(); err != nil {
			continue
		}
		if err := a.store.PutEdge(ctx, edge); err != nil {
			a.log.Error("autolinker failed to record duplicate pair", "from", c.From, "to", c.To, "err", err)
			continue
		}
		has[key] = true
		has[[2]cortex.NodeId{c.To, c.From}] = true
		flagged++
	}
	return flagged
}

// mergeProposals collapses proposals that share a (From, To, Relation) key,
// keeping the highest-weight proposal per key so two rules firing on the
// same pair in one cycle commit a single edge instead of two.
func mergeProposals(proposals []linkrules.Proposal) []linkrules.Proposal {
	type key struct {
		from, to cortex.NodeId
		relation cortex.Relation
	}
	best := make(map[key]linkrules.Proposal, len(proposals))
	order := make([]key, 0, len(proposals))
	for _, p := range proposals {
		k := key{p.From, p.To, p.Relation}
		existing, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = p
			continue
		}
		if p.Weight > existing.Weight {
			best[k] = p
		}
	}
	out := make([]linkrules.Proposal, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func (a *AutoLinker) runDecay(ctx context.Context, nodeByID map[cortex.NodeId]cortex.Node, edges []cortex.Edge) (decayed, pruned, deleted int, err error) {
	now := time.Now().UTC()
	endpoints := make(map[cortex.NodeId]decay.EndpointInfo, len(nodeByID))
	for id, n := range nodeByID {
		endpoints[id] = decay.EndpointInfo{Importance: n.Importance, LastAccessedAt: n.LastAccessedAt}
	}
	results := decay.Batch(edges, endpoints, now, a.cfg.Decay)

	byID := make(map[cortex.EdgeId]cortex.Edge, len(edges))
	for _, e := range edges {
		byID[e.ID] = e
	}

	for _, r := range results {
		e, ok := byID[r.EdgeID]
		if !ok {
			continue
		}
		switch r.Outcome {
		case decay.OutcomeKept:
			if r.NewWeight != e.Weight {
				e.Weight = r.NewWeight
				e.UpdatedAt = now
				if putErr := a.store.PutEdge(ctx, e); putErr == nil {
					decayed++
				}
			}
		case decay.OutcomePruned:
			e.Weight = r.NewWeight
			e.UpdatedAt = now
			if putErr := a.store.PutEdge(ctx, e); putErr == nil {
				pruned++
			}
		case decay.OutcomeDeleted:
			if delErr := a.store.DeleteEdge(ctx, e.ID, "autolinker"); delErr == nil {
				deleted++
			}
		}
	}
	return decayed, pruned, deleted, nil
}
