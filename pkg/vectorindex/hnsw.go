// Package vectorindex implements an in-memory HNSW approximate nearest
// neighbor index over node embeddings, persisted to a sidecar file rather
// than a SQLite virtual table so it can be rebuilt independently of the
// Store's transaction log.
package vectorindex

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the index's configured dimensionality.
var ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

// Config controls HNSW graph construction and search quality.
type Config struct {
	M               int
	EfConstruction  int
	EfSearch        int
	LevelMultiplier float64
}

// DefaultConfig returns the documented HNSW defaults.
func DefaultConfig() Config {
	return Config{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16.0),
	}
}

type hnswNode struct {
	id        cortex.NodeId
	vector    []float32
	level     int
	neighbors [][]cortex.NodeId
	mu        sync.RWMutex
}

// Index is an in-memory HNSW approximate nearest neighbor index over node
// embeddings. Safe for concurrent use.
type Index struct {
	config     Config
	dimensions int

	mu         sync.RWMutex
	nodes      map[cortex.NodeId]*hnswNode
	entryPoint cortex.NodeId
	hasEntry   bool
	maxLevel   int
}

// New creates an empty index for vectors of the given dimensionality.
func New(dimensions int, config Config) *Index {
	if config.M == 0 {
		config = DefaultConfig()
	}
	return &Index{
		config:     config,
		dimensions: dimensions,
		nodes:      make(map[cortex.NodeId]*hnswNode),
	}
}

// Dimension reports the vector length this index was built for.
func (h *Index) Dimension() int { return h.dimensions }

// Size reports the number of indexed vectors.
func (h *Index) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Insert adds or replaces a vector under id.
func (h *Index) Insert(id cortex.NodeId, vec []float32) error {
	if len(vec) != h.dimensions {
		return ErrDimensionMismatch
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.nodes[id]; exists {
		h.removeLocked(id)
	}

	normalized := normalize(vec)
	level := h.randomLevel()
	node := &hnswNode{id: id, vector: normalized, level: level, neighbors: make([][]cortex.NodeId, level+1)}
	for i := range node.neighbors {
		node.neighbors[i] = make([]cortex.NodeId, 0, h.config.M)
	}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	ep := h.entryPoint
	epLevel := h.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = h.searchLayerSingle(normalized, ep, l)
	}

	top := level
	if epLevel < top {
		top = epLevel
	}
	for l := top; l >= 0; l-- {
		candidates := h.searchLayer(normalized, ep, h.config.EfConstruction, l)
		neighbors := h.selectNeighbors(normalized, candidates, h.config.M)
		node.neighbors[l] = neighbors

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				if len(neighbor.neighbors[l]) < h.config.M {
					neighbor.neighbors[l] = append(neighbor.neighbors[l], id)
				} else {
					all := append(append([]cortex.NodeId{}, neighbor.neighbors[l]...), id)
					neighbor.neighbors[l] = h.selectNeighbors(neighbor.vector, all, h.config.M)
				}
			}
			neighbor.mu.Unlock()
		}
		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}
	return nil
}

// Remove deletes id from the index, if present.
func (h *Index) Remove(id cortex.NodeId) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Index) removeLocked(id cortex.NodeId) {
	node, exists := h.nodes[id]
	if !exists {
		return
	}
	for l := 0; l <= node.level; l++ {
		for _, neighborID := range node.neighbors[l] {
			if neighbor, ok := h.nodes[neighborID]; ok {
				neighbor.mu.Lock()
				if len(neighbor.neighbors) > l {
					kept := neighbor.neighbors[l][:0]
					for _, nid := range neighbor.neighbors[l] {
						if nid != id {
							kept = append(kept, nid)
						}
					}
					neighbor.neighbors[l] = kept
				}
				neighbor.mu.Unlock()
			}
		}
	}
	delete(h.nodes, id)

	if h.hasEntry && h.entryPoint == id {
		h.hasEntry = false
		h.maxLevel = 0
		for nid, n := range h.nodes {
			if !h.hasEntry || n.level > h.maxLevel {
				h.maxLevel = n.level
				h.entryPoint = nid
				h.hasEntry = true
			}
		}
	}
}

// Result is one match returned by Search.
type Result struct {
	ID    cortex.NodeId
	Score float64 // cosine similarity, higher is better
}

// SearchOptions narrows a Search call: Filter, if non-nil, is consulted
// before a candidate counts toward k, and Oversample widens the internal
// candidate pool so filtering doesn't starve the result set.
type SearchOptions struct {
	Filter     func(id cortex.NodeId) bool
	Oversample int // multiplies k when gathering candidates; 0 means 3x
}

// Search returns the k nearest neighbors to query by cosine similarity,
// applying opts.Filter (if set) and honoring minSimilarity as a floor.
func (h *Index) Search(query []float32, k int, minSimilarity float64, opts SearchOptions) ([]Result, error) {
	if len(query) != h.dimensions {
		return nil, ErrDimensionMismatch
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return nil, nil
	}

	oversample := opts.Oversample
	if oversample <= 0 {
		oversample = 3
	}
	ef := h.config.EfSearch
	if want := k * oversample; want > ef {
		ef = want
	}

	normalized := normalize(query)
	ep := h.entryPoint
	for l := h.maxLevel; l > 0; l-- {
		ep = h.searchLayerSingle(normalized, ep, l)
	}
	candidates := h.searchLayer(normalized, ep, ef, 0)

	results := make([]Result, 0, k)
	for _, candidateID := range candidates {
		if opts.Filter != nil && !opts.Filter(candidateID) {
			continue
		}
		node := h.nodes[candidateID]
		similarity := dotProduct(normalized, node.vector)
		if similarity >= minSimilarity {
			results = append(results, Result{ID: candidateID, Score: similarity})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild discards the current graph and re-inserts every (id, vector) pair,
// used after a bulk load where insertion order/levels should be refreshed.
func (h *Index) Rebuild(vectors map[cortex.NodeId][]float32) error {
	h.mu.Lock()
	h.nodes = make(map[cortex.NodeId]*hnswNode)
	h.hasEntry = false
	h.maxLevel = 0
	h.mu.Unlock()

	for id, vec := range vectors {
		if err := h.Insert(id, vec); err != nil {
			return err
		}
	}
	return nil
}

func (h *Index) searchLayerSingle(query []float32, entryID cortex.NodeId, level int) cortex.NodeId {
	current := entryID
	currentDist := 1.0 - dotProduct(query, h.nodes[current].vector)
	for {
		changed := false
		node := h.nodes[current]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			dist := 1.0 - dotProduct(query, neighbor.vector)
			if dist < currentDist {
				current = neighborID
				currentDist = dist
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

func (h *Index) searchLayer(query []float32, entryID cortex.NodeId, ef int, level int) []cortex.NodeId {
	visited := map[cortex.NodeId]bool{entryID: true}

	candidates := &distHeap{}
	heap.Init(candidates)
	results := &distHeap{}
	heap.Init(results)

	entryDist := 1.0 - dotProduct(query, h.nodes[entryID].vector)
	heap.Push(candidates, distItem{id: entryID, dist: entryDist, isMax: false})
	heap.Push(results, distItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)
		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}
		node := h.nodes[closest.id]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			neighbor := h.nodes[neighborID]
			dist := 1.0 - dotProduct(query, neighbor.vector)
			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, distItem{id: neighborID, dist: dist, isMax: false})
				heap.Push(results, distItem{id: neighborID, dist: dist, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]cortex.NodeId, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(distItem).id
	}
	return out
}

func (h *Index) selectNeighbors(query []float32, candidates []cortex.NodeId, m int) []cortex.NodeId {
	if len(candidates) <= m {
		return candidates
	}
	type distNode struct {
		id   cortex.NodeId
		dist float64
	}
	dists := make([]distNode, len(candidates))
	for i, cid := range candidates {
		dists[i] = distNode{id: cid, dist: 1.0 - dotProduct(query, h.nodes[cid].vector)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	out := make([]cortex.NodeId, m)
	for i := 0; i < m; i++ {
		out[i] = dists[i].id
	}
	return out
}

func (h *Index) randomLevel() int {
	r := rand.Float64()
	return int(-math.Log(r) * h.config.LevelMultiplier)
}

type distItem struct {
	id    cortex.NodeId
	dist  float64
	isMax bool
}

type distHeap []distItem

func (dh distHeap) Len() int { return len(dh) }
func (dh distHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh distHeap) Swap(i, j int) { dh[i], dh[j] = dh[j], dh[i] }
func (dh *distHeap) Push(x interface{}) {
	*dh = append(*dh, x.(distItem))
}
func (dh *distHeap) Pop() interface{} {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[:n-1]
	return x
}
