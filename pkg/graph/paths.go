package graph

import (
	"container/heap"
	"context"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// FindPaths dispatches to the algorithm named in req and returns the
// resulting paths. For PathAlgoYenK the first path is the cheapest; see
// yenKShortest for the order of the rest.
func (e *Engine) FindPaths(ctx context.Context, req PathRequest) (PathResult, error) {
	if err := e.ensureCache(ctx); err != nil {
		return PathResult{}, err
	}
	switch req.Algorithm {
	case PathAlgoDijkstra:
		p, ok := e.dijkstra(req.From, req.To, req.MaxHops, req.Budget)
		if !ok {
			return PathResult{}, nil
		}
		return PathResult{Paths: []Path{p}}, nil
	case PathAlgoYenK:
		k := req.K
		if k <= 0 {
			k = 1
		}
		return PathResult{Paths: e.yenKShortest(req.From, req.To, k, req.MaxHops, req.Budget)}, nil
	default:
		p, ok := e.bfsPath(req.From, req.To, req.MaxHops, req.Budget)
		if !ok {
			return PathResult{}, nil
		}
		return PathResult{Paths: []Path{p}}, nil
	}
}

// pathStep records how a node was reached during a path search: from which
// predecessor node, via which edge, and that edge's weight (needed to
// reconstruct TotalWeight as a product rather than re-fetching each edge).
type pathStep struct {
	node   cortex.NodeId
	edge   cortex.EdgeId
	weight float32
}

// totalWeight computes the product of edge weights for a path reconstructed
// from prev, walking from to back to from.
func totalWeight(prev map[cortex.NodeId]pathStep, from, to cortex.NodeId) float64 {
	w := 1.0
	cur := to
	for cur != from {
		step := prev[cur]
		w *= float64(step.weight)
		cur = step.node
	}
	return w
}

func (e *Engine) bfsPath(from, to cortex.NodeId, maxHops int, budget cortex.TraversalBudget) (Path, bool) {
	prev := map[cortex.NodeId]pathStep{}
	visited := map[cortex.NodeId]bool{from: true}
	queue := []cortex.NodeId{from}
	depth := map[cortex.NodeId]int{from: 0}

	for len(queue) > 0 {
		if budget.MaxVisited > 0 && len(visited) >= budget.MaxVisited {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return reconstructPath(prev, from, to), true
		}
		if maxHops > 0 && depth[cur] >= maxHops {
			continue
		}
		for _, ent := range e.cache.GetOutgoing(cur) {
			if !visited[ent.Target] {
				visited[ent.Target] = true
				prev[ent.Target] = pathStep{cur, ent.EdgeID, ent.Weight}
				depth[ent.Target] = depth[cur] + 1
				queue = append(queue, ent.Target)
			}
		}
	}
	if from == to {
		return Path{Nodes: []cortex.NodeId{from}, TotalWeight: 1}, true
	}
	return Path{}, false
}

func reconstructPath(prev map[cortex.NodeId]pathStep, from, to cortex.NodeId) Path {
	var nodes []cortex.NodeId
	var edges []cortex.EdgeId
	cur := to
	for cur != from {
		nodes = append([]cortex.NodeId{cur}, nodes...)
		step := prev[cur]
		edges = append([]cortex.EdgeId{step.edge}, edges...)
		cur = step.node
	}
	nodes = append([]cortex.NodeId{from}, nodes...)
	return Path{Nodes: nodes, Edges: edges, TotalCost: float64(len(edges)), TotalWeight: totalWeight(prev, from, to)}
}

type dijkstraItem struct {
	id   cortex.NodeId
	cost float64
}

type dijkstraQueue []dijkstraItem

func (q dijkstraQueue) Len() int            { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q dijkstraQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *dijkstraQueue) Push(x interface{}) { *q = append(*q, x.(dijkstraItem)) }
func (q *dijkstraQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra finds the lowest-cost path where edge cost is (1 - weight), so
// stronger edges are preferred over weaker ones of equal hop count.
func (e *Engine) dijkstra(from, to cortex.NodeId, maxHops int, budget cortex.TraversalBudget) (Path, bool) {
	dist := map[cortex.NodeId]float64{from: 0}
	prev := map[cortex.NodeId]pathStep{}
	hops := map[cortex.NodeId]int{from: 0}
	visited := map[cortex.NodeId]bool{}

	pq := &dijkstraQueue{{from, 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		if budget.MaxVisited > 0 && len(visited) >= budget.MaxVisited {
			break
		}
		cur := heap.Pop(pq).(dijkstraItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if cur.id == to {
			break
		}
		if maxHops > 0 && hops[cur.id] >= maxHops {
			continue
		}
		for _, ent := range e.cache.GetOutgoing(cur.id) {
			cost := dist[cur.id] + float64(1-ent.Weight)
			if existing, ok := dist[ent.Target]; !ok || cost < existing {
				dist[ent.Target] = cost
				prev[ent.Target] = pathStep{cur.id, ent.EdgeID, ent.Weight}
				hops[ent.Target] = hops[cur.id] + 1
				heap.Push(pq, dijkstraItem{ent.Target, cost})
			}
		}
	}

	if _, ok := dist[to]; !ok {
		if from == to {
			return Path{Nodes: []cortex.NodeId{from}, TotalWeight: 1}, true
		}
		return Path{}, false
	}
	var nodes []cortex.NodeId
	var edges []cortex.EdgeId
	cur := to
	for cur != from {
		nodes = append([]cortex.NodeId{cur}, nodes...)
		step := prev[cur]
		edges = append([]cortex.EdgeId{step.edge}, edges...)
		cur = step.node
	}
	nodes = append([]cortex.NodeId{from}, nodes...)
	return Path{Nodes: nodes, Edges: edges, TotalCost: dist[to], TotalWeight: totalWeight(prev, from, to)}, true
}

// yenKShortest returns up to k loopless paths from from to to. The first is
// the cheapest path; each later one is found by blocking one edge of the
// previously accepted path at a time, re-running Dijkstra from from, and
// taking the first result not already accepted. It stops when no blocked
// edge yields a new path. There is no spur-node enumeration and no candidate
// heap, so the result is not guaranteed to be the k cheapest paths, and
// paths after the first are in the order found, not sorted by TotalCost.
func (e *Engine) yenKShortest(from, to cortex.NodeId, k, maxHops int, budget cortex.TraversalBudget) []Path {
	first, ok := e.dijkstra(from, to, maxHops, budget)
	if !ok {
		return nil
	}
	accepted := []Path{first}
	blockedEdges := map[cortex.EdgeId]bool{}

	for len(accepted) < k {
		last := accepted[len(accepted)-1]
		improved := false
		for i := range last.Edges {
			blockedEdges[last.Edges[i]] = true
			candidate, ok := e.dijkstraAvoiding(from, to, maxHops, budget, blockedEdges)
			delete(blockedEdges, last.Edges[i])
			if !ok || pathsEqual(candidate, last) || containsPath(accepted, candidate) {
				continue
			}
			accepted = append(accepted, candidate)
			improved = true
			break
		}
		if !improved {
			break
		}
	}
	return accepted
}

func (e *Engine) dijkstraAvoiding(from, to cortex.NodeId, maxHops int, budget cortex.TraversalBudget, blocked map[cortex.EdgeId]bool) (Path, bool) {
	dist := map[cortex.NodeId]float64{from: 0}
	prev := map[cortex.NodeId]pathStep{}
	hops := map[cortex.NodeId]int{from: 0}
	visited := map[cortex.NodeId]bool{}

	pq := &dijkstraQueue{{from, 0}}
	heap.Init(pq)
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(dijkstraItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if maxHops > 0 && hops[cur.id] >= maxHops {
			continue
		}
		for _, ent := range e.cache.GetOutgoing(cur.id) {
			if blocked[ent.EdgeID] {
				continue
			}
			cost := dist[cur.id] + float64(1-ent.Weight)
			if existing, ok := dist[ent.Target]; !ok || cost < existing {
				dist[ent.Target] = cost
				prev[ent.Target] = pathStep{cur.id, ent.EdgeID, ent.Weight}
				hops[ent.Target] = hops[cur.id] + 1
				heap.Push(pq, dijkstraItem{ent.Target, cost})
			}
		}
	}
	if _, ok := dist[to]; !ok {
		return Path{}, false
	}
	var nodes []cortex.NodeId
	var edges []cortex.EdgeId
	cur := to
	for cur != from {
		nodes = append([]cortex.NodeId{cur}, nodes...)
		step := prev[cur]
		edges = append([]cortex.EdgeId{step.edge}, edges...)
		cur = step.node
	}
	nodes = append([]cortex.NodeId{from}, nodes...)
	return Path{Nodes: nodes, Edges: edges, TotalCost: dist[to], TotalWeight: totalWeight(prev, from, to)}, true
}

func pathsEqual(a, b Path) bool {
	if len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Edges {
		if a.Edges[i] != b.Edges[i] {
			return false
		}
	}
	return true
}

func containsPath(paths []Path, p Path) bool {
	for _, existing := range paths {
		if pathsEqual(existing, p) {
			return true
		}
	}
	return false
}
