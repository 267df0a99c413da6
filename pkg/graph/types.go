package graph

import (
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Direction constrains which edges a traversal follows.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
	DirectionBoth
)

// Strategy selects the traversal algorithm.
type Strategy int

const (
	StrategyBFS Strategy = iota
	StrategyDFS
	StrategyWeighted
)

// TraversalRequest parameterizes GraphEngine.Traverse.
type TraversalRequest struct {
	Start     cortex.NodeId
	Direction Direction
	Strategy  Strategy
	MaxDepth  int
	Relations []cortex.Relation // empty means all relations
	Budget    cortex.TraversalBudget
}

// Subgraph is a self-contained slice of the graph returned by a traversal:
// the node set plus every edge with both endpoints inside it.
type Subgraph struct {
	Nodes []cortex.Node
	Edges []cortex.Edge
	// Depth maps each node id to its BFS/DFS distance from the traversal
	// root, so callers can render "at depth N" views without re-walking.
	Depth map[cortex.NodeId]int
}

// AtDepth returns the node ids discovered at exactly the given depth.
func (g Subgraph) AtDepth(depth int) []cortex.NodeId {
	var out []cortex.NodeId
	for id, d := range g.Depth {
		if d == depth {
			out = append(out, id)
		}
	}
	return out
}

// EdgesBetween returns every edge in g connecting from and to, in either
// direction.
func (g Subgraph) EdgesBetween(from, to cortex.NodeId) []cortex.Edge {
	var out []cortex.Edge
	for _, e := range g.Edges {
		if (e.From == from && e.To == to) || (e.From == to && e.To == from) {
			out = append(out, e)
		}
	}
	return out
}

// Neighbors returns the set of node ids directly connected to id within g.
func (g Subgraph) Neighbors(id cortex.NodeId) []cortex.NodeId {
	seen := map[cortex.NodeId]bool{}
	var out []cortex.NodeId
	for _, e := range g.Edges {
		var other cortex.NodeId
		switch id {
		case e.From:
			other = e.To
		case e.To:
			other = e.From
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// TopoSort returns g's nodes in topological order following outgoing edges.
// Returns ok=false if g contains a cycle.
func (g Subgraph) TopoSort() (order []cortex.NodeId, ok bool) {
	indeg := map[cortex.NodeId]int{}
	adj := map[cortex.NodeId][]cortex.NodeId{}
	for _, n := range g.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indeg[e.To]++
	}
	var queue []cortex.NodeId
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, len(order) == len(g.Nodes)
}

// Merge returns the union of g and other, de-duplicating nodes and edges by id.
func (g Subgraph) Merge(other Subgraph) Subgraph {
	nodeSeen := map[cortex.NodeId]bool{}
	edgeSeen := map[cortex.EdgeId]bool{}
	out := Subgraph{Depth: map[cortex.NodeId]int{}}

	add := func(sg Subgraph) {
		for _, n := range sg.Nodes {
			if !nodeSeen[n.ID] {
				nodeSeen[n.ID] = true
				out.Nodes = append(out.Nodes, n)
			}
		}
		for _, e := range sg.Edges {
			if !edgeSeen[e.ID] {
				edgeSeen[e.ID] = true
				out.Edges = append(out.Edges, e)
			}
		}
		for id, d := range sg.Depth {
			if existing, ok := out.Depth[id]; !ok || d < existing {
				out.Depth[id] = d
			}
		}
	}
	add(g)
	add(other)
	return out
}

// PathAlgorithm selects how FindPaths searches.
type PathAlgorithm int

const (
	PathAlgoBFS PathAlgorithm = iota
	PathAlgoDijkstra
	PathAlgoYenK
)

// PathRequest parameterizes GraphEngine.FindPaths.
type PathRequest struct {
	From      cortex.NodeId
	To        cortex.NodeId
	Algorithm PathAlgorithm
	K         int // number of paths for PathAlgoYenK, ignored otherwise
	MaxHops   int
	Budget    cortex.TraversalBudget
}

// Path is one route from From to To. TotalWeight is the product of every
// edge's weight along the path (not an inverse sum), so a two-hop path of
// 0.9 and 0.9 weight edges reports TotalWeight 0.81.
type Path struct {
	Nodes       []cortex.NodeId
	Edges       []cortex.EdgeId
	TotalCost   float64
	TotalWeight float64
}

// PathResult is the outcome of FindPaths: zero or more paths, cheapest first.
type PathResult struct {
	Paths []Path
}

// ChangeEvent describes one node mutation observed by TemporalQueries.
type ChangeEvent struct {
	NodeID    cortex.NodeId
	At        time.Time
	Action    string
}
