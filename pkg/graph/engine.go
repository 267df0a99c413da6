package graph

import (
	"context"
	"sort"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Storage is the slice of *store.Store the Engine depends on.
type Storage interface {
	GetNode(ctx context.Context, id cortex.NodeId) (cortex.Node, bool, error)
	EdgesFrom(ctx context.Context, id cortex.NodeId) ([]cortex.Edge, error)
	EdgesTo(ctx context.Context, id cortex.NodeId) ([]cortex.Edge, error)
	AllEdges(ctx context.Context) ([]cortex.Edge, error)
	AllNodes(ctx context.Context) ([]cortex.Node, error)
	OnCommit(fn func())
}

// Engine answers traversal, path, and topology questions over the graph,
// backed by an AdjacencyCache that is rebuilt lazily after each commit.
type Engine struct {
	store Storage
	cache *AdjacencyCache
}

// NewEngine builds an Engine over store, wiring cache invalidation to every
// committed write via store.OnCommit.
func NewEngine(store Storage) *Engine {
	e := &Engine{store: store, cache: NewAdjacencyCache()}
	store.OnCommit(e.cache.Invalidate)
	return e
}

func (e *Engine) ensureCache(ctx context.Context) error {
	if e.cache.Valid() {
		return nil
	}
	edges, err := e.store.AllEdges(ctx)
	if err != nil {
		return err
	}
	e.cache.Build(edges)
	return nil
}

// Neighbors returns the node ids directly reachable from id following
// direction, restricted to relations if non-empty.
func (e *Engine) Neighbors(ctx context.Context, id cortex.NodeId, direction Direction, relations []cortex.Relation) ([]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	allow := relationSet(relations)
	seen := map[cortex.NodeId]bool{}
	var out []cortex.NodeId
	collect := func(entries []AdjacencyEntry) {
		for _, ent := range entries {
			if allow != nil && !allow[ent.Relation.String()] {
				continue
			}
			if !seen[ent.Target] {
				seen[ent.Target] = true
				out = append(out, ent.Target)
			}
		}
	}
	if direction == DirectionOutgoing || direction == DirectionBoth {
		collect(e.cache.GetOutgoing(id))
	}
	if direction == DirectionIncoming || direction == DirectionBoth {
		collect(e.cache.GetIncoming(id))
	}
	return out, nil
}

func relationSet(relations []cortex.Relation) map[string]bool {
	if len(relations) == 0 {
		return nil
	}
	m := make(map[string]bool, len(relations))
	for _, r := range relations {
		m[r.String()] = true
	}
	return m
}

// Traverse walks the graph from req.Start using the requested strategy and
// direction, stopping at MaxDepth or once Budget.MaxVisited nodes have been
// visited (BFS also caps each level at Budget.MaxNodesPerLevel), and returns
// the visited nodes/edges as a Subgraph. Budget.MaxTimeMS is not checked, and
// the Subgraph does not report whether a budget cut the traversal short.
func (e *Engine) Traverse(ctx context.Context, req TraversalRequest) (Subgraph, error) {
	if err := e.ensureCache(ctx); err != nil {
		return Subgraph{}, err
	}
	switch req.Strategy {
	case StrategyDFS:
		return e.traverseDFS(ctx, req)
	case StrategyWeighted:
		return e.traverseWeighted(ctx, req)
	default:
		return e.traverseBFS(ctx, req)
	}
}

func (e *Engine) traverseBFS(ctx context.Context, req TraversalRequest) (Subgraph, error) {
	type frontierItem struct {
		id    cortex.NodeId
		depth int
	}
	visited := map[cortex.NodeId]int{req.Start: 0}
	queue := []frontierItem{{req.Start, 0}}
	allow := relationSet(req.Relations)

	for len(queue) > 0 {
		if req.Budget.MaxVisited > 0 && len(visited) >= req.Budget.MaxVisited {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if req.MaxDepth > 0 && cur.depth >= req.MaxDepth {
			continue
		}
		entries := e.directionEntries(cur.id, req.Direction)
		levelCount := 0
		for _, ent := range entries {
			if allow != nil && !allow[ent.Relation.String()] {
				continue
			}
			if req.Budget.MaxNodesPerLevel > 0 && levelCount >= req.Budget.MaxNodesPerLevel {
				break
			}
			if _, ok := visited[ent.Target]; !ok {
				visited[ent.Target] = cur.depth + 1
				queue = append(queue, frontierItem{ent.Target, cur.depth + 1})
				levelCount++
			}
		}
	}

	return e.buildSubgraph(ctx, visited)
}

func (e *Engine) traverseDFS(ctx context.Context, req TraversalRequest) (Subgraph, error) {
	type stackItem struct {
		id    cortex.NodeId
		depth int
	}
	visited := map[cortex.NodeId]int{}
	allow := relationSet(req.Relations)
	stack := []stackItem{{req.Start, 0}}

	for len(stack) > 0 {
		if req.Budget.MaxVisited > 0 && len(visited) >= req.Budget.MaxVisited {
			break
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[top.id]; ok {
			continue
		}
		visited[top.id] = top.depth
		if req.MaxDepth > 0 && top.depth >= req.MaxDepth {
			continue
		}
		for _, ent := range e.directionEntries(top.id, req.Direction) {
			if allow != nil && !allow[ent.Relation.String()] {
				continue
			}
			if _, ok := visited[ent.Target]; !ok {
				stack = append(stack, stackItem{ent.Target, top.depth + 1})
			}
		}
	}
	return e.buildSubgraph(ctx, visited)
}

// traverseWeighted behaves like BFS but prioritizes higher-weight edges
// first, approximating a best-first expansion.
func (e *Engine) traverseWeighted(ctx context.Context, req TraversalRequest) (Subgraph, error) {
	type item struct {
		id     cortex.NodeId
		depth  int
		weight float32
	}
	visited := map[cortex.NodeId]int{req.Start: 0}
	frontier := []item{{req.Start, 0, 1}}
	allow := relationSet(req.Relations)

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].weight > frontier[j].weight })
		cur := frontier[0]
		frontier = frontier[1:]
		if req.Budget.MaxVisited > 0 && len(visited) >= req.Budget.MaxVisited {
			break
		}
		if req.MaxDepth > 0 && cur.depth >= req.MaxDepth {
			continue
		}
		for _, ent := range e.directionEntries(cur.id, req.Direction) {
			if allow != nil && !allow[ent.Relation.String()] {
				continue
			}
			if _, ok := visited[ent.Target]; !ok {
				visited[ent.Target] = cur.depth + 1
				frontier = append(frontier, item{ent.Target, cur.depth + 1, ent.Weight})
			}
		}
	}
	return e.buildSubgraph(ctx, visited)
}

func (e *Engine) directionEntries(id cortex.NodeId, direction Direction) []AdjacencyEntry {
	switch direction {
	case DirectionIncoming:
		return e.cache.GetIncoming(id)
	case DirectionBoth:
		return append(append([]AdjacencyEntry{}, e.cache.GetOutgoing(id)...), e.cache.GetIncoming(id)...)
	default:
		return e.cache.GetOutgoing(id)
	}
}

func (e *Engine) buildSubgraph(ctx context.Context, visited map[cortex.NodeId]int) (Subgraph, error) {
	sg := Subgraph{Depth: visited}
	for id := range visited {
		n, found, err := e.store.GetNode(ctx, id)
		if err != nil {
			return Subgraph{}, err
		}
		if found {
			sg.Nodes = append(sg.Nodes, n)
		}
	}
	allEdges, err := e.store.AllEdges(ctx)
	if err != nil {
		return Subgraph{}, err
	}
	for _, edge := range allEdges {
		_, fromIn := visited[edge.From]
		_, toIn := visited[edge.To]
		if fromIn && toIn {
			sg.Edges = append(sg.Edges, edge)
		}
	}
	return sg, nil
}

// Reachable reports whether to is reachable from from within maxHops.
func (e *Engine) Reachable(ctx context.Context, from, to cortex.NodeId, maxHops int) (bool, error) {
	sg, err := e.Traverse(ctx, TraversalRequest{
		Start: from, Direction: DirectionOutgoing, Strategy: StrategyBFS,
		MaxDepth: maxHops, Budget: cortex.DefaultTraversalBudget(),
	})
	if err != nil {
		return false, err
	}
	_, ok := sg.Depth[to]
	return ok, nil
}

// Roots returns node ids with at least one outgoing edge of rel and no
// incoming edge of rel. A node with no rel edges at all is not a root.
func (e *Engine) Roots(ctx context.Context, rel cortex.Relation) ([]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	var out []cortex.NodeId
	for _, n := range nodes {
		if countRelation(e.cache.GetOutgoing(n.ID), rel) > 0 && countRelation(e.cache.GetIncoming(n.ID), rel) == 0 {
			out = append(out, n.ID)
		}
	}
	return out, nil
}

// Leaves returns node ids with at least one incoming edge of rel and no
// outgoing edge of rel. A node with no rel edges at all is not a leaf.
func (e *Engine) Leaves(ctx context.Context, rel cortex.Relation) ([]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	var out []cortex.NodeId
	for _, n := range nodes {
		if countRelation(e.cache.GetIncoming(n.ID), rel) > 0 && countRelation(e.cache.GetOutgoing(n.ID), rel) == 0 {
			out = append(out, n.ID)
		}
	}
	return out, nil
}

func countRelation(entries []AdjacencyEntry, rel cortex.Relation) int {
	n := 0
	for _, ent := range entries {
		if ent.Relation == rel {
			n++
		}
	}
	return n
}

// MostConnected returns the top-n node ids by total (in+out) degree.
func (e *Engine) MostConnected(ctx context.Context, n int) ([]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	type deg struct {
		id     cortex.NodeId
		degree int
	}
	degrees := make([]deg, 0, len(nodes))
	for _, node := range nodes {
		degrees = append(degrees, deg{node.ID, len(e.cache.GetOutgoing(node.ID)) + len(e.cache.GetIncoming(node.ID))})
	}
	sort.Slice(degrees, func(i, j int) bool { return degrees[i].degree > degrees[j].degree })
	if n > len(degrees) {
		n = len(degrees)
	}
	out := make([]cortex.NodeId, n)
	for i := 0; i < n; i++ {
		out[i] = degrees[i].id
	}
	return out, nil
}

// Components partitions every node into connected components, following
// edges in either direction.
func (e *Engine) Components(ctx context.Context) ([][]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	visited := map[cortex.NodeId]bool{}
	var components [][]cortex.NodeId
	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		var component []cortex.NodeId
		queue := []cortex.NodeId{n.ID}
		visited[n.ID] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, ent := range e.directionEntries(cur, DirectionBoth) {
				if !visited[ent.Target] {
					visited[ent.Target] = true
					queue = append(queue, ent.Target)
				}
			}
		}
		components = append(components, component)
	}
	return components, nil
}

// FindCycles returns node ids that participate in at least one outgoing-edge
// cycle, detected via DFS coloring.
func (e *Engine) FindCycles(ctx context.Context) ([]cortex.NodeId, error) {
	if err := e.ensureCache(ctx); err != nil {
		return nil, err
	}
	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[cortex.NodeId]int{}
	inCycle := map[cortex.NodeId]bool{}

	var visit func(id cortex.NodeId, path []cortex.NodeId)
	visit = func(id cortex.NodeId, path []cortex.NodeId) {
		color[id] = gray
		path = append(path, id)
		for _, ent := range e.cache.GetOutgoing(id) {
			switch color[ent.Target] {
			case white:
				visit(ent.Target, path)
			case gray:
				for i := len(path) - 1; i >= 0; i-- {
					inCycle[path[i]] = true
					if path[i] == ent.Target {
						break
					}
				}
				inCycle[ent.Target] = true
			}
		}
		color[id] = black
	}
	for _, n := range nodes {
		if color[n.ID] == white {
			visit(n.ID, nil)
		}
	}
	var out []cortex.NodeId
	for id := range inCycle {
		out = append(out, id)
	}
	return out, nil
}
