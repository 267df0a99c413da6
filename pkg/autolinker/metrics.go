package autolinker

import (
	"sync"
	"time"
)

// Metrics is a concurrency-safe observability snapshot of the auto-linker,
// ported field-for-field from the original linker/metrics.rs
// AutoLinkerMetrics. Unlike the Rust version (single-owned, no guard),
// this is read concurrently by callers wanting a live snapshot while
// RunCycle updates it from the background goroutine, so it's
// sync.RWMutex-guarded in the style of pkg/metrics.MetricsCollector.
type Metrics struct {
	mu sync.RWMutex

	cycles               uint64
	nodesProcessed       uint64
	edgesCreated         uint64
	edgesPruned          uint64
	edgesDeleted         uint64
	duplicatesFound      uint64
	contradictionsFound  uint64
	lastCycleDuration    time.Duration
	cursor               time.Time
	backlogSize          uint64
	totalNodes           uint64
	totalEdges           uint64
}

// NewMetrics returns a zeroed Metrics with cursor stamped to now.
func NewMetrics() *Metrics {
	return &Metrics{cursor: time.Now().UTC()}
}

// Snapshot is a point-in-time copy of Metrics's fields, safe to read
// without holding any lock.
type Snapshot struct {
	Cycles              uint64
	NodesProcessed       uint64
	EdgesCreated         uint64
	EdgesPruned          uint64
	EdgesDeleted         uint64
	DuplicatesFound      uint64
	ContradictionsFound  uint64
	LastCycleDuration    time.Duration
	Cursor               time.Time
	BacklogSize          uint64
	TotalNodes           uint64
	TotalEdges           uint64
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Cycles:              m.cycles,
		NodesProcessed:       m.nodesProcessed,
		EdgesCreated:         m.edgesCreated,
		EdgesPruned:          m.edgesPruned,
		EdgesDeleted:         m.edgesDeleted,
		DuplicatesFound:      m.duplicatesFound,
		ContradictionsFound:  m.contradictionsFound,
		LastCycleDuration:    m.lastCycleDuration,
		Cursor:               m.cursor,
		BacklogSize:          m.backlogSize,
		TotalNodes:           m.totalNodes,
		TotalEdges:           m.totalEdges,
	}
}

// ResetCycleMetrics zeroes the per-cycle counters at the start of a cycle.
func (m *Metrics) ResetCycleMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesProcessed = 0
	m.edgesCreated = 0
	m.edgesPruned = 0
	m.edgesDeleted = 0
	m.duplicatesFound = 0
	m.contradictionsFound = 0
}

func (m *Metrics) IncrementCycle() {
	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

func (m *Metrics) UpdateCursor(cursor time.Time) {
	m.mu.Lock()
	m.cursor = cursor
	m.mu.Unlock()
}

func (m *Metrics) SetCycleDuration(d time.Duration) {
	m.mu.Lock()
	m.lastCycleDuration = d
	m.mu.Unlock()
}

func (m *Metrics) AddNodesProcessed(n uint64) {
	m.mu.Lock()
	m.nodesProcessed += n
	m.mu.Unlock()
}

func (m *Metrics) AddEdgesCreated(n uint64) {
	m.mu.Lock()
	m.edgesCreated += n
	m.mu.Unlock()
}

func (m *Metrics) AddEdgesPruned(n uint64) {
	m.mu.Lock()
	m.edgesPruned += n
	m.mu.Unlock()
}

func (m *Metrics) AddEdgesDeleted(n uint64) {
	m.mu.Lock()
	m.edgesDeleted += n
	m.mu.Unlock()
}

func (m *Metrics) AddDuplicatesFound(n uint64) {
	m.mu.Lock()
	m.duplicatesFound += n
	m.mu.Unlock()
}

func (m *Metrics) AddContradictionsFound(n uint64) {
	m.mu.Lock()
	m.contradictionsFound += n
	m.mu.Unlock()
}

func (m *Metrics) SetBacklogSize(n uint64) {
	m.mu.Lock()
	m.backlogSize = n
	m.mu.Unlock()
}

func (m *Metrics) SetTotalNodes(n uint64) {
	m.mu.Lock()
	m.totalNodes = n
	m.mu.Unlock()
}

func (m *Metrics) SetTotalEdges(n uint64) {
	m.mu.Lock()
	m.totalEdges = n
	m.mu.Unlock()
}
