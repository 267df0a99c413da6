package vectorindex

import (
	"encoding/gob"
	"os"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// snapshotNode is the gob-serializable shape of hnswNode.
type snapshotNode struct {
	ID        cortex.NodeId
	Vector    []float32
	Level     int
	Neighbors [][]cortex.NodeId
}

// snapshot is the full on-disk shape written by Save and read by Load.
type snapshot struct {
	Config     Config
	Dimensions int
	EntryPoint cortex.NodeId
	HasEntry   bool
	MaxLevel   int
	Nodes      []snapshotNode
}

// Save writes the index to path as a gob-encoded sidecar file.
func (h *Index) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := snapshot{
		Config:     h.config,
		Dimensions: h.dimensions,
		EntryPoint: h.entryPoint,
		HasEntry:   h.hasEntry,
		MaxLevel:   h.maxLevel,
		Nodes:      make([]snapshotNode, 0, len(h.nodes)),
	}
	for _, n := range h.nodes {
		snap.Nodes = append(snap.Nodes, snapshotNode{
			ID:        n.id,
			Vector:    n.vector,
			Level:     n.level,
			Neighbors: n.neighbors,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "create vector index snapshot", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		return cortex.NewError(cortex.ErrKindSerialization, "encode vector index snapshot", err)
	}
	return nil
}

// Load replaces the index's contents with the sidecar file at path.
func (h *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "open vector index snapshot", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return cortex.NewError(cortex.ErrKindSerialization, "decode vector index snapshot", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = snap.Config
	h.dimensions = snap.Dimensions
	h.entryPoint = snap.EntryPoint
	h.hasEntry = snap.HasEntry
	h.maxLevel = snap.MaxLevel
	h.nodes = make(map[cortex.NodeId]*hnswNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		h.nodes[n.ID] = &hnswNode{id: n.ID, vector: n.Vector, level: n.Level, neighbors: n.Neighbors}
	}
	return nil
}
