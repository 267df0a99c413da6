// Package briefing synthesizes a per-agent context summary from the most
// relevant recent and important nodes, ported from the original
// briefing/mod.rs and briefing/engine.rs.
package briefing

import (
	"context"
	"sort"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
	"github.com/cortex-db/cortex/pkg/store"
)

// Briefing is a synthesized context briefing for an agent.
type Briefing struct {
	AgentID        string
	GeneratedAt    time.Time
	NodesConsulted int
	Sections       []Section
	Cached         bool
}

// Section is one named grouping of nodes within a briefing.
type Section struct {
	Title string
	Nodes []cortex.Node
}

// Storage is the subset of *store.Store the briefing engine depends on.
type Storage interface {
	ListNodes(ctx context.Context, filter store.NodeFilter) ([]cortex.Node, error)
	GraphVersion() uint64
}

// Config controls how many nodes feed each section.
type Config struct {
	RecentLimit     int
	ImportantLimit  int
	MinImportance   float32
}

// DefaultConfig returns the documented section sizes.
func DefaultConfig() Config {
	return Config{RecentLimit: 10, ImportantLimit: 10, MinImportance: 0.6}
}

// Engine generates briefings for an agent from live storage.
type Engine struct {
	storage Storage
	cfg     Config
}

// New constructs a briefing Engine.
func New(storage Storage, cfg Config) *Engine {
	return &Engine{storage: storage, cfg: cfg}
}

// Generate builds a fresh briefing for agentID: a "Recent Activity"
// section (most recently updated nodes from that agent) and an
// "Important Context" section (highest-importance nodes above
// cfg.MinImportance, any agent).
func (e *Engine) Generate(ctx context.Context, agentID string) (Briefing, error) {
	recent, err := e.storage.ListNodes(ctx, store.NewNodeFilter().WithSourceAgent(agentID))
	if err != nil {
		return Briefing{}, err
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].UpdatedAt.After(recent[j].UpdatedAt) })
	if len(recent) > e.cfg.RecentLimit {
		recent = recent[:e.cfg.RecentLimit]
	}

	important, err := e.storage.ListNodes(ctx, store.NewNodeFilter().WithMinImportance(e.cfg.MinImportance))
	if err != nil {
		return Briefing{}, err
	}
	sort.Slice(important, func(i, j int) bool { return important[i].Importance > important[j].Importance })
	if len(important) > e.cfg.ImportantLimit {
		important = important[:e.cfg.ImportantLimit]
	}

	consulted := len(recent) + len(important)
	return Briefing{
		AgentID:        agentID,
		GeneratedAt:    time.Now().UTC(),
		NodesConsulted: consulted,
		Sections: []Section{
			{Title: "Recent Activity", Nodes: recent},
			{Title: "Important Context", Nodes: important},
		},
		Cached: false,
	}, nil
}
