package cortex

import "time"

// TraversalBudget bounds any single graph traversal.
type TraversalBudget struct {
	MaxVisited       int
	MaxTimeMS        int64
	MaxNodesPerLevel int
}

// DefaultTraversalBudget returns the spec's default budget.
func DefaultTraversalBudget() TraversalBudget {
	return TraversalBudget{MaxVisited: 10000, MaxTimeMS: 5000, MaxNodesPerLevel: 1000}
}

// SimilarityConfig controls auto-link/dedup/contradiction thresholds used
// by LinkRules, ported field-for-field from the original vector/config.rs.
type SimilarityConfig struct {
	AutoLinkThreshold       float32
	DedupThreshold          float32
	ContradictionThreshold  float32
	AutoLinkK               int
}

// DefaultSimilarityConfig returns the documented defaults.
func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		AutoLinkThreshold:      0.75,
		DedupThreshold:         0.92,
		ContradictionThreshold: 0.80,
		AutoLinkK:              20,
	}
}

// Validate checks the ordering invariants among thresholds.
func (c SimilarityConfig) Validate() error {
	if c.AutoLinkThreshold >= c.DedupThreshold {
		return NewError(ErrKindValidation, "auto_link_threshold must be less than dedup_threshold", nil)
	}
	if c.ContradictionThreshold >= c.DedupThreshold {
		return NewError(ErrKindValidation, "contradiction_threshold must be less than dedup_threshold", nil)
	}
	if c.AutoLinkK <= 0 {
		return NewError(ErrKindValidation, "auto_link_k must be greater than 0", nil)
	}
	return nil
}

// DecayConfig controls edge weight decay, ported from linker/config.rs.
type DecayConfig struct {
	DailyDecayRate         float32
	PruneThreshold         float32
	DeleteThreshold        float32
	ImportanceShield       float32
	AccessReinforcementDays float32
	ExemptManual           bool
}

// DefaultDecayConfig returns the documented defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		DailyDecayRate:          0.01,
		PruneThreshold:          0.10,
		DeleteThreshold:         0.05,
		ImportanceShield:        0.8,
		AccessReinforcementDays: 7.0,
		ExemptManual:            true,
	}
}

// Validate checks DecayConfig invariants.
func (c DecayConfig) Validate() error {
	if c.DailyDecayRate < 0 || c.DailyDecayRate > 1 {
		return NewError(ErrKindValidation, "daily_decay_rate must be in [0,1]", nil)
	}
	if c.DeleteThreshold > c.PruneThreshold {
		return NewError(ErrKindValidation, "delete_threshold must be <= prune_threshold", nil)
	}
	if c.ImportanceShield < 0 || c.ImportanceShield > 1 {
		return NewError(ErrKindValidation, "importance_shield must be in [0,1]", nil)
	}
	return nil
}

// ScoreDecayConfig controls query-time temporal/echo reranking, ported
// verbatim from vector/scoring.rs's ScoreDecayConfig.
type ScoreDecayConfig struct {
	Enabled       bool
	DailyRate     float64
	MaxAgeDays    float64
	MinFactor     float64
	EchoWeight    float64
	EchoCap       float64
	RecencyWeight float32
	ByKind        map[string]float64
}

// DefaultScoreDecayConfig returns the documented defaults.
func DefaultScoreDecayConfig() ScoreDecayConfig {
	return ScoreDecayConfig{
		Enabled:       true,
		DailyRate:     0.02,
		MaxAgeDays:    365.0,
		MinFactor:     0.1,
		EchoWeight:    0.05,
		EchoCap:       2.0,
		RecencyWeight: 0.15,
		ByKind: map[string]float64{
			"event":       0.05,
			"observation": 0.04,
			"decision":    0.005,
			"pattern":     0.005,
			"fact":        0.01,
			"preference":  0.005,
		},
	}
}

// RetentionMaxNodes configures the hard cap on live node count.
type RetentionMaxNodes struct {
	Limit    int
	Strategy string
}

// RetentionConfig controls TTL sweeps and grace-period purges.
type RetentionConfig struct {
	DefaultTTLDays int
	ByKind         map[string]int
	MaxNodes       *RetentionMaxNodes
	GraceDays      int
}

// DefaultRetentionConfig returns a config with a 7-day grace period and no
// TTLs or caps configured (a no-op sweep/purge).
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{ByKind: map[string]int{}, GraceDays: 7}
}

// AutoLinkerConfig controls the background auto-linking cycle, ported from
// linker/config.rs's AutoLinkerConfig.
type AutoLinkerConfig struct {
	Interval                time.Duration
	Similarity               SimilarityConfig
	Decay                    DecayConfig
	DecayEveryNCycles        uint64
	DedupEveryNCycles        uint64
	MaxNodesPerCycle         int
	MaxEdgesPerCycle         int
	MaxEdgesPerNode          int
	GenericContentThreshold  int
	RunOnStartup             bool
}

// DefaultAutoLinkerConfig returns the documented defaults.
func DefaultAutoLinkerConfig() AutoLinkerConfig {
	return AutoLinkerConfig{
		Interval:                60 * time.Second,
		Similarity:              DefaultSimilarityConfig(),
		Decay:                   DefaultDecayConfig(),
		DecayEveryNCycles:       60,
		DedupEveryNCycles:       360,
		MaxNodesPerCycle:        500,
		MaxEdgesPerCycle:        2000,
		MaxEdgesPerNode:         50,
		GenericContentThreshold: 30,
		RunOnStartup:            true,
	}
}

// Validate checks AutoLinkerConfig invariants.
func (c AutoLinkerConfig) Validate() error {
	if err := c.Similarity.Validate(); err != nil {
		return err
	}
	if err := c.Decay.Validate(); err != nil {
		return err
	}
	if c.MaxNodesPerCycle <= 0 || c.MaxEdgesPerCycle <= 0 || c.MaxEdgesPerNode <= 0 {
		return NewError(ErrKindValidation, "per-cycle budgets must be > 0", nil)
	}
	return nil
}

// StoreConfig controls where and how the backing SQLite file is opened.
type StoreConfig struct {
	Path string // ":memory:" permitted for tests
}

// Config aggregates every configurable surface of the engine.
type Config struct {
	Store       StoreConfig
	AutoLinker  AutoLinkerConfig
	Retention   RetentionConfig
	ScoreDecay  ScoreDecayConfig
	Similarity  SimilarityConfig
	Budget      TraversalBudget
}

// DefaultConfig returns a Config populated with every component's defaults.
func DefaultConfig() Config {
	return Config{
		Store:      StoreConfig{Path: "cortex.db"},
		AutoLinker: DefaultAutoLinkerConfig(),
		Retention:  DefaultRetentionConfig(),
		ScoreDecay: DefaultScoreDecayConfig(),
		Similarity: DefaultSimilarityConfig(),
		Budget:     DefaultTraversalBudget(),
	}
}

// IngestEvent is the shape external adapters hand the core to create a Node.
type IngestEvent struct {
	Kind       string
	Title      string
	Body       string
	Metadata   map[string]any
	Tags       []string
	Source     string
	Session    *string
	Importance *float32
}
