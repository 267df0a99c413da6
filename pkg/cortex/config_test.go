package cortex

import "testing"

func TestSimilarityConfig_Validate(t *testing.T) {
	if err := DefaultSimilarityConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := DefaultSimilarityConfig()
	bad.AutoLinkThreshold = bad.DedupThreshold
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected auto_link_threshold >= dedup_threshold to fail")
	}

	bad = DefaultSimilarityConfig()
	bad.ContradictionThreshold = bad.DedupThreshold + 0.01
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected contradiction_threshold >= dedup_threshold to fail")
	}

	bad = DefaultSimilarityConfig()
	bad.AutoLinkK = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected non-positive auto_link_k to fail")
	}
}

func TestDecayConfig_Validate(t *testing.T) {
	if err := DefaultDecayConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := DefaultDecayConfig()
	bad.DailyDecayRate = 1.5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected out-of-range daily_decay_rate to fail")
	}

	bad = DefaultDecayConfig()
	bad.DeleteThreshold = bad.PruneThreshold + 0.01
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected delete_threshold > prune_threshold to fail")
	}

	bad = DefaultDecayConfig()
	bad.ImportanceShield = -0.1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected out-of-range importance_shield to fail")
	}
}

func TestAutoLinkerConfig_Validate(t *testing.T) {
	if err := DefaultAutoLinkerConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := DefaultAutoLinkerConfig()
	bad.MaxNodesPerCycle = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected non-positive MaxNodesPerCycle to fail")
	}

	bad = DefaultAutoLinkerConfig()
	bad.Similarity.AutoLinkThreshold = bad.Similarity.DedupThreshold
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid nested Similarity config to propagate")
	}
}

func TestDefaultRetentionConfig_IsANoop(t *testing.T) {
	cfg := DefaultRetentionConfig()
	if cfg.DefaultTTLDays != 0 || cfg.MaxNodes != nil {
		t.Fatalf("default retention config should have no TTL or cap configured")
	}
	if cfg.GraceDays != 7 {
		t.Fatalf("expected 7-day grace default, got %d", cfg.GraceDays)
	}
}

func TestDefaultConfig_AggregatesEveryComponent(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Store.Path == "" {
		t.Fatalf("expected a default store path")
	}
	if cfg.AutoLinker.MaxNodesPerCycle == 0 {
		t.Fatalf("expected autolinker defaults to be populated")
	}
	if !cfg.ScoreDecay.Enabled {
		t.Fatalf("expected score decay to default to enabled")
	}
}
