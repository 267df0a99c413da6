package briefing

import (
	"strings"
	"testing"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

func sectionNode(title, body string) cortex.Node {
	return cortex.NewNode(cortex.MustNodeKind("fact"), title, body, cortex.Source{Agent: "test"}, 0.5)
}

func TestMarkdownRenderer_RendersSectionsAndPreviews(t *testing.T) {
	b := Briefing{
		AgentID:     "agent-1",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		Sections: []Section{
			{Title: "Recent Activity", Nodes: []cortex.Node{sectionNode("Title A", strings.Repeat("x", 300))}},
		},
	}
	out := NewMarkdownRenderer().Render(b)
	if !strings.Contains(out, "# Briefing: agent-1") {
		t.Fatalf("missing header: %s", out)
	}
	if !strings.Contains(out, "## Recent Activity") {
		t.Fatalf("missing section header: %s", out)
	}
	if !strings.Contains(out, "**Title A**") {
		t.Fatalf("missing node title: %s", out)
	}
	if strings.Contains(out, strings.Repeat("x", 300)) {
		t.Fatalf("body should have been previewed to 200 chars")
	}
}

func TestCompactRenderer_OmitsBodies(t *testing.T) {
	b := Briefing{
		AgentID: "agent-1",
		Sections: []Section{
			{Title: "Important Context", Nodes: []cortex.Node{sectionNode("Title A", "some long body text")}},
		},
	}
	out := NewCompactRenderer().Render(b)
	if strings.Contains(out, "some long body text") {
		t.Fatalf("compact renderer should not include body text: %s", out)
	}
	if !strings.Contains(out, "Title A") {
		t.Fatalf("missing title: %s", out)
	}
}

func TestTruncate_AppendsSuffixWhenThereIsRoom(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := truncate(long, 20)
	if !strings.HasSuffix(got, truncateSuffix) {
		t.Fatalf("expected truncation suffix, got %q", got)
	}
	if len([]rune(got)) != 20 {
		t.Fatalf("expected exactly 20 runes, got %d", len([]rune(got)))
	}
}

func TestTruncate_HardTruncatesWhenNoRoomForSuffix(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := truncate(long, 5)
	if got != strings.Repeat("a", 5) {
		t.Fatalf("expected hard truncation, got %q", got)
	}
}

func TestCache_InvalidatesOnGraphVersionChange(t *testing.T) {
	c := NewCache(time.Hour)
	b := Briefing{AgentID: "agent-1"}
	c.Put("agent-1", b, 1)

	if _, ok := c.Get("agent-1", 1); !ok {
		t.Fatalf("expected cache hit at matching version")
	}
	if _, ok := c.Get("agent-1", 2); ok {
		t.Fatalf("expected cache miss after version bump")
	}
}

func TestCache_InvalidatesOnTTLExpiry(t *testing.T) {
	c := NewCache(1 * time.Nanosecond)
	c.Put("agent-1", Briefing{AgentID: "agent-1"}, 1)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get("agent-1", 1); ok {
		t.Fatalf("expected cache miss after TTL expiry")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(time.Hour)
	c.Put("agent-1", Briefing{AgentID: "agent-1"}, 1)
	c.Invalidate("agent-1")
	if _, ok := c.Get("agent-1", 1); ok {
		t.Fatalf("expected cache miss after explicit invalidation")
	}
}
