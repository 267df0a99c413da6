package briefing

import (
	"fmt"
	"strings"
)

// Renderer turns a Briefing into a string an agent can consume directly.
type Renderer interface {
	Render(b Briefing) string
}

// MarkdownRenderer renders a briefing as structured markdown with a
// 200-character body preview per node.
type MarkdownRenderer struct {
	MaxChars int
}

// NewMarkdownRenderer returns a MarkdownRenderer with the documented
// default of 8000 max characters.
func NewMarkdownRenderer() MarkdownRenderer { return MarkdownRenderer{MaxChars: 8000} }

func (r MarkdownRenderer) Render(b Briefing) string {
	var out strings.Builder
	fmt.Fprintf(&out, "# Briefing: %s\n_Generated: %s_\n\n", b.AgentID, b.GeneratedAt.Format("2006-01-02 15:04 UTC"))
	for _, section := range b.Sections {
		fmt.Fprintf(&out, "## %s\n\n", section.Title)
		for _, n := range section.Nodes {
			fmt.Fprintf(&out, "- **%s**: %s\n", n.Title, bodyPreview(n.Body, 200))
		}
		out.WriteString("\n")
	}
	return truncate(out.String(), r.MaxChars)
}

// CompactRenderer renders a briefing as titles only, no body previews.
type CompactRenderer struct {
	MaxChars int
}

// NewCompactRenderer returns a CompactRenderer with the documented default
// of 8000 max characters.
func NewCompactRenderer() CompactRenderer { return CompactRenderer{MaxChars: 8000} }

func (r CompactRenderer) Render(b Briefing) string {
	var out strings.Builder
	fmt.Fprintf(&out, "# %s\n", b.AgentID)
	for _, section := range b.Sections {
		fmt.Fprintf(&out, "## %s\n", section.Title)
		for _, n := range section.Nodes {
			fmt.Fprintf(&out, "- %s\n", n.Title)
		}
	}
	return truncate(out.String(), r.MaxChars)
}

const truncateSuffix = " [truncated]"

// truncate limits s to at most maxChars Unicode scalar values, appending
// " [truncated]" when there's room for the annotation.
func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	suffixLen := len([]rune(truncateSuffix))
	if maxChars <= suffixLen {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-suffixLen]) + truncateSuffix
}

// bodyPreview limits s to at most maxChars Unicode scalar values,
// appending "..." when cut.
func bodyPreview(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	keep := maxChars - 3
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + "..."
}
