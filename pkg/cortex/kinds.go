package cortex

import (
	"fmt"
	"strings"
)

// NodeKind is an interned short string identifying the category of a Node.
// It is validated, not a closed enum, so callers may register kinds beyond
// the nine built-ins below. Equality and hashing are by content.
type NodeKind struct {
	value string
}

// NewNodeKind validates and constructs a NodeKind. Valid kinds are non-empty
// and contain only ascii lowercase letters, digits, and hyphens.
func NewNodeKind(s string) (NodeKind, error) {
	if err := validateKindOrRelation(s, '-'); err != nil {
		return NodeKind{}, fmt.Errorf("node kind %q: %w", s, err)
	}
	return NodeKind{value: s}, nil
}

// MustNodeKind panics if s is not a valid NodeKind. Intended for built-in
// constants and tests, never for untrusted input.
func MustNodeKind(s string) NodeKind {
	k, err := NewNodeKind(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the raw lowercase form, used for persistence and equality.
func (k NodeKind) String() string { return k.value }

// Debug renders a capitalized-first-letter form for human-facing output,
// e.g. "fact" -> "Fact". Persistence and equality never use this form.
func (k NodeKind) Debug() string {
	if k.value == "" {
		return ""
	}
	return strings.ToUpper(k.value[:1]) + k.value[1:]
}

// IsZero reports whether k was never validated (the zero value).
func (k NodeKind) IsZero() bool { return k.value == "" }

// Built-in node kinds, per spec.
var (
	NodeKindAgent       = MustNodeKind("agent")
	NodeKindDecision    = MustNodeKind("decision")
	NodeKindFact        = MustNodeKind("fact")
	NodeKindEvent       = MustNodeKind("event")
	NodeKindGoal        = MustNodeKind("goal")
	NodeKindPreference  = MustNodeKind("preference")
	NodeKindPattern     = MustNodeKind("pattern")
	NodeKindObservation = MustNodeKind("observation")
	NodeKindPrompt      = MustNodeKind("prompt")
)

// DefaultNodeKinds returns the nine built-in kinds.
func DefaultNodeKinds() []NodeKind {
	return []NodeKind{
		NodeKindAgent, NodeKindDecision, NodeKindFact, NodeKindEvent,
		NodeKindGoal, NodeKindPreference, NodeKindPattern, NodeKindObservation,
		NodeKindPrompt,
	}
}

// Relation identifies the type of an Edge. Same discipline as NodeKind but
// permits underscores instead of hyphens.
type Relation struct {
	value string
}

// NewRelation validates and constructs a Relation.
func NewRelation(s string) (Relation, error) {
	if err := validateKindOrRelation(s, '_'); err != nil {
		return Relation{}, fmt.Errorf("relation %q: %w", s, err)
	}
	return Relation{value: s}, nil
}

// MustRelation panics if s is not a valid Relation.
func MustRelation(s string) Relation {
	r, err := NewRelation(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the raw lowercase form.
func (r Relation) String() string { return r.value }

// Debug renders full PascalCase by splitting on underscore, e.g.
// "related_to" -> "RelatedTo".
func (r Relation) Debug() string {
	parts := strings.Split(r.value, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// IsZero reports whether r was never validated (the zero value).
func (r Relation) IsZero() bool { return r.value == "" }

// Built-in relations, per spec.
var (
	RelationInformedBy    = MustRelation("informed_by")
	RelationLedTo         = MustRelation("led_to")
	RelationAppliesTo     = MustRelation("applies_to")
	RelationContradicts   = MustRelation("contradicts")
	RelationSupersedes    = MustRelation("supersedes")
	RelationDependsOn     = MustRelation("depends_on")
	RelationRelatedTo     = MustRelation("related_to")
	RelationInstanceOf    = MustRelation("instance_of")
	RelationUses          = MustRelation("uses")
	RelationBranchedFrom  = MustRelation("branched_from")
	RelationInheritsFrom  = MustRelation("inherits_from")
	RelationUsedBy        = MustRelation("used_by")
	RelationPerformed     = MustRelation("performed")
	RelationDeployed      = MustRelation("deployed")
	RelationObservedWith  = MustRelation("observed_with")
	RelationObservedBy    = MustRelation("observed_by")
	RelationRolledBack    = MustRelation("rolled_back")
	RelationRolledBackTo  = MustRelation("rolled_back_to")
)

// DefaultRelations returns the eighteen built-in relations.
func DefaultRelations() []Relation {
	return []Relation{
		RelationInformedBy, RelationLedTo, RelationAppliesTo, RelationContradicts,
		RelationSupersedes, RelationDependsOn, RelationRelatedTo, RelationInstanceOf,
		RelationUses, RelationBranchedFrom, RelationInheritsFrom, RelationUsedBy,
		RelationPerformed, RelationDeployed, RelationObservedWith, RelationObservedBy,
		RelationRolledBack, RelationRolledBackTo,
	}
}

func validateKindOrRelation(s string, extra byte) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == extra:
		default:
			return fmt.Errorf("must be lowercase alphanumeric plus %q, got byte %q at %d", extra, c, i)
		}
	}
	return nil
}
