package cortex

import "github.com/google/uuid"

// NodeId is a time-sortable 128-bit identifier: the high bits encode
// creation time (UUIDv7), so lexical/byte ordering approximates creation
// order.
type NodeId uuid.UUID

// EdgeId is the edge analogue of NodeId.
type EdgeId uuid.UUID

// NewNodeId mints a fresh time-sortable node identifier.
func NewNodeId() NodeId {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the OS entropy source is broken; there is no
		// sane recovery for an embedded store in that case.
		panic(err)
	}
	return NodeId(id)
}

// NewEdgeId mints a fresh time-sortable edge identifier.
func NewEdgeId() EdgeId {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return EdgeId(id)
}

func (id NodeId) String() string { return uuid.UUID(id).String() }
func (id EdgeId) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the nil UUID.
func (id NodeId) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id EdgeId) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// ParseNodeId parses a canonical UUID string into a NodeId.
func ParseNodeId(s string) (NodeId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NodeId{}, err
	}
	return NodeId(id), nil
}

// ParseEdgeId parses a canonical UUID string into an EdgeId.
func ParseEdgeId(s string) (EdgeId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EdgeId{}, err
	}
	return EdgeId(id), nil
}
