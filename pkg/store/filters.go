package store

import "time"

// NodeFilter is a conjunction of criteria for ListNodes/CountNodes, ported
// from the original storage/filters.rs builder.
type NodeFilter struct {
	Kinds          []string
	Tags           []string // at-least-one match
	SourceAgent    string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	MinImportance  *float32
	IncludeDeleted bool
	DeletedOnly    bool
	UpdatedBefore  *time.Time
	Limit          int
	Offset         int
}

// NewNodeFilter returns an empty filter matching every live node.
func NewNodeFilter() NodeFilter { return NodeFilter{} }

func (f NodeFilter) WithKinds(kinds ...string) NodeFilter { f.Kinds = kinds; return f }
func (f NodeFilter) WithTags(tags ...string) NodeFilter   { f.Tags = tags; return f }
func (f NodeFilter) WithSourceAgent(agent string) NodeFilter {
	f.SourceAgent = agent
	return f
}
func (f NodeFilter) CreatedAfter_(t time.Time) NodeFilter  { f.CreatedAfter = &t; return f }
func (f NodeFilter) CreatedBefore_(t time.Time) NodeFilter { f.CreatedBefore = &t; return f }
func (f NodeFilter) WithMinImportance(v float32) NodeFilter {
	f.MinImportance = &v
	return f
}
func (f NodeFilter) IncludeDeleted_() NodeFilter { f.IncludeDeleted = true; return f }
func (f NodeFilter) DeletedOnly_() NodeFilter {
	f.DeletedOnly = true
	f.IncludeDeleted = true
	return f
}
func (f NodeFilter) UpdatedBefore_(t time.Time) NodeFilter { f.UpdatedBefore = &t; return f }
func (f NodeFilter) WithLimit(n int) NodeFilter            { f.Limit = n; return f }
func (f NodeFilter) WithOffset(n int) NodeFilter           { f.Offset = n; return f }

// StorageStats summarizes the database for operators and the Retention
// engine's max-nodes cap.
type StorageStats struct {
	NodeCount            uint64
	EdgeCount             uint64
	NodeCountsByKind      map[string]uint64
	EdgeCountsByRelation  map[string]uint64
	DBSizeBytes           uint64
	OldestNode            *time.Time
	NewestNode            *time.Time
}
