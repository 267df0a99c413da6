package trace

import "time"

// OperationTrace captures timing data for a single Store commit, traversal,
// or AutoLinker cycle. Stable and exported for downstream consumers.
type OperationTrace struct {
	Spans           []Span `json:"spans"`
	TotalDurationMs int64  `json:"totalDurationMs"`
}

// Span represents a single timed stage within an operation. Stable stage
// names: "scan", "embed", "propose-similarity", "propose-structural",
// "dedup", "contradiction", "commit", "decay", "retention-sweep",
// "retention-purge".
type Span struct {
	Name       string           `json:"name"`
	DurationMs int64            `json:"durationMs"`
	OK         bool             `json:"ok"`
	Error      string           `json:"error,omitempty"`
	Counters   map[string]int64 `json:"counters,omitempty"`
}

// NewTrace creates a new OperationTrace with empty spans.
func NewTrace() *OperationTrace {
	return &OperationTrace{Spans: make([]Span, 0)}
}

func (t *OperationTrace) addSpan(span Span) {
	t.Spans = append(t.Spans, span)
	t.TotalDurationMs += span.DurationMs
}

// SpanTimer measures the duration of one named stage.
type SpanTimer struct {
	name    string
	start   int64
	trace   *OperationTrace
	enabled bool
}

// NewSpanTimer creates a timer for a named span. If enabled is false or
// trace is nil, Finish is a no-op — callers can unconditionally defer it.
func NewSpanTimer(name string, trace *OperationTrace, enabled bool) *SpanTimer {
	if !enabled || trace == nil {
		return &SpanTimer{enabled: false}
	}
	return &SpanTimer{name: name, start: timeNowMs(), trace: trace, enabled: true}
}

// Finish completes the span and records it to the trace.
func (st *SpanTimer) Finish(ok bool, err error, counters map[string]int64) {
	if !st.enabled {
		return
	}
	duration := timeNowMs() - st.start
	span := Span{Name: st.name, DurationMs: duration, OK: ok, Counters: counters}
	if err != nil {
		span.Error = err.Error()
	}
	st.trace.addSpan(span)
}

func timeNowMs() int64 { return time.Now().UnixMilli() }
