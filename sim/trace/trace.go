package trace

import (
	"sync"
	"time"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// TraceLevel controls the verbosity of event recording.
type TraceLevel string

const (
	// TraceLevelNone disables recording.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelPages records everything except per-layer slot writes.
	TraceLevelPages TraceLevel = "pages"
	// TraceLevelAll records every event, including one kv_write per layer.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelPages: true,
	TraceLevelAll:   true,
	"":              true, // empty defaults to all
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Recorder is a sim.EventSink that keeps events in memory. Safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	level   TraceLevel
	now     func() time.Time
	start   time.Time
	records []Record
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder(level TraceLevel) *Recorder {
	if level == "" {
		level = TraceLevelAll
	}
	return &Recorder{level: level, now: time.Now, records: make([]Record, 0)}
}

// Emit implements sim.EventSink.
func (r *Recorder) Emit(requestID string, ev sim.Event) {
	if r.level == TraceLevelNone || (r.level == TraceLevelPages && ev.Kind() == sim.KindSlotWritten) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now()
	if len(r.records) == 0 {
		r.start = t
	}
	r.records = append(r.records, Record{
		Seq:       int64(len(r.records) + 1),
		Elapsed:   t.Sub(r.start),
		RequestID: requestID,
		Event:     ev,
	})
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Clear drops all records.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = r.records[:0]
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
