package trace

import "github.com/inference-sim/paged-kv-sim/sim"

// TraceSummary aggregates statistics from recorded events.
type TraceSummary struct {
	TotalEvents     int                   `json:"total_events"`
	EventCounts     map[sim.EventKind]int `json:"event_counts"`
	NumRequests     int                   `json:"num_requests"`
	FaultsByRequest map[string]int        `json:"faults_by_request"` // page faults attributed to each request
	CopyOnWrites    int                   `json:"copy_on_writes"`
	PrefixReuses    int                   `json:"prefix_reuses"`
}

// Summarize computes aggregate statistics over records.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(records []Record) *TraceSummary {
	summary := &TraceSummary{
		EventCounts:     make(map[sim.EventKind]int),
		FaultsByRequest: make(map[string]int),
	}
	summary.TotalEvents = len(records)
	for _, r := range records {
		summary.EventCounts[r.Kind()]++
		switch r.Event.(type) {
		case sim.RequestStarted:
			summary.NumRequests++
		case sim.PageFault:
			summary.FaultsByRequest[r.RequestID]++
		case sim.CopyOnWrite:
			summary.CopyOnWrites++
		case sim.PrefixReused:
			summary.PrefixReuses++
		}
	}
	return summary
}

// ForRequest returns the records emitted on behalf of one request.
func ForRequest(records []Record, requestID string) []Record {
	var out []Record
	for _, r := range records {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out
}
