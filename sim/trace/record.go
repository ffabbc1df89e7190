// Package trace records the typed events emitted by the paging core, for
// replay, visualization and summary statistics.
package trace

import (
	"time"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// Record is one event stamped with its order and timing.
type Record struct {
	Seq       int64         // 1-based, in emission order
	Elapsed   time.Duration // since the first recorded event
	RequestID string        // empty for events outside a request
	Event     sim.Event
}

// Kind is a shortcut for r.Event.Kind().
func (r Record) Kind() sim.EventKind { return r.Event.Kind() }
