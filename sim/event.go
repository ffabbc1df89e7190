package sim

// EventKind names one kind of observable paging operation.
type EventKind string

const (
	KindPageFault       EventKind = "page_fault"
	KindPageFreed       EventKind = "page_freed"
	KindSlotWritten     EventKind = "kv_write"
	KindPrefixReused    EventKind = "prefix_reuse"
	KindCopyOnWrite     EventKind = "copy_on_write"
	KindTokenStep       EventKind = "token_step"
	KindDecodeStarted   EventKind = "decode_start"
	KindDecodeFinished  EventKind = "decode_end"
	KindRequestStarted  EventKind = "request_start"
	KindRequestFinished EventKind = "request_end"
)

// Event is a closed set of tagged variants, one per EventKind. Each variant
// carries only the operands relevant to its kind.
type Event interface {
	Kind() EventKind
	isEvent()
}

// PageFault is emitted when the pool hands out a page.
type PageFault struct {
	PageID int `json:"page_id"`
}

// PageFreed is emitted when a page returns to the pool.
type PageFreed struct {
	PageID int `json:"page_id"`
}

// SlotWritten is emitted once per layer when a token's K/V lands in a slot.
type SlotWritten struct {
	PageID     int `json:"page_id"`
	Slot       int `json:"slot"`
	TokenIndex int `json:"token_idx"`
	Layer      int `json:"layer"`
}

// PrefixReused is emitted on a prefix cache hit.
type PrefixReused struct {
	PrefixKey PrefixKey `json:"prefix_key"`
	NumPages  int       `json:"num_pages"`
}

// CopyOnWrite is emitted after a shared page has been duplicated.
type CopyOnWrite struct {
	SourcePageID int `json:"source_page_id"`
	NewPageID    int `json:"new_page_id"`
}

type TokenStep struct {
	TokenIndex int `json:"token_idx"`
}

type DecodeStarted struct {
	NumPages int `json:"num_pages"`
}

type DecodeFinished struct{}

type RequestStarted struct {
	Prompt string `json:"prompt"`
}

type RequestFinished struct{}

func (PageFault) Kind() EventKind { return KindPageFault }
func (PageFreed) Kind() EventKind { return KindPageFreed }
func (SlotWritten) Kind() EventKind { return KindSlotWritten }
func (PrefixReused) Kind() EventKind { return KindPrefixReused }
func (CopyOnWrite) Kind() EventKind { return KindCopyOnWrite }
func (TokenStep) Kind() EventKind { return KindTokenStep }
func (DecodeStarted) Kind() EventKind { return KindDecodeStarted }
func (DecodeFinished) Kind() EventKind { return KindDecodeFinished }
func (RequestStarted) Kind() EventKind { return KindRequestStarted }
func (RequestFinished) Kind() EventKind { return KindRequestFinished }

func (PageFault) isEvent() {}
func (PageFreed) isEvent() {}
func (SlotWritten) isEvent() {}
func (PrefixReused) isEvent() {}
func (CopyOnWrite) isEvent() {}
func (TokenStep) isEvent() {}
func (DecodeStarted) isEvent() {}
func (DecodeFinished) isEvent() {}
func (RequestStarted) isEvent() {}
func (RequestFinished) isEvent() {}

// EventSink receives paging events. Sinks are informational only and must
// be safe for concurrent use; the core never depends on them for correctness.
type EventSink interface {
	Emit(requestID string, ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(string, Event) {}

func sinkOrNop(s EventSink) EventSink {
	if s == nil {
		return NopSink{}
	}
	return s
}
