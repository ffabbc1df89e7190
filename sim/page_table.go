package sim

import "fmt"

// SlotAddr is the physical address of one token: a page and a slot in it.
type SlotAddr struct {
	PageID int `json:"page_id"`
	Slot   int `json:"slot"`
}

// PageTable translates a sequence's logical token positions into physical
// slot addresses. Positions are dense and zero-based, in arrival order.
// A PageTable is owned by exactly one sequence; sequences sharing a prefix
// hold independent clones that may name the same pages.
type PageTable struct {
	entries []SlotAddr
}

func NewPageTable() *PageTable {
	return &PageTable{}
}

// Add appends the address of the next token position.
func (pt *PageTable) Add(pageID, slot int) {
	pt.entries = append(pt.entries, SlotAddr{PageID: pageID, Slot: slot})
}

// Lookup returns the address of the token at position tokenIndex.
func (pt *PageTable) Lookup(tokenIndex int) (SlotAddr, error) {
	if tokenIndex < 0 || tokenIndex >= len(pt.entries) {
		return SlotAddr{}, fmt.Errorf("lookup %d in table of %d: %w", tokenIndex, len(pt.entries), ErrIndexOutOfRange)
	}
	return pt.entries[tokenIndex], nil
}

func (pt *PageTable) Len() int { return len(pt.entries) }

// Entries returns a copy of all addresses in token order.
func (pt *PageTable) Entries() []SlotAddr {
	return append([]SlotAddr(nil), pt.entries...)
}

// Clone returns an independent copy.
func (pt *PageTable) Clone() *PageTable {
	return &PageTable{entries: pt.Entries()}
}

// remap points every entry naming oldID at newID instead, keeping slots.
// Used after copy-on-write, where the copy preserves slot positions.
func (pt *PageTable) remap(oldID, newID int) {
	for i := range pt.entries {
		if pt.entries[i].PageID == oldID {
			pt.entries[i].PageID = newID
		}
	}
}
