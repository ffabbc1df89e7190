package sim

// Gather walks table in token order and returns the key and value vectors
// of every position for one layer and head. pages must contain every page
// the table names. Gather keeps no state between calls.
func Gather(pages []*Page, table *PageTable, layer, head int) (keys, values [][]float32, err error) {
	byID := make(map[int]*Page, len(pages))
	for _, p := range pages {
		byID[p.ID()] = p
	}
	n := table.Len()
	keys = make([][]float32, 0, n)
	values = make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		addr, err := table.Lookup(i)
		if err != nil {
			return nil, nil, err
		}
		page, ok := byID[addr.PageID]
		if !ok {
			return nil, nil, opError("gather", addr.PageID, ErrUnknownPage)
		}
		k, v, err := page.Read(layer, head, addr.Slot)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values, nil
}
