package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/inference-sim/paged-kv-sim/sim"
	"github.com/inference-sim/paged-kv-sim/sim/trace"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	return table
}

// printRequests renders one row per request.
func printRequests(w io.Writer, results []sim.RequestResult) {
	table := newTable(w, []string{"REQUEST", "PREFIX", "CACHE HIT", "PREFIX TOKENS", "DECODED", "COW", "PAGES"})
	for _, r := range results {
		table.Append([]string{
			r.ID,
			r.PrefixKey.Short(),
			strconv.FormatBool(r.CacheHit),
			strconv.Itoa(r.PrefixTokens),
			strconv.Itoa(r.Decoded),
			strconv.Itoa(r.CopyOnWrites),
			fmt.Sprint(r.PageIDs),
		})
	}
	table.Render()
}

// printPages renders the state of every page in the pool.
func printPages(w io.Writer, states []sim.PageState) {
	table := newTable(w, []string{"PAGE", "USED", "CAPACITY", "REFS", "GEN", "FREE"})
	for _, s := range states {
		table.Append([]string{
			strconv.Itoa(s.PageID),
			strconv.Itoa(s.UsedSlots),
			strconv.Itoa(s.TotalSlots),
			strconv.Itoa(s.RefCount),
			strconv.FormatUint(s.Generation, 10),
			strconv.FormatBool(s.Freed),
		})
	}
	table.Render()
}

// printSummary renders per-kind event counts in a stable order.
func printSummary(w io.Writer, summary *trace.TraceSummary) {
	kinds := make([]string, 0, len(summary.EventCounts))
	for k := range summary.EventCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	table := newTable(w, []string{"EVENT", "COUNT"})
	for _, k := range kinds {
		table.Append([]string{k, strconv.Itoa(summary.EventCounts[sim.EventKind(k)])})
	}
	table.SetFooter([]string{"TOTAL", strconv.Itoa(summary.TotalEvents)})
	table.Render()
}
