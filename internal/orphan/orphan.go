// Package orphan implements the heuristic remapper that reattaches
// leaf-table pages unreachable from any interior-table page back to a
// plausible owning schema, by matching decoded column counts. This is
// deliberately weak (column types are never checked) — spec §9 flags the
// heuristic as a known limitation, not a bug to be "fixed" by inventing
// stronger semantics the source never had.
package orphan

import (
	"github.com/elordeiro/sqlitecarver/internal/btree"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/schema"
)

// Candidate is one orphan leaf attached to one candidate owning schema.
type Candidate struct {
	LeafPage int64
	Schema   schema.Entry
	Rows     []btree.Row
}

// Find walks every page in [2, declaredPageCount], classifies it, and
// collects leaf-table pages that are not members of reachable (the set
// of pages already visited while walking every known table's b-tree from
// its root). For every such orphan leaf with at least one decoded row,
// it proposes every schema entry whose column count matches the first
// row's field count as a candidate owner. A leaf may be attached to zero,
// one, or several candidates.
func Find(w *btree.Walker, declaredPageCount int64, reachable map[int64]bool, schemas []schema.Entry) []Candidate {
	var candidates []Candidate
	for p := int64(2); p <= declaredPageCount; p++ {
		if reachable[p] {
			continue
		}
		h, bytes, err := w.Page(p)
		if err != nil || h.Kind != page.KindLeafTable {
			continue
		}
		rows := rowsOnPage(w, p, h, bytes)
		if len(rows) == 0 {
			continue
		}
		arity := len(rows[0].Cell.Fields)
		for _, s := range schemas {
			if s.Type == "table" && len(s.Columns) == arity {
				candidates = append(candidates, Candidate{LeafPage: p, Schema: s, Rows: rows})
			}
		}
	}
	return candidates
}

func rowsOnPage(w *btree.Walker, p int64, h page.Header, bytes []byte) []btree.Row {
	var rows []btree.Row
	for _, off := range page.CellPointers(p, bytes, h) {
		c, err := w.DecodeCellAt(p, bytes, h, off)
		if err != nil {
			continue
		}
		rows = append(rows, btree.Row{Page: p, Cell: *c})
	}
	return rows
}

// ReachableSet unions ReachablePages across every root page in schemas,
// the set against which Find excludes genuinely-attached leaves.
func ReachableSet(w *btree.Walker, schemas []schema.Entry) map[int64]bool {
	reachable := map[int64]bool{}
	for _, s := range schemas {
		if s.Type != "table" || s.RootPage == 0 {
			continue
		}
		for _, p := range w.ReachablePages(s.RootPage) {
			reachable[p] = true
		}
	}
	return reachable
}
