// Package btree walks table b-trees from a root page down to their leaf
// pages, and reassembles the ordered row stream those leaves carry. It
// never follows index b-trees beyond classifying them — index traversal
// for lookups is out of scope.
package btree

import (
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/header"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/reader"
	"github.com/elordeiro/sqlitecarver/internal/record"
)

// Row is one decoded leaf cell, tagged with the page it was found on.
type Row struct {
	Page int64
	Cell record.Cell
}

// Walker materializes pages reachable from a table root, and the rows
// those leaf pages carry. It holds no cache: every call re-reads and
// re-classifies the pages it touches from the shared file buffer.
type Walker struct {
	file              *reader.Buffer
	pageSize          int
	usable            int
	declaredPageCount int64
	autoVacuum        bool
	enc               header.Encoding
}

func NewWalker(file *reader.Buffer, pageSize, usable int, declaredPageCount int64, autoVacuum bool, enc header.Encoding) *Walker {
	return &Walker{
		file:              file,
		pageSize:          pageSize,
		usable:            usable,
		declaredPageCount: declaredPageCount,
		autoVacuum:        autoVacuum,
		enc:               enc,
	}
}

// Page returns the classified header and raw bytes of pageIndex.
func (w *Walker) Page(pageIndex int64) (page.Header, []byte, error) {
	if pageIndex < 1 || pageIndex > w.declaredPageCount {
		return page.Header{}, nil, &dberrors.TruncatedPageError{Page: pageIndex}
	}
	bytes := page.Reader(w.file, pageIndex, w.pageSize)
	h, err := page.Classify(pageIndex, bytes, w.autoVacuum)
	return h, bytes, err
}

// ReachablePages returns every page reachable from rootPage by walking
// interior-table left-child pointers and each page's right-most pointer,
// in the natural left-to-right order a full scan of the tree gives. The
// root itself is included whether it is a leaf or an interior page. A
// cycle (a page revisited through some malformed left-child pointer) is
// silently broken rather than looped forever.
func (w *Walker) ReachablePages(rootPage int64) []int64 {
	var order []int64
	seen := map[int64]bool{}
	var visit func(p int64)
	visit = func(p int64) {
		if seen[p] {
			return
		}
		seen[p] = true
		order = append(order, p)

		h, bytes, err := w.Page(p)
		if err != nil || !h.Kind.IsTable() || !h.Kind.IsInterior() {
			return
		}
		ptrs := page.CellPointers(p, bytes, h)
		for _, off := range ptrs {
			c, err := record.Decode(w.file, bytes, p, h.Kind, off, w.usable, w.pageSize, w.declaredPageCount, w.enc, false)
			if err != nil {
				continue
			}
			if c.LeftChildPage != 0 {
				visit(int64(c.LeftChildPage))
			}
		}
		if h.RightMostPointer != 0 {
			visit(int64(h.RightMostPointer))
		}
	}
	visit(rootPage)
	return order
}

// Rows walks rootPage and returns every row carried by the leaf pages
// reachable from it, in tree order. Interior pages contribute nothing
// directly: their cells exist only to route the walk, per the table
// b-tree structure.
func (w *Walker) Rows(rootPage int64) []Row {
	var rows []Row
	for _, p := range w.ReachablePages(rootPage) {
		h, bytes, err := w.Page(p)
		if err != nil || h.Kind != page.KindLeafTable {
			continue
		}
		for _, off := range page.CellPointers(p, bytes, h) {
			c, err := w.DecodeCellAt(p, bytes, h, off)
			if err != nil {
				continue
			}
			rows = append(rows, Row{Page: p, Cell: *c})
		}
	}
	return rows
}

// DecodeCellAt decodes the cell at byte offset off on page p, whose
// header h and raw bytes were already obtained from Page. Exposed so
// callers walking pages independently of ReachablePages/Rows (the orphan
// remapper, the free-block scavenger) can reuse the walker's file/usable
// page-size/encoding context instead of threading them through again.
func (w *Walker) DecodeCellAt(p int64, bytes []byte, h page.Header, off int) (*record.Cell, error) {
	return record.Decode(w.file, bytes, p, h.Kind, off, w.usable, w.pageSize, w.declaredPageCount, w.enc, false)
}

// DecodeFreeCellAt decodes a cell in "free-space mode" (spec §4.5): no
// trusted payload_len/rowid prefix, decoding starts directly at the
// payload-header-length varint.
func (w *Walker) DecodeFreeCellAt(p int64, bytes []byte, h page.Header, off int) (*record.Cell, error) {
	return record.Decode(w.file, bytes, p, h.Kind, off, w.usable, w.pageSize, w.declaredPageCount, w.enc, true)
}

// Usable, PageSize, DeclaredPageCount, and Encoding expose the walker's
// file-level context to collaborators (orphan, database) that need it
// without re-deriving it from the header.
func (w *Walker) Usable() int              { return w.usable }
func (w *Walker) PageSize() int            { return w.pageSize }
func (w *Walker) DeclaredPageCount() int64 { return w.declaredPageCount }
func (w *Walker) Encoding() header.Encoding { return w.enc }
