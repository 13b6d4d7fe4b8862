// Package database orchestrates the full forensic read: file header,
// every page's classification and cell content (live, scavenged,
// unallocated), schema reconstruction, orphan remapping, and pointer-map
// decoding. It implements the strict phase ordering spec.md §5 requires:
// read file, decode file header, decode all page headers, mark overflow
// pages, reconstruct schema, annotate root pages, remap orphans.
package database

import (
	"fmt"

	"github.com/elordeiro/sqlitecarver/internal/btree"
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/header"
	"github.com/elordeiro/sqlitecarver/internal/logging"
	"github.com/elordeiro/sqlitecarver/internal/orphan"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/ptrmap"
	"github.com/elordeiro/sqlitecarver/internal/reader"
	"github.com/elordeiro/sqlitecarver/internal/record"
	"github.com/elordeiro/sqlitecarver/internal/schema"
)

// FreeCell is a record decoded from a free block in free-space mode; it
// may be a clean decode (Cell set) or, on failure, retained as Raw bytes.
type FreeCell struct {
	Block  page.FreeBlock
	Cell   *record.Cell
	Raw    []byte
	Failed bool
}

// PageInfo is one page's fully decoded picture, per spec.md §4.9 / C10.
type PageInfo struct {
	Index            int64
	Header           page.Header
	ClassifyErr      error
	LiveCells        []*record.Cell
	FreeCells        []FreeCell
	UnallocatedStart int
	UnallocatedEnd   int
	UnallocatedBytes []byte
	IsOverflow       bool
	ChildLeaves      []int64 // interior pages only: pages reachable directly below this one
	DeletedLeaves    []int64 // root pages only: orphan leaves attached here
	SchemaAnnotation *schema.Entry
}

// Database is the fully decoded model of one file.
type Database struct {
	File    *reader.Buffer
	Header  *header.Header
	Walker  *btree.Walker
	Pages   map[int64]*PageInfo
	Schemas []schema.Entry
	Orphans []orphan.Candidate
	PtrMap  []ptrmap.Entry
	errors  []error
}

// Errors returns every non-fatal error accumulated while decoding: schema
// parse failures, malformed cells, and the like. None of these abort
// construction; they are recoverable per spec.md §7.
func (d *Database) Errors() []error { return d.errors }

// Open reads and fully decodes a database image already loaded into
// memory. It returns a fatal error only for FileIO/NotADatabase-class
// failures (spec.md §7); every other structural problem is recorded in
// the resulting Database's Errors() and decoding continues.
func Open(data []byte) (*Database, error) {
	buf := reader.New(data)
	hdr, err := header.Parse(buf)
	if err != nil {
		return nil, err
	}

	declaredPageCount := int64(hdr.DatabasePageCount)
	if declaredPageCount == 0 {
		declaredPageCount = int64(buf.Len() / hdr.PageSize)
	}

	w := btree.NewWalker(buf, hdr.PageSize, hdr.UsableSize(), declaredPageCount, hdr.IncrementalVacuum, hdr.TextEncoding)

	db := &Database{
		File:   buf,
		Header: hdr,
		Walker: w,
		Pages:  make(map[int64]*PageInfo, declaredPageCount),
	}

	db.decodeAllPages(declaredPageCount)
	db.markOverflowPages()

	schemas, schemaErrs := schema.Read(w)
	db.Schemas = schemas
	for _, e := range schemaErrs {
		db.errors = append(db.errors, e)
		logging.Debug("schema row could not be decoded", "err", e)
	}
	db.annotateRootPages()

	reachable := orphan.ReachableSet(w, schemas)
	db.Orphans = orphan.Find(w, declaredPageCount, reachable, schemas)
	db.linkDeletedLeaves()

	if hdr.IncrementalVacuum {
		db.PtrMap = ptrmap.ListEntries(buf, hdr.PageSize, hdr.UsableSize(), declaredPageCount)
	}

	return db, nil
}

// decodeAllPages is phase 3: decode every page's header, live cells,
// free-block cells, and unallocated range, in ascending page-index order.
func (d *Database) decodeAllPages(declaredPageCount int64) {
	for p := int64(1); p <= declaredPageCount; p++ {
		info := &PageInfo{Index: p}
		h, bytes, err := d.Walker.Page(p)
		info.Header = h
		if err != nil {
			info.ClassifyErr = err
			d.errors = append(d.errors, err)
			logging.Debug("page classification failed", "page", p, "err", err)
			d.Pages[p] = info
			continue
		}

		if h.Kind.IsInterior() || h.Kind.IsLeaf() {
			for _, off := range page.CellPointers(p, bytes, h) {
				c, err := d.Walker.DecodeCellAt(p, bytes, h, off)
				if err != nil {
					d.errors = append(d.errors, err)
					logging.Debug("dropped malformed cell", "page", p, "offset", off, "err", err)
					continue
				}
				info.LiveCells = append(info.LiveCells, c)
				if c.OverflowTruncated {
					logging.Debug("truncated overflow chain", "page", p, "offset", off)
				}
				if h.Kind.IsInterior() && c.LeftChildPage != 0 {
					info.ChildLeaves = append(info.ChildLeaves, int64(c.LeftChildPage))
				}
			}
			if h.Kind.IsInterior() && h.RightMostPointer != 0 {
				info.ChildLeaves = append(info.ChildLeaves, int64(h.RightMostPointer))
			}

			for _, block := range page.FreeBlocks(bytes, h) {
				fc := FreeCell{Block: block}
				c, err := d.Walker.DecodeFreeCellAt(p, bytes, h, block.Offset+4)
				if err != nil {
					fc.Failed = true
					end := block.Offset + block.Length
					if end > len(bytes) {
						end = len(bytes)
					}
					fc.Raw = bytes[block.Offset+4 : max(block.Offset+4, end)]
					logging.Debug("dropped malformed free-block cell", "page", p, "offset", block.Offset, "err", err)
				} else {
					fc.Cell = c
					if c.OverflowTruncated {
						logging.Debug("truncated overflow chain in free block", "page", p, "offset", block.Offset)
					}
				}
				info.FreeCells = append(info.FreeCells, fc)
			}

			start, end := page.UnallocatedRange(p, h)
			info.UnallocatedStart, info.UnallocatedEnd = start, end
			if end > start && end <= len(bytes) {
				info.UnallocatedBytes = bytes[start:end]
			}
		}

		d.Pages[p] = info
	}
}

// markOverflowPages is phase 4: every page visited while following an
// overflow chain from any live or scavenged cell is retroactively
// relabeled Overflow, per spec.md §4.4's "global overflow pages set".
func (d *Database) markOverflowPages() {
	mark := func(pages []int64) {
		for _, p := range pages {
			if info, ok := d.Pages[p]; ok {
				info.IsOverflow = true
				info.Header.Kind = page.KindOverflow
			}
		}
	}
	for _, info := range d.Pages {
		for _, c := range info.LiveCells {
			mark(c.OverflowPages)
		}
		for _, fc := range info.FreeCells {
			if fc.Cell != nil {
				mark(fc.Cell.OverflowPages)
			}
		}
	}
}

// annotateRootPages is phase 6: attach each catalog entry that names a
// root page (tables and indexes alike) to that page's PageInfo.
func (d *Database) annotateRootPages() {
	for i := range d.Schemas {
		s := d.Schemas[i]
		if s.RootPage == 0 {
			continue
		}
		if info, ok := d.Pages[s.RootPage]; ok {
			info.SchemaAnnotation = &d.Schemas[i]
		}
	}
}

// linkDeletedLeaves is phase 7: record each orphan candidate's leaf page
// against its candidate root's PageInfo.
func (d *Database) linkDeletedLeaves() {
	for _, c := range d.Orphans {
		if info, ok := d.Pages[c.Schema.RootPage]; ok {
			info.DeletedLeaves = append(info.DeletedLeaves, c.LeafPage)
		}
	}
}

// ListTables returns every catalog entry of type "table".
func (d *Database) ListTables() []schema.Entry {
	var tables []schema.Entry
	for _, s := range d.Schemas {
		if s.Type == "table" {
			tables = append(tables, s)
		}
	}
	return tables
}

// RootPageByName looks up a table's root page by name, matching C10's
// "root-page-by-name lookup" file-level query.
func (d *Database) RootPageByName(name string) (int64, error) {
	for _, s := range d.Schemas {
		if s.Type == "table" && s.Name == name {
			return s.RootPage, nil
		}
	}
	return 0, fmt.Errorf("%w: no table named %q", dberrors.ErrSchemaParseFailed, name)
}

// HasPointerMap reports whether the database carries pointer-map pages
// (auto-vacuum/incremental-vacuum enabled).
func (d *Database) HasPointerMap() bool {
	return d.Header.IncrementalVacuum
}
