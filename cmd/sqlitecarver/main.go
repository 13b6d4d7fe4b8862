// Command sqlitecarver is a forensic reader for the on-disk SQLite file
// format. It reconstructs live table contents directly from the page
// layout, without going through the SQLite library, and also recovers
// records the live engine considers deleted: free-block remnants,
// unallocated page bytes, and orphaned leaf pages detached from their
// b-tree.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/elordeiro/sqlitecarver/internal/blob"
	"github.com/elordeiro/sqlitecarver/internal/database"
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/logging"
	"github.com/elordeiro/sqlitecarver/internal/output"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/ptrmap"
	"github.com/elordeiro/sqlitecarver/internal/record"
	"github.com/elordeiro/sqlitecarver/internal/schema"
)

// CLI is the flat flag struct spec.md §6's configuration table enumerates:
// debug, freespace, unallocated, deleted, bin2out, bin2file, and a target
// selector (whole database, by table name, by root-page number, or the
// pointer map).
var CLI struct {
	Database string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`

	Debug       bool   `help:"Verbose page-by-page classification dump on stderr"`
	Freespace   bool   `help:"Include free-block scavenged cells in output"`
	Unallocated bool   `help:"Include printable unallocated bytes in output"`
	Deleted     bool   `help:"Include rows recovered from orphan-remapped leaf pages"`
	Bin2out     bool   `help:"Emit raw blob bytes inline" xor:"blob"`
	Bin2file    bool   `help:"Extract each blob to a temp file and emit its path" xor:"blob"`
	Table       string `help:"Limit output to one table, selected by name" xor:"target"`
	Page        int64  `help:"Limit output to one table, selected by its root-page number" xor:"target"`
	Ptrmap      bool   `help:"List pointer-map entries instead of table rows" xor:"target"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlitecarver"),
		kong.Description("Forensic reader for the SQLite on-disk file format"),
		kong.UsageOnError(),
	)
	logging.Init(CLI.Debug)
	ctx.FatalIfErrorf(run())
}

func run() error {
	if err := validateConfiguration(); err != nil {
		return err
	}

	data, err := os.ReadFile(CLI.Database)
	if err != nil {
		return &dberrors.FileIOError{Path: CLI.Database, Err: err}
	}

	db, err := database.Open(data)
	if err != nil {
		return err
	}

	if CLI.Debug {
		for i := int64(1); i <= db.Walker.DeclaredPageCount(); i++ {
			if info, ok := db.Pages[i]; ok && info.ClassifyErr == nil {
				pageBytes := page.Reader(db.File, i, db.Header.PageSize)
				output.DumpPage(os.Stderr, i, info.Header, pageBytes)
			}
		}
	}

	if CLI.Ptrmap {
		return runPtrmap(db)
	}

	var extractor *blob.Extractor
	if CLI.Bin2file {
		extractor, err = blob.NewExtractor()
		if err != nil {
			return err
		}
		defer extractor.Close()
		fmt.Fprintf(os.Stderr, "extracting blobs to %s\n", extractor.Dir())
	}

	tables, err := targets(db)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := emitTable(db, t, extractor); err != nil {
			return err
		}
	}
	return nil
}

// validateConfiguration catches option combinations kong's own "xor" flag
// groups can't express: --ptrmap selects an entirely different output mode
// (the pointer-map listing) that the row-output flags have no effect on,
// so combining them is a silent no-op unless rejected outright.
func validateConfiguration() error {
	if CLI.Ptrmap && (CLI.Freespace || CLI.Unallocated || CLI.Deleted || CLI.Bin2out || CLI.Bin2file) {
		return &dberrors.UnsupportedConfigurationError{
			Reason: "--ptrmap cannot be combined with --freespace/--unallocated/--deleted/--bin2out/--bin2file",
		}
	}
	return nil
}

// targets resolves the CLI's target selector to the set of table schemas
// to emit: one by name, one by root page, or every table in the catalog.
func targets(db *database.Database) ([]schema.Entry, error) {
	switch {
	case CLI.Table != "":
		root, err := db.RootPageByName(CLI.Table)
		if err != nil {
			return nil, err
		}
		for _, s := range db.Schemas {
			if s.Type == "table" && s.RootPage == root {
				return []schema.Entry{s}, nil
			}
		}
		return nil, fmt.Errorf("%w: no table named %q", dberrors.ErrSchemaParseFailed, CLI.Table)
	case CLI.Page != 0:
		for _, s := range db.Schemas {
			if s.Type == "table" && s.RootPage == CLI.Page {
				return []schema.Entry{s}, nil
			}
		}
		return nil, fmt.Errorf("%w: no table rooted at page %d", dberrors.ErrSchemaParseFailed, CLI.Page)
	default:
		return db.ListTables(), nil
	}
}

func emitTable(db *database.Database, t schema.Entry, extractor *blob.Extractor) error {
	output.WriteHeader(os.Stdout, t.Names())

	info, ok := db.Pages[t.RootPage]
	if !ok {
		return nil
	}

	for _, row := range db.Walker.Rows(t.RootPage) {
		writeCellRow(db, t, row.Page, row.Cell, output.KindLiveCell, extractor)
	}

	if CLI.Freespace {
		for _, p := range db.Walker.ReachablePages(t.RootPage) {
			emitFreeCells(db, t, p, output.KindFreeBlockCell, output.KindFreeBlockRaw, extractor)
		}
	}

	if CLI.Unallocated {
		for _, p := range db.Walker.ReachablePages(t.RootPage) {
			emitUnallocated(db, p, output.KindUnallocated)
		}
	}

	if CLI.Deleted {
		for _, leaf := range info.DeletedLeaves {
			for _, row := range db.Walker.Rows(leaf) {
				writeCellRow(db, t, row.Page, row.Cell, output.KindDeletedCell, extractor)
			}
			emitFreeCells(db, t, leaf, output.KindDeletedFreeCell, output.KindDeletedFreeRaw, extractor)
			if CLI.Unallocated {
				emitUnallocated(db, leaf, output.KindDeletedUnallocated)
			}
		}
	}

	return nil
}

func emitFreeCells(db *database.Database, t schema.Entry, p int64, cellKind, rawKind output.RowKind, extractor *blob.Extractor) {
	info, ok := db.Pages[p]
	if !ok {
		return
	}
	for _, fc := range info.FreeCells {
		if fc.Failed {
			output.WriteRow(os.Stdout, output.Row{Page: p, Kind: rawKind, RawText: output.StripNonPrintable(fc.Raw)})
			continue
		}
		writeCellRow(db, t, p, *fc.Cell, cellKind, extractor)
	}
}

func emitUnallocated(db *database.Database, p int64, kind output.RowKind) {
	info, ok := db.Pages[p]
	if !ok || len(info.UnallocatedBytes) == 0 {
		return
	}
	text := output.StripNonPrintable(info.UnallocatedBytes)
	if text == "" {
		return
	}
	output.WriteRow(os.Stdout, output.Row{Page: p, Kind: kind, RawText: text})
}

func writeCellRow(db *database.Database, t schema.Entry, p int64, c record.Cell, kind output.RowKind, extractor *blob.Extractor) {
	fields := c.Fields
	if CLI.Bin2file && extractor != nil {
		fields = append([]record.Value{}, fields...)
		for i, f := range fields {
			if f.Kind != record.KindBlob {
				continue
			}
			path, err := extractor.Write(t.Name, p, c.RowID, i, f.Blob)
			if err != nil {
				logging.Warn("blob extraction failed", "page", p, "col", i, "err", err)
				continue
			}
			fields[i] = record.Value{Kind: record.KindText, Text: path}
		}
	} else if !CLI.Bin2out {
		fields = append([]record.Value{}, fields...)
		for i, f := range fields {
			if f.Kind == record.KindBlob {
				fields[i] = record.Value{Kind: record.KindText, Text: fmt.Sprintf("<blob:%d bytes>", len(f.Blob))}
			}
		}
	}
	output.WriteRow(os.Stdout, output.Row{Page: p, Kind: kind, Fields: fields, InlineBlobs: CLI.Bin2out})
}

func runPtrmap(db *database.Database) error {
	if !db.HasPointerMap() {
		fmt.Fprintln(os.Stderr, "database has no pointer map (auto-vacuum/incremental-vacuum is off)")
		return nil
	}
	var roots []int64
	for _, s := range db.Schemas {
		if s.Type == "table" && s.RootPage != 0 {
			roots = append(roots, s.RootPage)
		}
	}
	walkParents := ptrmap.WalkParents(db.Walker, roots)
	discrepancies := ptrmap.CrossValidate(db.PtrMap, walkParents)

	fmt.Println("page;type;parent")
	for _, e := range db.PtrMap {
		fmt.Printf("%d;%s;%d\n", e.DataPage, e.Type, e.Parent)
	}
	for _, d := range discrepancies {
		fmt.Fprintf(os.Stderr, "mismatch: page %d ptrmap_parent=%d walk_parent=%d (%s)\n",
			d.DataPage, d.PtrMapParent, d.WalkParent, d.Reason)
	}
	return nil
}
