// Package output renders decoded rows as the semicolon-delimited textual
// stream spec.md §6 defines, and the verbose per-page debug dump
// supplemented from the source tool's --debug option.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/record"
)

// RowKind is the closed tag set for field 2 of an output row.
type RowKind string

const (
	KindLiveCell           RowKind = "C"
	KindFreeBlockCell      RowKind = "FC"
	KindFreeBlockRaw       RowKind = "F"
	KindUnallocated        RowKind = "U"
	KindDeletedCell        RowKind = "DC"
	KindDeletedFreeCell    RowKind = "DFC"
	KindDeletedFreeRaw     RowKind = "DF"
	KindDeletedUnallocated RowKind = "DU"
)

// Row is one line of rendered output.
type Row struct {
	Page    int64
	Kind    RowKind
	Fields  []record.Value
	RawText string // set instead of Fields for F/U/DF/DU raw-bytes rows

	// InlineBlobs renders any KindBlob field as its literal raw bytes
	// rather than a "<blob:N bytes>" placeholder, for --bin2out (spec
	// §6: "bin2out: include raw blob bytes inline").
	InlineBlobs bool
}

// WriteHeader writes the per-table header line: "Page;Type;col1;col2;...".
func WriteHeader(w io.Writer, columns []string) {
	fmt.Fprintf(w, "Page;Type;%s\n", strings.Join(columns, ";"))
}

// WriteRow renders one Row as a semicolon-delimited line. Field 3 is left
// empty for rows that carry no tabular cell (the raw-bytes kinds).
func WriteRow(w io.Writer, r Row) {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d", r.Page), string(r.Kind))
	if r.RawText != "" || r.Fields == nil {
		parts = append(parts, "", r.RawText)
	} else {
		for _, f := range r.Fields {
			if r.InlineBlobs && f.Kind == record.KindBlob {
				parts = append(parts, string(f.Blob))
				continue
			}
			parts = append(parts, f.String())
		}
	}
	fmt.Fprintln(w, strings.Join(parts, ";"))
}

// StripNonPrintable keeps only bytes in the printable ASCII range (and
// tab), per spec.md §4.5's "stripped of non-printable bytes for display"
// treatment of unallocated regions.
func StripNonPrintable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if (c > 31 && c < 127) || c == 9 {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// DumpPage renders one page's classification, free-block chain, and
// unallocated byte count, for --debug verbose output.
func DumpPage(w io.Writer, pageIndex int64, h page.Header, pageBytes []byte) {
	fmt.Fprintf(w, "page %d: kind=%v cells=%d cell_content_start=%d frag_bytes=%d\n",
		pageIndex, h.Kind, h.CellCount, h.CellContentStart, h.FragmentedFreeByte)

	blocks := page.FreeBlocks(pageBytes, h)
	var freeTotal int
	for _, b := range blocks {
		freeTotal += b.Length
	}
	if len(blocks) > 0 {
		fmt.Fprintf(w, "  free blocks: %d, %s reclaimable\n", len(blocks), humanize.Bytes(uint64(freeTotal)))
	}

	start, end := page.UnallocatedRange(pageIndex, h)
	if end > start {
		fmt.Fprintf(w, "  unallocated: %s\n", humanize.Bytes(uint64(end-start)))
	}
}
