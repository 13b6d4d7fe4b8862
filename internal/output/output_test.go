package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/elordeiro/sqlitecarver/internal/record"
)

func TestWriteHeaderFormat(t *testing.T) {
	var buf bytes.Buffer
	WriteHeader(&buf, []string{"id", "body"})
	want := "Page;Type;id;body\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteRowWithFields(t *testing.T) {
	var buf bytes.Buffer
	WriteRow(&buf, Row{
		Page: 2,
		Kind: KindLiveCell,
		Fields: []record.Value{
			{Kind: record.KindInt, Int: 1},
			{Kind: record.KindText, Text: "a"},
		},
	})
	got := strings.TrimSpace(buf.String())
	want := "2;C;1;a"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteRowRawBytesLeavesField3Empty(t *testing.T) {
	var buf bytes.Buffer
	WriteRow(&buf, Row{Page: 3, Kind: KindUnallocated, RawText: "garbage"})
	got := strings.TrimSpace(buf.String())
	want := "3;U;;garbage"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteRowInlineBlobsRendersRawBytes(t *testing.T) {
	var buf bytes.Buffer
	WriteRow(&buf, Row{
		Page: 4,
		Kind: KindLiveCell,
		Fields: []record.Value{
			{Kind: record.KindInt, Int: 1},
			{Kind: record.KindBlob, Blob: []byte("raw")},
		},
		InlineBlobs: true,
	})
	got := strings.TrimSpace(buf.String())
	want := "4;C;1;raw"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteRowWithoutInlineBlobsUsesPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	WriteRow(&buf, Row{
		Page:   4,
		Kind:   KindLiveCell,
		Fields: []record.Value{{Kind: record.KindBlob, Blob: []byte("raw")}},
	})
	got := strings.TrimSpace(buf.String())
	want := "4;C;<blob:3 bytes>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripNonPrintableKeepsTabsAndAscii(t *testing.T) {
	in := []byte{'h', 'i', 0x00, 0x01, '\t', 'x', 0x7F}
	got := StripNonPrintable(in)
	want := "hi\tx"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
