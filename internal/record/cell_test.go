package record

import (
	"testing"

	"github.com/elordeiro/sqlitecarver/internal/header"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/reader"
)

// buildLeafTableCell builds a well-formed, wholly-local leaf-table cell:
// varint payload_len, varint rowid, varint header_len, serial types, fields.
func buildLeafTableCell(rowID int64, fields []Value) []byte {
	var serials []uint64
	var body []byte
	for _, f := range fields {
		switch f.Kind {
		case KindInt:
			serials = append(serials, 4) // int32
			b := []byte{byte(f.Int >> 24), byte(f.Int >> 16), byte(f.Int >> 8), byte(f.Int)}
			body = append(body, b...)
		case KindText:
			serials = append(serials, uint64(13+2*len(f.Text)))
			body = append(body, []byte(f.Text)...)
		}
	}
	var hdr []byte
	for _, s := range serials {
		hdr = append(hdr, reader.EncodeVarint(s)...)
	}
	hdrLenVarint := reader.EncodeVarint(uint64(len(hdr) + 1))
	payload := append(append([]byte{}, hdrLenVarint...), hdr...)
	payload = append(payload, body...)

	cell := reader.EncodeVarint(uint64(len(payload)))
	cell = append(cell, reader.EncodeVarint(uint64(rowID))...)
	cell = append(cell, payload...)
	return cell
}

func TestDecodeLeafTableCellWhollyLocal(t *testing.T) {
	cellBytes := buildLeafTableCell(7, []Value{
		{Kind: KindText, Text: "hello"},
	})
	pageBytes := make([]byte, 512)
	copy(pageBytes[50:], cellBytes)

	c, err := Decode(reader.New(pageBytes), pageBytes, 2, page.KindLeafTable, 50, 512, 512, 10, header.EncodingUTF8, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.RowID != 7 {
		t.Errorf("RowID = %d, want 7", c.RowID)
	}
	if len(c.Fields) != 1 || c.Fields[0].Text != "hello" {
		t.Errorf("Fields = %+v", c.Fields)
	}
}

func TestDecodeLeafTableCellNullFirstColumnIsRowID(t *testing.T) {
	// header says: NULL, int32 -- but in real SQLite tables the first
	// column is usually elided (serial type 0) when it's the integer
	// primary key alias.
	hdr := []byte{3, 0, 4} // headerlen=3, serial types: NULL, int32
	body := []byte{0, 0, 0, 42}
	payload := append(hdr, body...)
	cell := reader.EncodeVarint(uint64(len(payload)))
	cell = append(cell, reader.EncodeVarint(55)...)
	cell = append(cell, payload...)

	pageBytes := make([]byte, 512)
	copy(pageBytes[0:], cell)

	c, err := Decode(reader.New(pageBytes), pageBytes, 2, page.KindLeafTable, 0, 512, 512, 10, header.EncodingUTF8, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Fields[0].Kind != KindInt || c.Fields[0].Int != 55 {
		t.Errorf("first field = %+v, want rowid 55", c.Fields[0])
	}
}

func TestDecodeInteriorTableCell(t *testing.T) {
	pageBytes := make([]byte, 512)
	pageBytes[10], pageBytes[11], pageBytes[12], pageBytes[13] = 0, 0, 0, 99
	rowidVarint := reader.EncodeVarint(123)
	copy(pageBytes[14:], rowidVarint)

	c, err := Decode(reader.New(pageBytes), pageBytes, 2, page.KindInteriorTable, 10, 512, 512, 10, header.EncodingUTF8, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.LeftChildPage != 99 {
		t.Errorf("LeftChildPage = %d, want 99", c.LeftChildPage)
	}
	if c.RowID != 123 {
		t.Errorf("RowID = %d, want 123", c.RowID)
	}
}

func TestDecodeDropsMalformedCellRatherThanPanicking(t *testing.T) {
	pageBytes := make([]byte, 20)
	// Cell near the very end of a tiny page: everything truncated.
	_, err := Decode(reader.New(pageBytes), pageBytes, 2, page.KindInteriorTable, 18, 512, 512, 10, header.EncodingUTF8, false)
	if err == nil {
		t.Fatal("expected malformed cell error")
	}
}

func TestDecodeLeafTableOverflowChain(t *testing.T) {
	pageSize := 512
	usable := pageSize
	maxLocal := usable - 35
	payloadLen := maxLocal + 2000

	// Build payload: header-len varint + one big blob serial type.
	blobLen := payloadLen - 2 // approx; header is small enough for 1-byte varints
	serial := uint64(12 + 2*blobLen)
	serialVarint := reader.EncodeVarint(serial)
	hdrLen := 1 + len(serialVarint)
	hdrLenVarint := reader.EncodeVarint(uint64(hdrLen))
	for len(hdrLenVarint)+len(serialVarint) != hdrLen {
		// hdrLen includes its own varint length; recompute once (values here always fit in 1 byte).
		hdrLen = len(hdrLenVarint) + len(serialVarint)
		hdrLenVarint = reader.EncodeVarint(uint64(hdrLen))
	}

	blobData := make([]byte, blobLen)
	for i := range blobData {
		blobData[i] = 0x41
	}
	payload := append(append([]byte{}, hdrLenVarint...), serialVarint...)
	payload = append(payload, blobData...)

	local := localSizeForTest(len(payload), usable)
	localPart := payload[:local]
	residual := payload[local:]

	// Lay out: page 2 holds the cell, pages 3 and 4 hold the overflow chain.
	file := make([]byte, 5*pageSize)
	cellStart := 50
	cellBytes := reader.EncodeVarint(uint64(len(payload)))
	cellBytes = append(cellBytes, reader.EncodeVarint(1)...) // rowid
	cellBytes = append(cellBytes, localPart...)
	cellBytes = append(cellBytes, 0, 0, 0, 3) // first overflow page = 3
	copy(file[pageSize+cellStart:], cellBytes)

	writeOverflowPage(file, pageSize, 3, 4, residual)

	buf := reader.New(file)
	pageBytes := buf.Slice(pageSize, pageSize)
	c, err := Decode(buf, pageBytes, 2, page.KindLeafTable, cellStart, usable, pageSize, 5, header.EncodingUTF8, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.OverflowTruncated {
		t.Fatal("unexpected truncation")
	}
	if len(c.Fields) != 1 || c.Fields[0].Kind != KindBlob || len(c.Fields[0].Blob) != blobLen {
		t.Fatalf("blob field = kind %v len %d, want len %d", c.Fields[0].Kind, len(c.Fields[0].Blob), blobLen)
	}
	if len(c.OverflowPages) == 0 {
		t.Error("expected at least one overflow page recorded")
	}
}

func localSizeForTest(payloadLen, usable int) int {
	maxLocal := usable - 35
	if payloadLen <= maxLocal {
		return payloadLen
	}
	minLocal := (usable-12)*32/255 - 23
	local := minLocal + (payloadLen-minLocal)%(usable-4)
	if local > maxLocal {
		local = minLocal
	}
	return local
}

func writeOverflowPage(file []byte, pageSize int, pageNum int64, nextPage int64, data []byte) {
	start := int(pageNum-1) * pageSize
	if nextPage != 0 {
		file[start] = byte(nextPage >> 24)
		file[start+1] = byte(nextPage >> 16)
		file[start+2] = byte(nextPage >> 8)
		file[start+3] = byte(nextPage)
	}
	chunk := pageSize - 4
	if chunk > len(data) {
		chunk = len(data)
		copy(file[start+4:], data[:chunk])
		return
	}
	copy(file[start+4:], data[:chunk])
}
