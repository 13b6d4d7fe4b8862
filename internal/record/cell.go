package record

import (
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/header"
	"github.com/elordeiro/sqlitecarver/internal/overflow"
	"github.com/elordeiro/sqlitecarver/internal/page"
	"github.com/elordeiro/sqlitecarver/internal/reader"
)

// Cell is one decoded b-tree cell: either a leaf payload (table or index)
// or an interior separator (left-child pointer + optional index payload).
type Cell struct {
	Offset            int
	LeftChildPage     uint32 // interior table/index
	RowID             int64  // table leaf, table interior
	Fields            []Value
	OverflowPages     []int64
	OverflowTruncated bool
}

// Decode decodes the cell at byte offset cellOffset on a page of kind k.
// file is the whole database (needed to follow overflow chains);
// pageBytes is this page's own slice, starting at offset 0 of the page.
// freeSpace selects the "no trusted length/rowid prefix" decode used when
// scavenging a free block (spec §4.5): the cell decoder begins directly at
// the payload-header-length varint.
//
// A structural inconsistency drops only this cell: the caller gets a
// *dberrors error but should continue with the rest of the page.
func Decode(
	file *reader.Buffer,
	pageBytes []byte,
	pageIndex int64,
	k page.Kind,
	cellOffset int,
	usable int,
	pageSize int,
	declaredPageCount int64,
	enc header.Encoding,
	freeSpace bool,
) (*Cell, error) {
	switch k {
	case page.KindInteriorTable:
		return decodeInteriorTable(pageBytes, pageIndex, cellOffset)
	case page.KindInteriorIndex:
		return decodeInteriorIndex(file, pageBytes, pageIndex, cellOffset, usable, pageSize, declaredPageCount, enc, freeSpace)
	case page.KindLeafTable:
		return decodeLeafTable(file, pageBytes, pageIndex, cellOffset, usable, pageSize, declaredPageCount, enc, freeSpace)
	case page.KindLeafIndex:
		return decodeLeafIndex(file, pageBytes, pageIndex, cellOffset, usable, pageSize, declaredPageCount, enc, freeSpace)
	default:
		return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: cellOffset, Reason: "cell decode requested on non-b-tree page kind"}
	}
}

func decodeInteriorTable(pageBytes []byte, pageIndex int64, cellOffset int) (*Cell, error) {
	if cellOffset+4 > len(pageBytes) {
		return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: cellOffset, Reason: "truncated left-child pointer"}
	}
	left := beUint32(pageBytes[cellOffset : cellOffset+4])
	rowID, n := reader.Varint(pageBytes, cellOffset+4)
	if n == 0 {
		return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: cellOffset, Reason: "truncated rowid varint"}
	}
	return &Cell{Offset: cellOffset, LeftChildPage: left, RowID: int64(rowID)}, nil
}

func decodeInteriorIndex(
	file *reader.Buffer, pageBytes []byte, pageIndex int64, cellOffset int,
	usable, pageSize int, declaredPageCount int64, enc header.Encoding, freeSpace bool,
) (*Cell, error) {
	if cellOffset+4 > len(pageBytes) {
		return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: cellOffset, Reason: "truncated left-child pointer"}
	}
	left := beUint32(pageBytes[cellOffset : cellOffset+4])
	c, err := decodePayloadCell(file, pageBytes, pageIndex, cellOffset+4, usable, pageSize, declaredPageCount, enc, freeSpace, -1)
	if err != nil {
		return nil, err
	}
	c.LeftChildPage = left
	c.Offset = cellOffset
	return c, nil
}

func decodeLeafIndex(
	file *reader.Buffer, pageBytes []byte, pageIndex int64, cellOffset int,
	usable, pageSize int, declaredPageCount int64, enc header.Encoding, freeSpace bool,
) (*Cell, error) {
	return decodePayloadCell(file, pageBytes, pageIndex, cellOffset, usable, pageSize, declaredPageCount, enc, freeSpace, -1)
}

func decodeLeafTable(
	file *reader.Buffer, pageBytes []byte, pageIndex int64, cellOffset int,
	usable, pageSize int, declaredPageCount int64, enc header.Encoding, freeSpace bool,
) (*Cell, error) {
	return decodePayloadCell(file, pageBytes, pageIndex, cellOffset, usable, pageSize, declaredPageCount, enc, freeSpace, 0)
}

// rowidMode==0 selects the table-leaf shape (trusted rowid varint present,
// NULL-as-rowid alias applies); rowidMode<0 selects the index shapes (no
// rowid slot, NULL passes through unchanged).

// decodePayloadCell handles the three cell shapes that carry a payload:
// leaf table (has rowid, rowidMode==0), leaf index (no rowid, rowidMode<0),
// interior index (has payload but the rowid slot doesn't apply either,
// rowidMode<0). rowidMode==0 means "read a rowid varint from the stream";
// rowidMode<0 means "there is none".
func decodePayloadCell(
	file *reader.Buffer, pageBytes []byte, pageIndex int64, offset int,
	usable, pageSize int, declaredPageCount int64, enc header.Encoding, freeSpace bool, rowidMode int,
) (*Cell, error) {
	start := offset
	var payloadLen uint64
	var rowID int64

	if !freeSpace {
		var n int
		payloadLen, n = reader.Varint(pageBytes, offset)
		if n == 0 {
			return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: start, Reason: "truncated payload-length varint"}
		}
		offset += n

		if rowidMode == 0 {
			var rv uint64
			rv, n = reader.Varint(pageBytes, offset)
			if n == 0 {
				return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: start, Reason: "truncated rowid varint"}
			}
			rowID = int64(rv)
			offset += n
		}
	}

	localLen := int(payloadLen)
	overflowed := false
	if !freeSpace {
		overflowed = overflow.IsOverflowed(int(payloadLen), usable)
		if overflowed {
			localLen = overflow.LocalSize(int(payloadLen), usable)
		}
	} else {
		// Free-space mode has no trusted payload length; decode whatever
		// serial-type vector fits in what remains of the page.
		localLen = len(pageBytes) - offset
	}

	if localLen < 0 || offset+localLen > len(pageBytes) {
		if freeSpace {
			localLen = len(pageBytes) - offset
			if localLen < 0 {
				localLen = 0
			}
		} else {
			return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: start, Reason: "declared payload length runs past page and overflow is not plausible"}
		}
	}

	localBytes := pageBytes[offset : offset+localLen]

	ph, headerLen, err := DecodePayloadHeader(localBytes, pageIndex, start, reader.Varint)
	if err != nil {
		return nil, err
	}

	cell := &Cell{Offset: start, RowID: rowID}

	if !freeSpace && overflowed {
		overflowPageOff := offset + localLen
		if overflowPageOff+4 > len(pageBytes) {
			return nil, &dberrors.MalformedCellError{Page: pageIndex, Offset: start, Reason: "missing overflow page pointer"}
		}
		firstOverflow := beUint32(pageBytes[overflowPageOff : overflowPageOff+4])
		if firstOverflow < 1 || int64(firstOverflow) > declaredPageCount {
			return nil, &dberrors.OverflowOutOfRange{Page: pageIndex, AtDepth: 0}
		}
		residual := int(payloadLen) - localLen
		res := overflow.Follow(file, int64(firstOverflow), declaredPageCount, pageSize, usable, residual)
		cell.OverflowPages = res.Pages
		cell.OverflowTruncated = res.Truncated
		full := make([]byte, 0, localLen+len(res.Data))
		full = append(full, localBytes[headerLen:]...)
		full = append(full, res.Data...)
		cell.Fields = DecodeBody(ph.SerialTypes, full, enc, rowID, rowidMode == 0)
		return cell, nil
	}

	cell.Fields = DecodeBody(ph.SerialTypes, localBytes[headerLen:], enc, rowID, rowidMode == 0)
	return cell, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
