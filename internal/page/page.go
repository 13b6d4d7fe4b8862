// Package page classifies b-tree pages and decodes their fixed-layout
// headers and cell-pointer arrays.
package page

import (
	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/header"
	"github.com/elordeiro/sqlitecarver/internal/reader"
)

// Kind classifies a page.
type Kind int

const (
	KindInteriorIndex Kind = 0x02
	KindInteriorTable Kind = 0x05
	KindLeafIndex     Kind = 0x0A
	KindLeafTable     Kind = 0x0D
	KindPointerMap    Kind = -1
	KindOverflow      Kind = -2 // assigned retroactively once an overflow chain is followed
	KindUnknown       Kind = -3
)

func (k Kind) IsInterior() bool {
	return k == KindInteriorIndex || k == KindInteriorTable
}

func (k Kind) IsLeaf() bool {
	return k == KindLeafIndex || k == KindLeafTable
}

func (k Kind) IsTable() bool {
	return k == KindInteriorTable || k == KindLeafTable
}

// Header is the decoded 8-or-12-byte b-tree page header.
type Header struct {
	Kind               Kind
	FirstFreeBlock     int
	CellCount          int
	CellContentStart   int
	FragmentedFreeByte int
	RightMostPointer   uint32 // interior kinds only
}

// HeaderStart returns the byte offset, relative to the start of the page,
// at which the b-tree header begins: 100 for page 1 (after the file
// header), 0 otherwise.
func HeaderStart(pageIndex int64) int {
	if pageIndex == 1 {
		return header.Size
	}
	return 0
}

// Classify decodes the b-tree header of page pageIndex from pageBytes (the
// raw bytes of exactly that page, starting at its own offset 0). autoVacuum
// and pageIndex == 2 together decide the pointer-map special case.
func Classify(pageIndex int64, pageBytes []byte, autoVacuum bool) (Header, error) {
	if autoVacuum && pageIndex == 2 {
		return Header{Kind: KindPointerMap}, nil
	}

	start := HeaderStart(pageIndex)
	if start+8 > len(pageBytes) {
		return Header{Kind: KindUnknown}, &dberrors.TruncatedPageError{Page: pageIndex}
	}

	kindByte := pageBytes[start]
	k := Kind(kindByte)
	switch k {
	case KindInteriorIndex, KindInteriorTable, KindLeafIndex, KindLeafTable:
	default:
		return Header{Kind: KindUnknown}, nil
	}

	firstFree := int(beUint16(pageBytes[start+1 : start+3]))
	cellCount := int(beUint16(pageBytes[start+3 : start+5]))
	cellContentStart := int(beUint16(pageBytes[start+5 : start+7]))
	if cellContentStart == 0 {
		cellContentStart = 65536
	}
	fragBytes := int(pageBytes[start+7])

	h := Header{
		Kind:               k,
		FirstFreeBlock:     firstFree,
		CellCount:          cellCount,
		CellContentStart:   cellContentStart,
		FragmentedFreeByte: fragBytes,
	}

	if k.IsInterior() {
		if start+12 > len(pageBytes) {
			return Header{Kind: KindUnknown}, &dberrors.TruncatedPageError{Page: pageIndex}
		}
		h.RightMostPointer = beUint32(pageBytes[start+8 : start+12])
	}

	return h, nil
}

// HeaderSize returns 12 for interior kinds, 8 otherwise.
func (h Header) HeaderSize() int {
	if h.Kind.IsInterior() {
		return 12
	}
	return 8
}

// CellPointers decodes the cellCount big-endian 2-byte offsets that follow
// the b-tree header, relative to the start of the page.
func CellPointers(pageIndex int64, pageBytes []byte, h Header) []int {
	arrayStart := HeaderStart(pageIndex) + h.HeaderSize()
	ptrs := make([]int, 0, h.CellCount)
	for i := 0; i < h.CellCount; i++ {
		off := arrayStart + i*2
		if off+2 > len(pageBytes) {
			break
		}
		ptrs = append(ptrs, int(beUint16(pageBytes[off:off+2])))
	}
	return ptrs
}

// UnallocatedRange returns the [start, end) byte range of the page that is
// neither header/cell-pointer-array nor cell content: the gap a freshly
// allocated page leaves untouched.
func UnallocatedRange(pageIndex int64, h Header) (start, end int) {
	start = HeaderStart(pageIndex) + h.HeaderSize() + h.CellCount*2
	end = h.CellContentStart
	if end < start {
		end = start
	}
	return start, end
}

func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// FreeBlock is one node of a page's intra-page free-block linked list.
type FreeBlock struct {
	Offset int // byte offset within the page
	Length int // total length, including this 4-byte header
}

// FreeBlocks walks the singly-linked free-block chain starting at
// h.FirstFreeBlock. It stops when the next offset is zero, when the next
// offset would not advance (cycle protection per spec), or when an offset
// falls outside the page.
func FreeBlocks(pageBytes []byte, h Header) []FreeBlock {
	var blocks []FreeBlock
	current := h.FirstFreeBlock
	for current != 0 {
		if current < 0 || current+4 > len(pageBytes) {
			break
		}
		next := int(beUint16(pageBytes[current : current+2]))
		length := int(beUint16(pageBytes[current+2 : current+4]))
		blocks = append(blocks, FreeBlock{Offset: current, Length: length})
		if next <= current {
			break
		}
		current = next
	}
	return blocks
}

// Reader bridges reader.Buffer access for a single page's bytes, used by
// callers that need this page's slice without caring which file it came
// from.
func Reader(file *reader.Buffer, pageIndex int64, pageSize int) []byte {
	return file.Slice(int(pageIndex-1)*pageSize, pageSize)
}
