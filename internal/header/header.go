// Package header decodes the 100-byte SQLite file header.
package header

import (
	"fmt"

	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/reader"
)

// Signature is the fixed 16-byte magic every SQLite file starts with.
const Signature = "SQLite format 3\x00"

// Size is the fixed length of the file header.
const Size = 100

// Encoding identifies the file's declared text encoding.
type Encoding int

const (
	EncodingUTF8    Encoding = 1
	EncodingUTF16LE Encoding = 2
	EncodingUTF16BE Encoding = 3
)

// Header is the decoded fixed-layout file header.
type Header struct {
	PageSize               int
	FileChangeCounter      uint32
	DatabasePageCount      uint32
	FirstFreelistTrunkPage uint32
	TotalFreelistPages     uint32
	SchemaCookie           uint32
	TextEncoding           Encoding
	IncrementalVacuum      bool
	ReservedTailSize       int
}

// UsableSize returns the page size minus the per-page reserved tail.
func (h *Header) UsableSize() int {
	return h.PageSize - h.ReservedTailSize
}

// validPageSize reports whether n is a legal SQLite page size: a power of
// two between 512 and 65536 inclusive (per spec §8's boundary behaviour).
func validPageSize(n int) bool {
	if n < 512 || n > 65536 {
		return false
	}
	return n&(n-1) == 0
}

// Parse decodes the 100-byte file header from buf. It returns
// dberrors.ErrNotADatabase if the file is too short or the signature does
// not match.
func Parse(buf *reader.Buffer) (*Header, error) {
	if buf.Len() < Size {
		return nil, fmt.Errorf("%w: file shorter than %d bytes", dberrors.ErrNotADatabase, Size)
	}
	sig := buf.Slice(0, 16)
	if string(sig) != Signature {
		return nil, fmt.Errorf("%w: signature mismatch", dberrors.ErrNotADatabase)
	}

	rawPageSize, _ := buf.Uint16(16)
	pageSize := int(rawPageSize)
	if pageSize == 1 {
		// The on-disk encoding of 65536 doesn't fit a uint16, so 1 is the
		// reserved stand-in value.
		pageSize = 65536
	}
	if !validPageSize(pageSize) {
		return nil, fmt.Errorf("%w: page size %d is not a power of two in [512, 65536]", dberrors.ErrNotADatabase, pageSize)
	}

	reservedTail, _ := buf.Byte(20)

	dbSize, _ := buf.Uint32(28)
	freelistTrunk, _ := buf.Uint32(32)
	freelistCount, _ := buf.Uint32(36)
	schemaCookie, _ := buf.Uint32(40)

	encodingRaw, _ := buf.Uint32(56)
	encoding := Encoding(encodingRaw)
	if encoding != EncodingUTF16LE && encoding != EncodingUTF16BE {
		encoding = EncodingUTF8
	}

	changeCounter, _ := buf.Uint32(24)

	vacuumMode, _ := buf.Uint32(52)

	return &Header{
		PageSize:               pageSize,
		FileChangeCounter:      changeCounter,
		DatabasePageCount:      dbSize,
		FirstFreelistTrunkPage: freelistTrunk,
		TotalFreelistPages:     freelistCount,
		SchemaCookie:           schemaCookie,
		TextEncoding:           encoding,
		IncrementalVacuum:      vacuumMode != 0,
		ReservedTailSize:       int(reservedTail),
	}, nil
}
