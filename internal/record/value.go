// Package record decodes SQLite payload records: the varint-coded serial
// type header followed by the typed field bytes, into a small tagged-value
// sum type. This replaces the source tool's habit of handing back raw
// byte slices for every column regardless of declared type.
package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/elordeiro/sqlitecarver/internal/dberrors"
	"github.com/elordeiro/sqlitecarver/internal/header"
)

// Kind identifies which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
	KindBlob
	KindZero // serial type 8: the constant integer 0
	KindOne  // serial type 9: the constant integer 1
)

// Value is a single decoded field. Exactly one of Int/Real/Text/Blob is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Int  int64
	Real float64
	Text string
	Blob []byte
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindReal:
		return fmt.Sprintf("%v", v.Real)
	case KindText:
		return v.Text
	case KindBlob:
		return fmt.Sprintf("<blob:%d bytes>", len(v.Blob))
	case KindZero:
		return "0"
	case KindOne:
		return "1"
	default:
		return ""
	}
}

// serialTypeWidth returns the number of payload bytes a serial type code
// occupies, per the fixed table in the SQLite record format.
func serialTypeWidth(serialType uint64) (width int, ok bool) {
	switch {
	case serialType <= 9:
		return [...]int{0, 1, 2, 3, 4, 6, 8, 8, 0, 0}[serialType], true
	case serialType >= 12 && serialType%2 == 0:
		return int((serialType - 12) / 2), true
	case serialType >= 13 && serialType%2 == 1:
		return int((serialType - 13) / 2), true
	default:
		// 10 and 11 are reserved for internal use and never appear on disk.
		return 0, false
	}
}

// decodeSigned sign-extends a big-endian two's-complement integer of the
// given byte width (1, 2, 3, 4, 6, or 8) into an int64.
func decodeSigned(b []byte) int64 {
	var v int64
	if len(b) > 0 && b[0]&0x80 != 0 {
		v = -1 // sign-extend with all-ones
	}
	for _, byt := range b {
		v = (v << 8) | int64(byt)
	}
	return v
}

// DecodeField decodes one field value from body at the given serial type.
// It returns the value and the number of bytes of body it consumed. If
// body is shorter than the field's declared width, the slice is used as-is
// (possibly empty) rather than panicking — this happens when a record has
// been partially overwritten and the caller is scavenging free space.
func DecodeField(serialType uint64, body []byte, enc header.Encoding) (Value, int) {
	width, ok := serialTypeWidth(serialType)
	if !ok {
		return Value{Kind: KindNull}, 0
	}
	if width > len(body) {
		width = len(body)
	}
	b := body[:width]

	switch {
	case serialType == 0:
		return Value{Kind: KindNull}, 0
	case serialType == 7:
		if len(b) < 8 {
			return Value{Kind: KindReal}, width
		}
		bits := binary.BigEndian.Uint64(b)
		return Value{Kind: KindReal, Real: math.Float64frombits(bits)}, width
	case serialType == 8:
		return Value{Kind: KindZero, Int: 0}, 0
	case serialType == 9:
		return Value{Kind: KindOne, Int: 1}, 0
	case serialType >= 1 && serialType <= 6:
		return Value{Kind: KindInt, Int: decodeSigned(b)}, width
	case serialType >= 12 && serialType%2 == 0:
		return Value{Kind: KindBlob, Blob: b}, width
	default: // odd >= 13: text
		return Value{Kind: KindText, Text: decodeText(b, enc)}, width
	}
}

// decodeText decodes a TEXT field per the file's declared encoding, falling
// back to the raw bytes, copied unchanged into a string, on any decode
// failure rather than erroring the whole record.
func decodeText(b []byte, enc header.Encoding) string {
	switch enc {
	case header.EncodingUTF16LE:
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return string(b)
		}
		return string(out)
	case header.EncodingUTF16BE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return string(b)
		}
		return string(out)
	default:
		return string(b)
	}
}

// PayloadHeader is the decoded varint header of a record payload: the
// ordered list of serial type codes and the header's own encoded length.
type PayloadHeader struct {
	HeaderLen   int
	SerialTypes []uint64
}

// DecodePayloadHeader reads the payload-header-length varint and the
// serial-type vector that follows it. Returns MalformedPayloadHeaderError
// if the vector of serial-type varints runs past the declared header
// length or past the end of buf.
func DecodePayloadHeader(buf []byte, page int64, atOffset int, varint func([]byte, int) (uint64, int)) (PayloadHeader, int, error) {
	hdrLenVal, n := varint(buf, 0)
	if n == 0 {
		return PayloadHeader{}, 0, &dberrors.MalformedPayloadHeaderError{
			Page: page, Offset: atOffset, Reason: "could not read header-length varint",
		}
	}
	headerLen := int(hdrLenVal)
	if headerLen < n || headerLen > len(buf) {
		return PayloadHeader{}, 0, &dberrors.MalformedPayloadHeaderError{
			Page: page, Offset: atOffset, Reason: "header length out of bounds",
		}
	}

	var types []uint64
	pos := n
	for pos < headerLen {
		st, m := varint(buf, pos)
		if m == 0 {
			return PayloadHeader{}, 0, &dberrors.MalformedPayloadHeaderError{
				Page: page, Offset: atOffset, Reason: "serial-type varint ran past buffer",
			}
		}
		if pos+m > headerLen {
			return PayloadHeader{}, 0, &dberrors.MalformedPayloadHeaderError{
				Page: page, Offset: atOffset, Reason: "serial-type vector overruns header length",
			}
		}
		types = append(types, st)
		pos += m
	}

	return PayloadHeader{HeaderLen: headerLen, SerialTypes: types}, headerLen, nil
}

// DecodeBody decodes every field described by types from body, in order.
// When rowIDAlias is true, a NULL serial type in the first column position
// is replaced with rowID, per the integer-primary-key alias rule that
// applies to table b-tree payloads (which carry an explicit rowid outside
// the record). Index payloads have no such rowid slot, so a genuine NULL
// there must be passed through as NULL.
func DecodeBody(types []uint64, body []byte, enc header.Encoding, rowID int64, rowIDAlias bool) []Value {
	values := make([]Value, len(types))
	pos := 0
	for i, st := range types {
		if i == 0 && st == 0 && rowIDAlias {
			values[i] = Value{Kind: KindInt, Int: rowID}
			continue
		}
		var consumed int
		remaining := body[min(pos, len(body)):]
		values[i], consumed = DecodeField(st, remaining, enc)
		pos += consumed
	}
	return values
}
