// Package overflow computes the local-payload threshold for oversized
// cells and follows the linked chain of overflow pages that holds the
// remainder.
package overflow

import "github.com/elordeiro/sqlitecarver/internal/reader"

// LocalSize returns how many bytes of a payload of the given total length
// live on the b-tree page itself, versus spilling to an overflow chain.
// usable is the page's usable size (page size minus reserved tail).
func LocalSize(payloadLen, usable int) int {
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

// IsOverflowed reports whether a payload of the given length spills past
// the b-tree page into an overflow chain.
func IsOverflowed(payloadLen, usable int) bool {
	return payloadLen > usable-35
}

// Result is the outcome of following one overflow chain.
type Result struct {
	Data      []byte
	Pages     []int64 // every page visited, in chain order
	Truncated bool    // true if the chain ended early (out-of-range page, not a clean terminator)
}

// Follow concatenates payload fragments starting at page firstPage until the
// accumulator reaches residualLen bytes, the chain terminates with a 0
// next-page pointer, or a next-page number falls outside [1, declaredPageCount].
// file is the whole database buffer; pageSize/usable describe its layout.
func Follow(file *reader.Buffer, firstPage int64, declaredPageCount int64, pageSize, usable, residualLen int) Result {
	var res Result
	current := firstPage
	seen := make(map[int64]bool)

	for current != 0 {
		if current < 1 || current > declaredPageCount {
			res.Truncated = true
			break
		}
		if seen[current] {
			// Cycle in a corrupted chain: stop rather than loop forever.
			res.Truncated = true
			break
		}
		seen[current] = true

		offset := int(current-1) * pageSize
		pageBytes := file.Slice(offset, pageSize)
		if len(pageBytes) < 4 {
			res.Truncated = true
			break
		}

		res.Pages = append(res.Pages, current)

		next, _ := file.Uint32(offset)
		fragmentEnd := usable
		if fragmentEnd > len(pageBytes) {
			fragmentEnd = len(pageBytes)
		}
		fragment := pageBytes[4:fragmentEnd]

		remaining := residualLen - len(res.Data)
		if remaining <= 0 {
			break
		}
		if len(fragment) > remaining {
			fragment = fragment[:remaining]
		}
		res.Data = append(res.Data, fragment...)

		if len(res.Data) >= residualLen {
			break
		}
		current = int64(next)
	}

	return res
}
