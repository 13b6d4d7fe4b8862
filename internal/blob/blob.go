// Package blob sniffs the file type of an embedded BLOB payload by magic
// number, and extracts blobs to a process-private temporary directory
// when requested. Extensions and signatures are taken from the source
// tool's closed set; content-addressed naming and temp-directory naming
// are new, grounded on the CLI tooling conventions in the wider example
// pack rather than the source (which used a bare os.MkdirTemp-equivalent
// and an incrementing counter for names).
package blob

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0}
	jpegIdent  = []byte("JFIF\x00")
	exifHeader = []byte{0xFF, 0xD8, 0xFF, 0xE1}
	exifIdent  = []byte("Exif\x00")
	mpeg4Audio = []byte{0x10, 0x00, 0x00, 0x00, 0x1C, 0x66, 0x74}
	mpeg4Video = []byte{0x00, 0x00, 0x00, 0x1C, 0x66, 0x74, 0x79, 0x70, 0x6D, 0x70, 0x34, 0x32}
	bplist     = []byte("bplist")
	mp3ID3v2   = []byte{0x49, 0x44, 0x33}
)

// Sniff inspects up to the first 12 bytes of data and returns the file
// extension to use for extraction, per the closed magic-number set:
// JPEG/EXIF, MPEG-4 audio, MPEG-4/QuickTime video, binary property list,
// MP3 with an ID3v2 container, else "bin".
func Sniff(data []byte) string {
	head := data
	if len(head) > 12 {
		head = head[:12]
	}
	switch {
	case hasPrefix(head, jpegHeader) && containsAt(head, jpegIdent, 6):
		return "jpg"
	case hasPrefix(head, exifHeader) && containsAt(head, exifIdent, 6):
		return "jpg"
	case hasPrefix(head, mpeg4Audio):
		return "ma4"
	case hasPrefix(head, mpeg4Video):
		return "mov"
	case hasPrefix(head, bplist):
		return "bplist"
	case hasPrefix(head, mp3ID3v2):
		return "mp3"
	default:
		return "bin"
	}
}

func hasPrefix(data, prefix []byte) bool {
	return len(data) >= len(prefix) && bytes.Equal(data[:len(prefix)], prefix)
}

func containsAt(data, want []byte, at int) bool {
	if at+len(want) > len(data) {
		return false
	}
	return bytes.Equal(data[at:at+len(want)], want)
}

// Extractor writes blobs to a process-private temporary directory,
// named "sqlitecarver-<uuid>" to avoid the collision risk of a bare
// counter-based or os.MkdirTemp("", prefix) name.
type Extractor struct {
	dir string
}

// NewExtractor creates the temporary directory under os.TempDir.
func NewExtractor() (*Extractor, error) {
	dir := filepath.Join(os.TempDir(), "sqlitecarver-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Extractor{dir: dir}, nil
}

// Dir returns the extraction directory.
func (e *Extractor) Dir() string { return e.dir }

// Close removes the temporary directory and everything in it.
func (e *Extractor) Close() error {
	return os.RemoveAll(e.dir)
}

// Write extracts one blob to <table>_<page>_<row>_<col>.<ext>, with a
// short content hash appended so re-running extraction on the same
// database is idempotent (re-extracting an unchanged blob reuses the
// exact same filename) and a genuinely changed blob at the same
// coordinates is never silently overwritten.
func (e *Extractor) Write(table string, page int64, row int64, col int, data []byte) (string, error) {
	ext := Sniff(data)
	sum := blake3.Sum256(data)
	shortHash := hex.EncodeToString(sum[:6])
	name := fmt.Sprintf("%s_%d_%d_%d_%s.%s", table, page, row, col, shortHash, ext)
	full := filepath.Join(e.dir, name)
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", err
	}
	return full, nil
}
