package blob

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSniffJPEG(t *testing.T) {
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, []byte("JFIF\x00rest")...)
	if got := Sniff(data); got != "jpg" {
		t.Errorf("Sniff = %q, want jpg", got)
	}
}

func TestSniffEXIF(t *testing.T) {
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0, 0}, []byte("Exif\x00rest")...)
	if got := Sniff(data); got != "jpg" {
		t.Errorf("Sniff = %q, want jpg", got)
	}
}

func TestSniffBPList(t *testing.T) {
	data := []byte("bplist00" + "rest of file")
	if got := Sniff(data); got != "bplist" {
		t.Errorf("Sniff = %q, want bplist", got)
	}
}

func TestSniffMP3ID3(t *testing.T) {
	data := []byte{0x49, 0x44, 0x33, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if got := Sniff(data); got != "mp3" {
		t.Errorf("Sniff = %q, want mp3", got)
	}
}

func TestSniffUnknownFallsBackToBin(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if got := Sniff(data); got != "bin" {
		t.Errorf("Sniff = %q, want bin", got)
	}
}

func TestSniffShortBufferDoesNotPanic(t *testing.T) {
	if got := Sniff([]byte{0xFF}); got != "bin" {
		t.Errorf("Sniff = %q, want bin", got)
	}
	if got := Sniff(nil); got != "bin" {
		t.Errorf("Sniff(nil) = %q, want bin", got)
	}
}

func TestExtractorWritesAndCleansUp(t *testing.T) {
	e, err := NewExtractor()
	if err != nil {
		t.Fatal(err)
	}
	path, err := e.Write("msg", 2, 1, 0, []byte("bplistXXX some data"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != e.Dir() {
		t.Errorf("path %q not under dir %q", path, e.Dir())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(e.Dir()); !os.IsNotExist(err) {
		t.Error("expected extraction directory to be removed")
	}
}

func TestExtractorIsIdempotentForUnchangedBlob(t *testing.T) {
	e, err := NewExtractor()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	data := []byte("repeated blob contents")
	p1, err := e.Write("t", 1, 1, 0, data)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := e.Write("t", 1, 1, 0, data)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Errorf("same coordinates + same content should produce the same path: %q vs %q", p1, p2)
	}
}
