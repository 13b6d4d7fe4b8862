package reader

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  int
	}{
		{"1-byte", 0x00, 1},
		{"1-byte max", 0x7f, 1},
		{"2-byte min", 0x80, 2},
		{"2-byte max", 0x3fff, 2},
		{"3-byte min", 0x4000, 3},
		{"4-byte", 0x1234567, 4},
		{"8-byte", 0x02030405060708, 8},
		{"9-byte max", 0xffffffffffffffff, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeVarint(tt.value)
			if len(enc) != tt.want {
				t.Fatalf("EncodeVarint(%#x) length = %d, want %d", tt.value, len(enc), tt.want)
			}
			got, n := Varint(enc, 0)
			if got != tt.value {
				t.Errorf("Varint() = %#x, want %#x", got, tt.value)
			}
			if n != tt.want {
				t.Errorf("Varint() length = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestVarintNineByteUsesAllEightBitsOfFinalByte(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	got, n := Varint(buf, 0)
	if n != 9 {
		t.Fatalf("length = %d, want 9", n)
	}
	if got != 0xffffffffffffffff {
		t.Errorf("got %#x, want all bits set", got)
	}
}

func TestVarintIsTotalOnTruncatedInput(t *testing.T) {
	// High bit set on every byte, never clears, fewer than 9 bytes available.
	for n := 1; n < MaxVarintLen; n++ {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = 0xff
		}
		value, length := Varint(buf, 0)
		if length != n {
			t.Errorf("len=%d: Varint length = %d, want %d", n, length, n)
		}
		_ = value // must not panic; value is a best-effort clamp
	}
}

func TestVarintOutOfRangeOffset(t *testing.T) {
	buf := []byte{0x01, 0x02}
	if v, n := Varint(buf, 5); v != 0 || n != 0 {
		t.Errorf("Varint() out of range = (%d, %d), want (0, 0)", v, n)
	}
}

func TestBufferSliceClampsToBounds(t *testing.T) {
	b := New([]byte{1, 2, 3, 4, 5})
	if got := b.Slice(3, 10); len(got) != 2 {
		t.Errorf("Slice(3, 10) = %v, want 2 bytes", got)
	}
	if got := b.Slice(10, 2); got != nil {
		t.Errorf("Slice(10, 2) = %v, want nil", got)
	}
}

func TestBufferFixedWidthReads(t *testing.T) {
	b := New([]byte{0x00, 0x10, 0x00, 0x00, 0x01, 0x00})
	u16, ok := b.Uint16(1)
	if !ok || u16 != 0x1000 {
		t.Errorf("Uint16(1) = %d, %v, want 0x1000, true", u16, ok)
	}
	u32, ok := b.Uint32(2)
	if !ok || u32 != 0x00000100 {
		t.Errorf("Uint32(2) = %d, %v, want 0x100, true", u32, ok)
	}
	if _, ok := b.Uint32(4); ok {
		t.Errorf("Uint32(4) should fail: only 2 bytes remain")
	}
}
