package sigdaq

import (
	"bytes"
	"testing"
)

func blockScope(raw []byte) (*Scope, *fakeTransport) {
	ft := newFakeTransport()
	ft.raw.Write(raw)
	sc := &Scope{transport: ft, cache: newConfigCache(), maxWaveform: maxWaveformSize}
	return sc, ft
}

// TestReadWaveformBlockPrefixes checks that all four observed length
// header formats decode to the same declared length and payload.
func TestReadWaveformBlockPrefixes(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 16)
	var tests = []struct {
		name string
		raw  []byte
	}{
		{"DESC", append([]byte("DESC,#9000000016"), payload...)},
		{"DAT2", append([]byte("DAT2,#9000000016"), payload...)},
		{"forced", append([]byte("C1:WF DAT2,#9000000016"), payload...)},
		{"bare", append([]byte("#9000000016"), payload...)},
	}
	for _, test := range tests {
		sc, _ := blockScope(test.raw)
		dst := make([]byte, 64)
		n, err := sc.readWaveformBlock(dst, false)
		if err != nil {
			t.Errorf("%s: readWaveformBlock returned error: %v", test.name, err)
			continue
		}
		if n != 16 {
			t.Errorf("%s: declared length = %d, want 16", test.name, n)
		}
		if !bytes.Equal(dst[:16], payload) {
			t.Errorf("%s: payload mismatch", test.name)
		}
	}
}

// TestReadWaveformBlockClamp: the read is clamped to the destination but
// the declared length is reported unclamped.
func TestReadWaveformBlockClamp(t *testing.T) {
	raw := append([]byte("DAT2,#9000000032"), bytes.Repeat([]byte{1}, 32)...)
	sc, ft := blockScope(raw)

	dst := make([]byte, 8)
	n, err := sc.readWaveformBlock(dst, false)
	if err != nil {
		t.Fatalf("readWaveformBlock returned error: %v", err)
	}
	if n != 32 {
		t.Errorf("declared length = %d, want 32", n)
	}
	if ft.raw.Len() != 32-8 {
		t.Errorf("consumed %d payload bytes, want 8", 32-ft.raw.Len())
	}
}

// TestReadWaveformBlockHDWorkaround: old HD firmware reports sample count,
// so the declared value doubles in 16-bit mode.
func TestReadWaveformBlockHDWorkaround(t *testing.T) {
	raw := append([]byte("DAT2,#9000000008"), bytes.Repeat([]byte{2}, 16)...)
	sc, _ := blockScope(raw)

	dst := make([]byte, 64)
	n, err := sc.readWaveformBlock(dst, true)
	if err != nil {
		t.Fatalf("readWaveformBlock returned error: %v", err)
	}
	if n != 16 {
		t.Errorf("declared length = %d, want 16", n)
	}
}

func TestReadWaveformBlockBadPrefix(t *testing.T) {
	sc, _ := blockScope([]byte("GARBAGE........"))
	dst := make([]byte, 8)
	n, err := sc.readWaveformBlock(dst, false)
	if err != nil {
		t.Fatalf("readWaveformBlock returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("declared length = %d for invalid prefix, want 0", n)
	}
}
