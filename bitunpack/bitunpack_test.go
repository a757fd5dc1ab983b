package bitunpack

import (
	"math/rand"
	"testing"
)

// TestBitProperty: output sample 8i+j equals bit j of input byte i.
func TestBitProperty(t *testing.T) {
	packed := []byte{0x00, 0xff, 0xa5, 0x01, 0x80}
	out := Unpack(packed, 8*len(packed))
	for i, b := range packed {
		for j := 0; j < 8; j++ {
			want := (b>>uint(j))&1 == 1
			if out[8*i+j] != want {
				t.Errorf("byte %#02x bit %d: got %v, want %v", b, j, out[8*i+j], want)
			}
		}
	}
}

func TestUnpackTruncates(t *testing.T) {
	out := Unpack([]byte{0xff, 0x00}, 11)
	if len(out) != 11 {
		t.Fatalf("len = %d, want 11", len(out))
	}
	for j := 0; j < 8; j++ {
		if !out[j] {
			t.Errorf("sample %d = false, want true", j)
		}
	}
	for j := 8; j < 11; j++ {
		if out[j] {
			t.Errorf("sample %d = true, want false", j)
		}
	}
}

// TestImplementationsAgree: the table-driven wide path, the scalar loop,
// and the parallel path must produce identical output at sizes around the
// 4-byte grouping and the parallel threshold.
func TestImplementationsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(425))
	sizes := []int{0, 1, 2, 3, 4, 5, 7, 8, 64, 1000,
		parallelThreshold - 1, parallelThreshold, parallelThreshold + 1,
		parallelThreshold + 12345}
	for _, size := range sizes {
		packed := make([]byte, size)
		rng.Read(packed)

		want := make([]bool, 8*size)
		unpackGeneric(want, packed)

		wide := make([]bool, 8*size)
		unpackWide(wide, packed)
		for i := range want {
			if wide[i] != want[i] {
				t.Fatalf("size %d: wide path differs from scalar at sample %d", size, i)
			}
		}

		full := make([]bool, 8*size)
		UnpackInto(full, packed)
		for i := range want {
			if full[i] != want[i] {
				t.Fatalf("size %d: UnpackInto differs from scalar at sample %d", size, i)
			}
		}
	}
}

func BenchmarkUnpackInto(b *testing.B) {
	packed := make([]byte, 1250000) // 10M samples
	rand.New(rand.NewSource(1)).Read(packed)
	dst := make([]bool, 8*len(packed))
	b.SetBytes(int64(len(packed)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		UnpackInto(dst, packed)
	}
}

func BenchmarkUnpackGeneric(b *testing.B) {
	packed := make([]byte, 125000)
	rand.New(rand.NewSource(1)).Read(packed)
	dst := make([]bool, 8*len(packed))
	b.SetBytes(int64(len(packed)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		unpackGeneric(dst, packed)
	}
}
