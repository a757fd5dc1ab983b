// Package rawbytes converts between Go slices and their raw little-endian
// byte representation, and reads fixed-offset binary fields with bounds
// checking. The slice conversions use unsafe.Slice and assume a
// little-endian host, which applies to everything we support.
package rawbytes

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// FromSliceFloat32 converts a []float32 to []byte without copying.
func FromSliceFloat32(d []float32) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceFloat64 converts a []float64 to []byte without copying.
func FromSliceFloat64(d []float64) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceBool converts a []bool to []byte without copying.
func FromSliceBool(d []bool) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), len(d))
}

// ToSliceInt8 views a []byte as []int8 without copying.
func ToSliceInt8(b []byte) []int8 {
	if len(b) == 0 {
		return []int8{}
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b))
}

// ToSliceInt16 views a []byte as []int16 without copying. The byte count
// must be even; a trailing odd byte is ignored.
func ToSliceInt16(b []byte) []int16 {
	if len(b) < 2 {
		return []int16{}
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// ToSliceUint16 views a []byte as []uint16 without copying.
func ToSliceUint16(b []byte) []uint16 {
	if len(b) < 2 {
		return []uint16{}
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// ToSliceFloat64 views a []byte as []float64 without copying.
func ToSliceFloat64(b []byte) []float64 {
	if len(b) < 8 {
		return []float64{}
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// Reader extracts fixed-offset little-endian fields from a byte buffer.
// Reads past the end of the buffer set a sticky error and return zero
// instead of panicking; callers check Err once after all field reads.
type Reader struct {
	buf []byte
	err error
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first out-of-bounds error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) check(off, width int) bool {
	if off < 0 || off+width > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("field read [%d:%d] outside buffer of %d bytes", off, off+width, len(r.buf))
		}
		return false
	}
	return true
}

// ByteAt returns the byte at offset off.
func (r *Reader) ByteAt(off int) byte {
	if !r.check(off, 1) {
		return 0
	}
	return r.buf[off]
}

// Int8At returns the signed byte at offset off.
func (r *Reader) Int8At(off int) int8 {
	return int8(r.ByteAt(off))
}

// Uint16At returns the little-endian uint16 at offset off.
func (r *Reader) Uint16At(off int) uint16 {
	if !r.check(off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[off:])
}

// Uint32At returns the little-endian uint32 at offset off.
func (r *Reader) Uint32At(off int) uint32 {
	if !r.check(off, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[off:])
}

// Int32At returns the little-endian int32 at offset off.
func (r *Reader) Int32At(off int) int32 {
	return int32(r.Uint32At(off))
}

// Float32At returns the little-endian IEEE-754 float32 at offset off.
func (r *Reader) Float32At(off int) float32 {
	if !r.check(off, 4) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.buf[off:]))
}

// Float64At returns the little-endian IEEE-754 float64 at offset off.
func (r *Reader) Float64At(off int) float64 {
	if !r.check(off, 8) {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.buf[off:]))
}
