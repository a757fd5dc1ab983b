// Package bitunpack expands bit-packed digital capture data, one packed
// byte to eight booleans, bit 0 of byte i becoming sample 8*i. Large
// buffers are split across a worker per CPU; each worker expands a
// disjoint block, so there is no shared mutable state.
package bitunpack

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the packed size (bytes) above which the unpack
// fans out to multiple workers. 125000 bytes is 1M samples.
const parallelThreshold = 125000

// expand maps each byte value to its eight booleans, LSB first.
var expand [256][8]bool

func init() {
	for b := 0; b < 256; b++ {
		for j := 0; j < 8; j++ {
			expand[b][j] = (b>>uint(j))&1 == 1
		}
	}
}

// Unpack expands packed into booleans and returns the first nsamples of
// them. nsamples must not exceed 8*len(packed).
func Unpack(packed []byte, nsamples int) []bool {
	out := make([]bool, 8*len(packed))
	UnpackInto(out, packed)
	return out[:nsamples]
}

// UnpackInto expands packed into dst, which must hold 8*len(packed)
// booleans. Small inputs run single-threaded; large inputs are split into
// contiguous blocks rounded to 4-byte multiples, one per available CPU,
// with the last block taking any remainder. It returns once every block
// is done.
func UnpackInto(dst []bool, packed []byte) {
	count := len(packed)
	if count <= parallelThreshold {
		unpackWide(dst, packed)
		return
	}

	numblocks := runtime.NumCPU()
	blocksize := count / numblocks
	blocksize -= blocksize % 4
	if blocksize == 0 {
		unpackWide(dst, packed)
		return
	}

	var g errgroup.Group
	for i := 0; i < numblocks; i++ {
		lo := i * blocksize
		hi := lo + blocksize
		if i == numblocks-1 {
			hi = count
		}
		g.Go(func() error {
			unpackWide(dst[8*lo:8*hi], packed[lo:hi])
			return nil
		})
	}
	g.Wait()
}

// unpackWide expands 4 packed bytes (32 samples) per iteration through the
// precomputed expansion table, with a scalar loop for the tail. Output is
// bit-identical to unpackGeneric for all inputs.
func unpackWide(dst []bool, src []byte) {
	end := len(src) - len(src)%4
	for i := 0; i < end; i += 4 {
		o := dst[8*i:]
		copy(o[0:8], expand[src[i]][:])
		copy(o[8:16], expand[src[i+1]][:])
		copy(o[16:24], expand[src[i+2]][:])
		copy(o[24:32], expand[src[i+3]][:])
	}
	unpackGeneric(dst[8*end:], src[end:])
}

// unpackGeneric is the scalar bit-test reference loop.
func unpackGeneric(dst []bool, src []byte) {
	for i, b := range src {
		for j := 0; j < 8; j++ {
			dst[8*i+j] = (b>>uint(j))&1 == 1
		}
	}
}
