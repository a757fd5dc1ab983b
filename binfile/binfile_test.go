package binfile

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// buildCapture constructs a minimal version 2 file image: channels 1 and 3
// enabled with 8-bit samples, plus two digital lines.
func buildCapture(nsamples int) []byte {
	data := make([]byte, payloadOffsetV2+2*nsamples+2*(nsamples/8))
	le := binary.LittleEndian
	le.PutUint32(data[0:], 2)

	hdr := data[4:]
	putF64 := func(off int, v float64) {
		le.PutUint64(hdr[off:], math.Float64bits(v))
	}

	le.PutUint32(hdr[offChEnable:], 1)   // C1
	le.PutUint32(hdr[offChEnable+8:], 1) // C3
	putF64(offChGain, 0.5)               // C1: 0.5 V/div
	putF64(offChGain+80, 2.0)            // C3: 2 V/div
	putF64(offChOffset, 0.1)
	putF64(offChOffset+80, -1.0)
	putF64(offChProbe, 1.0)
	putF64(offChProbe+16, 10.0)
	le.PutUint32(hdr[offChCodesPerDiv:], 30)
	le.PutUint32(hdr[offChCodesPerDiv+8:], 30)

	le.PutUint32(hdr[offWaveLength:], uint32(nsamples))
	putF64(offSampleRate, 1e9)
	hdr[offDataWidth] = 0 // 1 byte per sample
	le.PutUint32(hdr[offHoriDivisions:], 10)

	le.PutUint32(hdr[offDigitalEnable:], 1)
	le.PutUint32(hdr[offDigitalChEn:], 1)     // D0
	le.PutUint32(hdr[offDigitalChEn+3*4:], 1) // D3
	le.PutUint32(hdr[offDigWaveLength:], uint32(nsamples))
	putF64(offDigSampleRate, 5e8)

	// Payload: C1 ramp, C3 constant, D0 alternating bytes, D3 zeros.
	payload := data[payloadOffsetV2:]
	for k := 0; k < nsamples; k++ {
		payload[k] = byte(k % 256)
		payload[nsamples+k] = 200
	}
	for k := 0; k < nsamples/8; k++ {
		payload[2*nsamples+k] = 0xaa
	}
	return data
}

func TestReadVersion2(t *testing.T) {
	const nsamples = 1000
	when := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	f, err := Read(buildCapture(nsamples), when)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if f.Version != 2 {
		t.Errorf("Version = %d, want 2", f.Version)
	}

	wantNames := []string{"C1", "C3", "D0", "D3"}
	if len(f.Streams) != len(wantNames) {
		t.Fatalf("got %d streams, want %d", len(f.Streams), len(wantNames))
	}
	for i, want := range wantNames {
		if f.Streams[i].Name != want {
			t.Errorf("stream %d named %q, want %q", i, f.Streams[i].Name, want)
		}
	}

	// C1: gain 0.5*1/30, center code 127.
	c1 := f.Streams[0].Analog
	if c1 == nil {
		t.Fatal("C1 stream is not analog")
	}
	if len(c1.Samples) != nsamples {
		t.Fatalf("C1 has %d samples, want %d", len(c1.Samples), nsamples)
	}
	if c1.SamplePeriod != 1e-9 {
		t.Errorf("C1 sample period = %g, want 1e-9", c1.SamplePeriod)
	}
	if !c1.StartTime.Equal(when) {
		t.Errorf("C1 start time = %v, want %v", c1.StartTime, when)
	}
	gain1 := 0.5 * 1.0 / 30
	for _, k := range []int{0, 127, 200, 999} {
		code := float64(k % 256)
		want := code*gain1 - (gain1*127 + 0.1)
		if got := float64(c1.Samples[k]); math.Abs(got-want) > 1e-5 {
			t.Errorf("C1 sample %d = %g, want %g", k, got, want)
		}
	}
	// Center code converts to the negated stored offset.
	if got := float64(c1.Samples[127]); math.Abs(got+0.1) > 1e-5 {
		t.Errorf("C1 center code = %g, want -0.1", got)
	}

	// C3: gain 2*10/30, all codes 200.
	c3 := f.Streams[1].Analog
	gain3 := 2.0 * 10.0 / 30
	want3 := 200*gain3 - (gain3*127 - 1.0)
	for _, k := range []int{0, nsamples - 1} {
		if got := float64(c3.Samples[k]); math.Abs(got-want3) > 1e-4 {
			t.Errorf("C3 sample %d = %g, want %g", k, got, want3)
		}
	}

	// D0: 0xaa pattern repeats bits 0,1,0,1...
	d0 := f.Streams[2].Digital
	if d0 == nil {
		t.Fatal("D0 stream is not digital")
	}
	if len(d0.Samples) != nsamples {
		t.Fatalf("D0 has %d samples, want %d", len(d0.Samples), nsamples)
	}
	if d0.SamplePeriod != 2e-9 {
		t.Errorf("D0 sample period = %g, want 2e-9", d0.SamplePeriod)
	}
	for k := 0; k < 16; k++ {
		want := k%2 == 1
		if d0.Samples[k] != want {
			t.Errorf("D0 sample %d = %v, want %v", k, d0.Samples[k], want)
		}
	}

	// D3: all low.
	d3 := f.Streams[3].Digital
	for k, b := range d3.Samples {
		if b {
			t.Errorf("D3 sample %d high, want low", k)
			break
		}
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	data := buildCapture(64)
	binary.LittleEndian.PutUint32(data[0:], 3)
	f, err := Read(data, time.Time{})
	if err == nil {
		t.Fatal("Read accepted version 3")
	}
	if f != nil {
		t.Errorf("Read returned %d streams with an error, want none", len(f.Streams))
	}
}

func TestReadRejectsTruncated(t *testing.T) {
	data := buildCapture(64)

	if _, err := Read(data[:2], time.Time{}); err == nil {
		t.Error("Read accepted a 2-byte file")
	}
	if _, err := Read(data[:500], time.Time{}); err == nil {
		t.Error("Read accepted a file shorter than the wave header")
	}
	// Header intact but payload missing.
	if _, err := Read(data[:payloadOffsetV2+10], time.Time{}); err == nil {
		t.Error("Read accepted a file with a truncated payload")
	}
	// A version 4 file cut off inside the pad bytes after the version
	// field must error, not slice past the end.
	if _, err := Read([]byte{4, 0, 0, 0, 0}, time.Time{}); err == nil {
		t.Error("Read accepted a 5-byte version 4 file")
	}
}

// TestReadRejectsRaggedDigitalLength checks that a digital wave length
// that is not a whole number of payload bytes is a parse error rather
// than a read past the unpacked samples.
func TestReadRejectsRaggedDigitalLength(t *testing.T) {
	data := buildCapture(64)
	binary.LittleEndian.PutUint32(data[4+offDigWaveLength:], 65)
	f, err := Read(data, time.Time{})
	if err == nil {
		t.Fatal("Read accepted a 65-bit digital wave length")
	}
	if f != nil {
		t.Errorf("Read returned %d streams with an error, want none", len(f.Streams))
	}
}

func TestReadVersion4PayloadOffset(t *testing.T) {
	const nsamples = 64
	v2 := buildCapture(nsamples)
	data := make([]byte, payloadOffsetV4+nsamples)
	le := binary.LittleEndian
	le.PutUint32(data[0:], 4)
	// Header follows 4 pad bytes; reuse the v2 header but enable only C1
	// and drop digital.
	copy(data[8:], v2[4:4+waveHeaderSize])
	hdr := data[8:]
	le.PutUint32(hdr[offChEnable+8:], 0)
	le.PutUint32(hdr[offDigitalEnable:], 0)
	for k := 0; k < nsamples; k++ {
		data[payloadOffsetV4+k] = 127
	}

	f, err := Read(data, time.Time{})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(f.Streams) != 1 || f.Streams[0].Name != "C1" {
		t.Fatalf("streams = %+v, want just C1", f.Streams)
	}
	// All samples at center code: constant -offset.
	for k, s := range f.Streams[0].Analog.Samples {
		if math.Abs(float64(s)+0.1) > 1e-5 {
			t.Errorf("sample %d = %g, want -0.1", k, s)
			break
		}
	}
}
