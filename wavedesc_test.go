package sigdaq

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// buildWavedesc constructs a descriptor block with the given fields.
func buildWavedesc(trigtimeLen uint32, vGain, vOff, interval float32, hOff float64,
	probe float32, ts time.Time, frac float64) []byte {

	desc := make([]byte, wavedescSize)
	binary.LittleEndian.PutUint32(desc[descOffTrigtimeLen:], trigtimeLen)
	binary.LittleEndian.PutUint32(desc[descOffVGain:], math.Float32bits(vGain))
	binary.LittleEndian.PutUint32(desc[descOffVOff:], math.Float32bits(vOff))
	binary.LittleEndian.PutUint32(desc[descOffInterval:], math.Float32bits(interval))
	binary.LittleEndian.PutUint64(desc[descOffHOff:], math.Float64bits(hOff))
	binary.LittleEndian.PutUint32(desc[descOffProbe:], math.Float32bits(probe))

	binary.LittleEndian.PutUint64(desc[descOffTimestamp:], math.Float64bits(float64(ts.Second())+frac))
	desc[descOffTimestamp+8] = byte(ts.Minute())
	desc[descOffTimestamp+9] = byte(ts.Hour())
	desc[descOffTimestamp+10] = byte(ts.Day())
	desc[descOffTimestamp+11] = byte(ts.Month())
	binary.LittleEndian.PutUint16(desc[descOffTimestamp+12:], uint16(ts.Year()))
	return desc
}

func TestParseWavedesc(t *testing.T) {
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	desc := buildWavedesc(32, 0.3, -0.05, 1e-9, -2e-10, 10, when, 0.25)

	f, err := parseWavedesc(desc)
	if err != nil {
		t.Fatalf("parseWavedesc returned error: %v", err)
	}
	if f.trigtimeArrayLen != 32 {
		t.Errorf("trigtimeArrayLen = %d, want 32", f.trigtimeArrayLen)
	}
	if f.segments() != 2 {
		t.Errorf("segments = %d, want 2", f.segments())
	}
	if f.vGain != 0.3 || f.vOff != -0.05 || f.probe != 10 {
		t.Errorf("vertical fields: gain=%g off=%g probe=%g", f.vGain, f.vOff, f.probe)
	}
	if f.interval != 1e-9 {
		t.Errorf("interval = %g, want 1e-9", f.interval)
	}

	ts, frac := f.timestamp()
	if !ts.Equal(when) {
		t.Errorf("timestamp = %v, want %v", ts, when)
	}
	if math.Abs(frac-0.25) > 1e-9 {
		t.Errorf("timestamp fraction = %g, want 0.25", frac)
	}
}

func TestParseWavedescTooShort(t *testing.T) {
	if _, err := parseWavedesc(make([]byte, 100)); err == nil {
		t.Error("parseWavedesc accepted a 100-byte block")
	}
}

func TestWavedescSegmentsDefaultsToOne(t *testing.T) {
	f := wavedescFields{trigtimeArrayLen: 0}
	if f.segments() != 1 {
		t.Errorf("segments = %d, want 1", f.segments())
	}
}

// TestWavedescCalibration checks the probe and codes-per-division scaling
// in 8- and 16-bit modes.
func TestWavedescCalibration(t *testing.T) {
	f := wavedescFields{vGain: 0.3, vOff: -0.06, probe: 10}

	gain, offset := f.calibration(false)
	if math.Abs(float64(gain)-0.1) > 1e-7 {
		t.Errorf("8-bit gain = %g, want 0.1 (0.3*10/30)", gain)
	}
	if math.Abs(float64(offset)+0.6) > 1e-7 {
		t.Errorf("offset = %g, want -0.6", offset)
	}

	hdGain, hdOffset := f.calibration(true)
	if math.Abs(float64(hdGain)-0.1/256) > 1e-9 {
		t.Errorf("16-bit gain = %g, want %g", hdGain, 0.1/256)
	}
	if hdOffset != offset {
		t.Errorf("16-bit offset = %g, want %g", hdOffset, offset)
	}
}

func TestWavedescTriggerPhase(t *testing.T) {
	var tests = []struct {
		hOff float64
		want float64
	}{
		{-2e-10, -2e-10},
		{0, 0},
		{3e-10, 0},
	}
	for _, test := range tests {
		f := wavedescFields{hOff: test.hOff}
		if got := f.triggerPhase(); got != test.want {
			t.Errorf("triggerPhase with hOff=%g: got %g, want %g", test.hOff, got, test.want)
		}
	}
}
