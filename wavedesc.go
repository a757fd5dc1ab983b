package sigdaq

import (
	"fmt"
	"math"
	"time"

	"github.com/sigdaq/sigdaq/rawbytes"
)

// wavedescFields is the subset of the 346-byte WAVEDESC descriptor block
// this driver consumes. The layout is LeCroy's; Siglent documents the
// timestamp region as reserved but fills it the same way.
type wavedescFields struct {
	// trigtimeArrayLen is the byte length of the per-segment trigger
	// time array. 16 bytes per segment.
	trigtimeArrayLen uint32
	// vGain is volts per ADC code before probe scaling, as the raw
	// codes-per-division figure.
	vGain float32
	// vOff is the vertical offset in volts before probe scaling.
	vOff float32
	// interval is the sample period in seconds.
	interval float32
	// hOff is the time in seconds from the waveform start to the
	// trigger point.
	hOff float64
	// probe is the probe attenuation factor.
	probe float32

	// Trigger wall-clock time, instrument local.
	tsSeconds float64
	tsMinutes uint8
	tsHours   uint8
	tsDays    uint8
	tsMonths  uint8
	tsYear    uint16
}

// Descriptor byte offsets.
const (
	descOffTrigtimeLen = 48
	descOffVGain       = 156
	descOffVOff        = 160
	descOffInterval    = 176
	descOffHOff        = 180
	descOffTimestamp   = 296
	descOffProbe       = 328
)

// parseWavedesc decodes the fields of one descriptor block.
func parseWavedesc(desc []byte) (wavedescFields, error) {
	r := rawbytes.NewReader(desc)
	f := wavedescFields{
		trigtimeArrayLen: r.Uint32At(descOffTrigtimeLen),
		vGain:            r.Float32At(descOffVGain),
		vOff:             r.Float32At(descOffVOff),
		interval:         r.Float32At(descOffInterval),
		hOff:             r.Float64At(descOffHOff),
		probe:            r.Float32At(descOffProbe),
		tsSeconds:        r.Float64At(descOffTimestamp),
		tsMinutes:        r.ByteAt(descOffTimestamp + 8),
		tsHours:          r.ByteAt(descOffTimestamp + 9),
		tsDays:           r.ByteAt(descOffTimestamp + 10),
		tsMonths:         r.ByteAt(descOffTimestamp + 11),
		tsYear:           r.Uint16At(descOffTimestamp + 12),
	}
	if err := r.Err(); err != nil {
		return wavedescFields{}, fmt.Errorf("wavedesc: %v", err)
	}
	return f, nil
}

// segments returns the sequence count, at least 1.
func (f *wavedescFields) segments() int {
	if f.trigtimeArrayLen > 0 {
		return int(f.trigtimeArrayLen / 16)
	}
	return 1
}

// timestamp converts the descriptor's broken-down trigger time to a
// wall-clock time in the local zone plus a sub-second fraction. The
// instrument reports local time, so the result is only as good as its
// clock and zone setting.
func (f *wavedescFields) timestamp() (time.Time, float64) {
	whole := math.Floor(f.tsSeconds)
	frac := f.tsSeconds - whole

	stamp := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		f.tsYear, f.tsMonths, f.tsDays, f.tsHours, f.tsMinutes, int(whole))
	t, err := time.ParseInLocation("2006-01-02 15:04:05", stamp, time.Local)
	if err != nil {
		ProblemLogger.Printf("wavedesc timestamp %q unparseable: %v", stamp, err)
		return time.Now(), 0
	}
	return t, frac
}

// triggerPhase is the sub-sample trigger alignment in seconds for display
// alignment. Positive delay values are already accounted for by the
// capture window, so only a negative start-to-trigger time shifts the
// waveform.
func (f *wavedescFields) triggerPhase() float64 {
	if f.hOff < 0 {
		return f.hOff
	}
	return 0
}

// calibration returns the volts-per-code gain and the offset in volts for
// this channel's samples, after probe scaling. SDS2000X+ and SDS5000X
// have 30 codes per division. In 16-bit mode there are 256x as many
// codes.
func (f *wavedescFields) calibration(highDefinition bool) (gain, offset float32) {
	gain = f.vGain * f.probe / codesPerDivision
	if highDefinition {
		gain /= 256
	}
	offset = f.vOff * f.probe
	return gain, offset
}
