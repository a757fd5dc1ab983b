// Package wave holds the calibrated waveform representation shared by the
// live acquisition pipeline and the capture-file codec, plus the raw
// ADC-code-to-volts conversion kernels.
package wave

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// AnalogWaveform is one calibrated segment of analog samples.
type AnalogWaveform struct {
	// SamplePeriod is the time between samples, in seconds.
	SamplePeriod float64
	// TriggerPhase is the offset from the trigger to the first sample,
	// in seconds. Zero unless the trigger preceded the first sample.
	TriggerPhase float64
	// StartTime is the trigger timestamp, truncated to whole seconds.
	StartTime time.Time
	// StartFrac carries the sub-second part of the trigger timestamp,
	// in seconds, separate from StartTime.
	StartFrac float64
	// Samples are calibrated voltages.
	Samples []float32
}

// DigitalWaveform is one segment of boolean samples from a logic channel.
type DigitalWaveform struct {
	SamplePeriod float64
	StartTime    time.Time
	StartFrac    float64
	Samples      []bool
}

// ConvertSigned8 converts signed 8-bit ADC codes to volts:
// volts = code*gain - offset. It must stay allocation-free; it runs over
// up to ten million samples per channel per acquisition.
func ConvertSigned8(dst []float32, src []int8, gain, offset float32) {
	for i, code := range src {
		dst[i] = float32(code)*gain - offset
	}
}

// ConvertSigned16 converts signed 16-bit ADC codes to volts.
func ConvertSigned16(dst []float32, src []int16, gain, offset float32) {
	for i, code := range src {
		dst[i] = float32(code)*gain - offset
	}
}

// ConvertUnsigned8 converts unsigned 8-bit ADC codes to volts. Capture
// files store unsigned codes with the zero level folded into offset.
func ConvertUnsigned8(dst []float32, src []uint8, gain, offset float32) {
	for i, code := range src {
		dst[i] = float32(code)*gain - offset
	}
}

// ConvertUnsigned16 converts unsigned 16-bit ADC codes to volts.
func ConvertUnsigned16(dst []float32, src []uint16, gain, offset float32) {
	for i, code := range src {
		dst[i] = float32(code)*gain - offset
	}
}

// Summary holds basic statistics over one waveform's samples.
type Summary struct {
	Min  float64
	Max  float64
	Mean float64
}

// Summarize computes min/max/mean over the waveform's samples.
func Summarize(w *AnalogWaveform) Summary {
	if len(w.Samples) == 0 {
		return Summary{}
	}
	v := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		v[i] = float64(s)
	}
	return Summary{
		Min:  floats.Min(v),
		Max:  floats.Max(v),
		Mean: floats.Sum(v) / float64(len(v)),
	}
}
