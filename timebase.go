package sigdaq

import (
	"fmt"
	"strconv"
	"strings"
)

// SampleRatesNonInterleaved lists the samples-per-second settings with
// both channels of an ADC pair in use.
func (sc *Scope) SampleRatesNonInterleaved() []uint64 {
	return []uint64{
		10 * 1000,
		20 * 1000,
		50 * 1000,
		100 * 1000,
		200 * 1000,
		500 * 1000,
		1 * 1000 * 1000,
		2 * 1000 * 1000,
		5 * 1000 * 1000,
		10 * 1000 * 1000,
		20 * 1000 * 1000,
		50 * 1000 * 1000,
		100 * 1000 * 1000,
		200 * 1000 * 1000,
		500 * 1000 * 1000,
		1 * 1000 * 1000 * 1000,
	}
}

// SampleRatesInterleaved lists the rates with ADC pairs interleaved,
// which doubles every entry.
func (sc *Scope) SampleRatesInterleaved() []uint64 {
	rates := sc.SampleRatesNonInterleaved()
	for i := range rates {
		rates[i] *= 2
	}
	return rates
}

// SampleDepthsNonInterleaved lists the record lengths this driver can
// transfer in one block.
func (sc *Scope) SampleDepthsNonInterleaved() []uint64 {
	return []uint64{
		10 * 1000,
		100 * 1000,
		1000 * 1000,
		10 * 1000 * 1000,
	}
}

// SampleDepthsInterleaved doubles each non-interleaved depth.
func (sc *Scope) SampleDepthsInterleaved() []uint64 {
	depths := sc.SampleDepthsNonInterleaved()
	for i := range depths {
		depths[i] *= 2
	}
	return depths
}

// IsInterleaving reports whether the scope is interleaving ADC pairs.
// Channels 1/2 and 3/4 share converters; a pair with both members enabled
// forces non-interleaved operation. Answered from cached enable state
// only, with unknown channels counted as off.
func (sc *Scope) IsInterleaving() bool {
	sc.cache.mu.Lock()
	defer sc.cache.mu.Unlock()
	return sc.isInterleavingLocked()
}

func (sc *Scope) isInterleavingLocked() bool {
	e := sc.cache.enabled
	if e[0] && e[1] {
		return false
	}
	if e[2] && e[3] {
		return false
	}
	return true
}

// SetInterleaving always returns false: interleaving on these scopes is
// hardware managed and follows channel enable state.
func (sc *Scope) SetInterleaving(combine bool) bool {
	return false
}

// GetSampleRate returns the acquisition rate in samples per second.
func (sc *Scope) GetSampleRate() int64 {
	rate, err := sc.cache.int64Field(&sc.cache.sampleRate, &sc.cache.sampleRateValid, func() (int64, error) {
		reply, err := sc.converse(":ACQUIRE:SRATE?")
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable sample rate %q: %v", reply, err)
		}
		return int64(f), nil
	})
	if err != nil {
		ProblemLogger.Printf("sample rate query failed: %v", err)
		return 0
	}
	return rate
}

// GetSampleDepth returns the record length in samples. The reply carries
// a k/M/G suffix and can disagree with the configured cap until a capture
// completes, which is why the cache is invalidated after every depth or
// rate change.
func (sc *Scope) GetSampleDepth() int64 {
	depth, err := sc.cache.int64Field(&sc.cache.memoryDepth, &sc.cache.memoryDepthValid, func() (int64, error) {
		reply, err := sc.converse(":ACQUIRE:MDEPTH?")
		if err != nil {
			return 0, err
		}
		return parseSampleCount(reply)
	})
	if err != nil {
		ProblemLogger.Printf("memory depth query failed: %v", err)
		return 0
	}
	return depth
}

// parseSampleCount converts replies like "10k", "2.5M", "10000", or
// "1G" to a sample count.
func parseSampleCount(reply string) (int64, error) {
	s := strings.TrimSpace(reply)
	s = strings.TrimSuffix(s, "pts")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty sample count")
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1e3
		s = s[:len(s)-1]
	case 'M':
		mult = 1e6
		s = s[:len(s)-1]
	case 'G':
		mult = 1e9
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable sample count %q: %v", reply, err)
	}
	return int64(f * mult), nil
}

// mdepthArgument maps a supported depth to the instrument's spelling.
var mdepthArgument = map[int64]string{
	10000:    "10k",
	20000:    "20k",
	100000:   "100k",
	200000:   "200k",
	1000000:  "1M",
	2000000:  "2M",
	10000000: "10M",
}

// SetSampleDepth sets the record length. The instrument refuses depth
// changes in run/stop mode, so the sequence drops to AUTO, writes the
// depth, then restores SINGLE or STOP depending on whether a trigger was
// armed. Depths above 10M would need chunked transfer and are rejected.
func (sc *Scope) SetSampleDepth(depth int64) {
	// The scope often changes sample rate when adjusting memory depth;
	// remember it so it can be restored afterward.
	rate := sc.GetSampleRate()
	armed := sc.IsTriggerArmed()

	arg, ok := mdepthArgument[depth]
	if !ok {
		ProblemLogger.Printf("invalid memory depth: %d", depth)
		return
	}

	// Queue the whole mode-juggling sequence as one unit so another
	// exchange cannot interleave with it.
	sc.transport.Lock()
	sc.sendOnly("TRIG_MODE AUTO")
	sc.sendOnly("ACQUIRE:MDEPTH %s", arg)
	if armed {
		sc.sendOnly("TRIG_MODE SINGLE")
	} else {
		sc.sendOnly("TRIG_MODE STOP")
	}
	if err := sc.transport.FlushCommandQueue(); err != nil {
		ProblemLogger.Printf("depth change flush failed: %v", err)
	}
	sc.transport.Unlock()

	sc.cache.invalidate(mutateMemoryDepth)
	sc.SetSampleRate(rate)
}

// SetSampleRate sets the acquisition rate by adjusting the timebase scale
// so that depth/rate seconds span the 10-division screen. The instrument
// rounds, so both cached values are invalidated rather than updated.
func (sc *Scope) SetSampleRate(rate int64) {
	sc.cache.invalidate(mutateSampleRate)
	depth := sc.GetSampleDepth()

	sampletime := float64(depth) / float64(rate)
	sc.sendOnly(":TIMEBASE:SCALE %1.2E", sampletime/10)
	sc.cache.invalidate(mutateSampleRate)
}

// GetTriggerOffset returns the time in seconds from the start of the
// capture to the trigger point. The instrument reports delay from the
// midpoint of the capture.
func (sc *Scope) GetTriggerOffset() float64 {
	// Resolve rate and depth before taking the cache lock in
	// float64Field; both getters lock it themselves.
	halfwidth := sc.halfCaptureWidth()
	offset, err := sc.cache.float64Field(&sc.cache.triggerOffset, &sc.cache.triggerOffsetValid, func() (float64, error) {
		reply, err := sc.converse(":TIMEBASE:DELAY?")
		if err != nil {
			return 0, err
		}
		delay, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable trigger delay %q: %v", reply, err)
		}
		return halfwidth - delay, nil
	})
	if err != nil {
		ProblemLogger.Printf("trigger offset query failed: %v", err)
		return 0
	}
	return offset
}

// SetTriggerOffset sets the start-to-trigger time in seconds. The cache
// entry is invalidated rather than updated because the scope is likely to
// round the value we ask for.
func (sc *Scope) SetTriggerOffset(offset float64) {
	sc.sendOnly(":TIMEBASE:DELAY %1.2E", sc.halfCaptureWidth()-offset)
	sc.cache.invalidate(mutateTriggerOffset)
}

// halfCaptureWidth is half the capture duration in seconds, the pivot for
// converting between midpoint-referenced and start-referenced trigger
// delays.
func (sc *Scope) halfCaptureWidth() float64 {
	rate := sc.GetSampleRate()
	if rate == 0 {
		return 0
	}
	return float64(sc.GetSampleDepth()/2) / float64(rate)
}
