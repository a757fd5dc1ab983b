package sigdaq

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sigdaq/sigdaq/rawbytes"
	"github.com/sigdaq/sigdaq/wave"
)

// SequenceSet is one captured segment across all enabled channels, keyed
// by channel index. In sequence mode one hardware capture produces
// several sets, one per segment, sharing an acquisition ID.
type SequenceSet struct {
	ID        string
	Segment   int
	Waveforms map[int]*wave.AnalogWaveform
}

// errNoChannels reports an acquisition attempted with nothing enabled.
var errNoChannels = errors.New("no enabled channels, nothing to acquire")

// readWavedescs downloads the descriptor block for every enabled channel.
// With nothing enabled it still reads channel 1's descriptor so the
// instrument's output queue stays in sync, and the caller aborts.
func (sc *Scope) readWavedescs(enabled []bool) ([][]byte, error) {
	anyEnabled := false
	for _, e := range enabled {
		anyEnabled = anyEnabled || e
	}

	descs := make([][]byte, len(enabled))
	for i := range enabled {
		if !enabled[i] && (anyEnabled || i != 0) {
			continue
		}
		sc.sendOnly(":WAVEFORM:SOURCE C%d;:WAVEFORM:PREAMBLE?", i+1)
		if err := sc.transport.FlushCommandQueue(); err != nil {
			return nil, fmt.Errorf("wavedesc request for channel %d: %v", i, err)
		}

		desc := make([]byte, wavedescSize)
		n, err := sc.readWaveformBlock(desc, false)
		if err != nil {
			return nil, fmt.Errorf("wavedesc for channel %d: %v", i, err)
		}
		if n != wavedescSize {
			return nil, fmt.Errorf("wavedesc for channel %d: got %d bytes, want %d", i, n, wavedescSize)
		}

		// This is the 0x0a at the end.
		if _, err := sc.transport.ReadReply(); err != nil {
			return nil, fmt.Errorf("wavedesc trailer for channel %d: %v", i, err)
		}
		descs[i] = desc
	}
	return descs, nil
}

// AcquireData downloads the capture that PollTrigger reported as
// TRIGGERED and queues the resulting waveform sets. The hardware trigger
// is re-armed as soon as the raw bytes are in memory, before sample
// conversion, unless the capture was one-shot.
func (sc *Scope) AcquireData() error {
	// Resolve channel enable state before taking the exchange lock;
	// these may each cost a config round trip.
	sc.bulkCheckChannelEnableState()
	enabled := make([]bool, sc.id.AnalogChannels)
	for i := range enabled {
		enabled[i] = sc.IsChannelEnabled(i)
	}

	sc.transport.Lock()
	defer sc.transport.Unlock()

	descs, err := sc.readWavedescs(enabled)
	if err != nil {
		return err
	}

	// The first enabled channel's descriptor drives segmenting and
	// timestamps; all channels share a timebase.
	var first *wavedescFields
	for i := range enabled {
		if descs[i] == nil {
			continue
		}
		f, err := parseWavedesc(descs[i])
		if err != nil {
			return err
		}
		if enabled[i] {
			first = &f
			break
		}
	}
	if first == nil {
		return errNoChannels
	}
	numSeq := first.segments()

	// Request the data for every enabled channel in one batch.
	for i := range enabled {
		if enabled[i] {
			sc.sendOnly(":WAVEFORM:SOURCE C%d;:WAVEFORM:DATA?", i+1)
		}
	}
	if err := sc.transport.FlushCommandQueue(); err != nil {
		return fmt.Errorf("waveform data request: %v", err)
	}

	startTime, startFrac := first.timestamp()

	// Sequence mode prepends a block of (trigger time, offset) float64
	// pairs, one pair per segment, behind a 16-byte header.
	var segTimes []float64
	if numSeq > 1 {
		reply, err := sc.transport.ReadReply()
		if err != nil {
			return fmt.Errorf("sequence time block: %v", err)
		}
		if len(reply) < 16+16*numSeq {
			return fmt.Errorf("sequence time block too short: %d bytes for %d segments", len(reply), numSeq)
		}
		segTimes = rawbytes.ToSliceFloat64([]byte(reply[16:]))
	}

	// On SDS2000X+ firmware 1.3.9R6 and older the length header counts
	// samples rather than bytes.
	hdWorkaround := sc.requireSizeWorkaround && sc.highDefinition

	sizes := make([]int, sc.id.AnalogChannels)
	var trailer [2]byte
	for i := range enabled {
		if !enabled[i] {
			continue
		}
		if sc.waveformBuf[i] == nil {
			sc.waveformBuf[i] = make([]byte, sc.maxWaveform)
		}
		n, err := sc.readWaveformBlock(sc.waveformBuf[i], hdWorkaround)
		if err != nil {
			return fmt.Errorf("waveform data for channel %d: %v", i, err)
		}
		if n > len(sc.waveformBuf[i]) {
			ProblemLogger.Printf("channel %d waveform truncated: %d > %d bytes", i, n, len(sc.waveformBuf[i]))
			n = len(sc.waveformBuf[i])
		}
		sizes[i] = n

		// This is the 0x0a0a at the end.
		if err := sc.transport.ReadRawData(trailer[:]); err != nil {
			return fmt.Errorf("waveform trailer for channel %d: %v", i, err)
		}
	}

	// All data is in memory, so the scope is free to capture again
	// while we crunch the results.
	if !sc.triggerOneShot {
		sc.sendOnly(":TRIGGER:MODE SINGLE")
		if err := sc.transport.FlushCommandQueue(); err != nil {
			return fmt.Errorf("trigger re-arm: %v", err)
		}
		sc.triggerArmed = true
	}

	waveforms := make(map[int][]*wave.AnalogWaveform)
	for i := range enabled {
		if !enabled[i] {
			continue
		}
		f, err := parseWavedesc(descs[i])
		if err != nil {
			return err
		}
		waveforms[i] = sc.processAnalogWaveform(sc.waveformBuf[i][:sizes[i]], &f, numSeq, startTime, startFrac, segTimes)
	}

	id := ulid.Make().String()
	sets := make([]SequenceSet, numSeq)
	for j := 0; j < numSeq; j++ {
		sets[j] = SequenceSet{ID: id, Segment: j, Waveforms: make(map[int]*wave.AnalogWaveform)}
		for i, w := range waveforms {
			if j < len(w) {
				sets[j].Waveforms[i] = w[j]
			}
		}
	}

	sc.pendingMu.Lock()
	sc.pending = append(sc.pending, sets...)
	sc.pendingMu.Unlock()
	return nil
}

// processAnalogWaveform converts one channel's raw ADC codes into voltage
// waveforms, one per segment.
func (sc *Scope) processAnalogWaveform(data []byte, f *wavedescFields, numSeq int,
	startTime time.Time, startFrac float64, segTimes []float64) []*wave.AnalogWaveform {

	gain, offset := f.calibration(sc.highDefinition)
	phase := f.triggerPhase()

	numSamples := len(data)
	if sc.highDefinition {
		numSamples /= 2
	}
	perSegment := numSamples / numSeq

	out := make([]*wave.AnalogWaveform, 0, numSeq)
	for j := 0; j < numSeq; j++ {
		w := &wave.AnalogWaveform{
			SamplePeriod: float64(f.interval),
			TriggerPhase: phase,
			StartTime:    startTime,
			StartFrac:    startFrac,
			Samples:      make([]float32, perSegment),
		}
		// Segment j's trigger time is the pair's first element.
		if numSeq > 1 && 2*j < len(segTimes) {
			w.StartFrac = startFrac + segTimes[2*j]
		}

		if sc.highDefinition {
			codes := rawbytes.ToSliceInt16(data)
			wave.ConvertSigned16(w.Samples, codes[j*perSegment:(j+1)*perSegment], gain, offset)
		} else {
			codes := rawbytes.ToSliceInt8(data)
			wave.ConvertSigned8(w.Samples, codes[j*perSegment:(j+1)*perSegment], gain, offset)
		}
		out = append(out, w)
	}
	return out
}

// PendingWaveforms drains and returns the queued waveform sets.
func (sc *Scope) PendingWaveforms() []SequenceSet {
	sc.pendingMu.Lock()
	defer sc.pendingMu.Unlock()
	sets := sc.pending
	sc.pending = nil
	return sets
}
