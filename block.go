package sigdaq

import (
	"bytes"
	"fmt"
	"strconv"
)

// readWaveformBlock reads one length-prefixed waveform data block into
// dst. The prefix format varies with firmware and with how the capture
// was triggered:
//
//	DESC,#9nnnnnnnnn  and  DAT2,#9nnnnnnnnn   direct trigger
//	xx:WF Dxxxxxx#9nnnnnnnnn                  forced trigger
//	#9nnnnnnnnn                               SDS2000X HD fw 1.1.7.0
//
// where nnnnnnnnn is a 9-digit decimal byte count. The read into dst is
// clamped to len(dst), but the returned count is the full declared length
// so the caller can detect truncation. Under the HD size workaround the
// declared value counts samples, not bytes, so it is doubled.
func (sc *Scope) readWaveformBlock(dst []byte, hdSizeWorkaround bool) (int, error) {
	var prefix [9]byte

	if err := sc.transport.ReadRawData(prefix[:7]); err != nil {
		return 0, fmt.Errorf("waveform block prefix: %v", err)
	}

	switch {
	case bytes.HasPrefix(prefix[:7], []byte("DESC,#9")),
		bytes.HasPrefix(prefix[:7], []byte("DAT2,#9")):
		if err := sc.transport.ReadRawData(prefix[:9]); err != nil {
			return 0, fmt.Errorf("waveform block length: %v", err)
		}

	case bytes.Equal(prefix[2:7], []byte(":WF D")):
		// Skip the rest of the command echo, then read the length.
		if err := sc.transport.ReadRawData(prefix[:6]); err != nil {
			return 0, fmt.Errorf("waveform block echo: %v", err)
		}
		if err := sc.transport.ReadRawData(prefix[:9]); err != nil {
			return 0, fmt.Errorf("waveform block length: %v", err)
		}

	case bytes.HasPrefix(prefix[:7], []byte("#9")):
		// Five length digits already read; shift them down and fetch
		// the last four.
		copy(prefix[:5], prefix[2:7])
		if err := sc.transport.ReadRawData(prefix[5:9]); err != nil {
			return 0, fmt.Errorf("waveform block length: %v", err)
		}

	default:
		ProblemLogger.Printf("readWaveformBlock: invalid length format %q", prefix[:7])
		return 0, nil
	}

	declared, err := strconv.Atoi(string(prefix[:9]))
	if err != nil {
		return 0, fmt.Errorf("waveform block length %q: %v", prefix[:9], err)
	}
	if hdSizeWorkaround {
		declared *= 2
	}

	n := declared
	if n > len(dst) {
		n = len(dst)
	}
	if err := sc.transport.ReadRawData(dst[:n]); err != nil {
		return 0, fmt.Errorf("waveform block data: %v", err)
	}
	return declared, nil
}
