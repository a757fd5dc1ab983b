package sigdaq

import (
	"math"
	"testing"
)

func TestParseSampleCount(t *testing.T) {
	var tests = []struct {
		reply string
		want  int64
	}{
		{"10k", 10000},
		{"100k", 100000},
		{"2M", 2000000},
		{"10M", 10000000},
		{"1G", 1000000000},
		{"2.5M", 2500000},
		{"10000", 10000},
		{"5000 pts", 5000},
		{" 20k\r", 20000},
	}
	for _, test := range tests {
		got, err := parseSampleCount(test.reply)
		if err != nil {
			t.Errorf("parseSampleCount(%q) returned error: %v", test.reply, err)
			continue
		}
		if got != test.want {
			t.Errorf("parseSampleCount(%q) = %d, want %d", test.reply, got, test.want)
		}
	}

	for _, bad := range []string{"", "abc", "Mk"} {
		if _, err := parseSampleCount(bad); err == nil {
			t.Errorf("parseSampleCount(%q) succeeded, want error", bad)
		}
	}
}

func TestSampleRateTables(t *testing.T) {
	ft := newFakeTransport()
	scope, err := newTestScope(ft)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	plain := scope.SampleRatesNonInterleaved()
	doubled := scope.SampleRatesInterleaved()
	if len(plain) != len(doubled) {
		t.Fatalf("rate table lengths differ: %d vs %d", len(plain), len(doubled))
	}
	for i := range plain {
		if doubled[i] != 2*plain[i] {
			t.Errorf("interleaved rate[%d] = %d, want %d", i, doubled[i], 2*plain[i])
		}
	}
	if plain[0] != 10000 || plain[len(plain)-1] != 1000000000 {
		t.Errorf("rate table spans %d..%d, want 10k..1G", plain[0], plain[len(plain)-1])
	}

	depths := scope.SampleDepthsNonInterleaved()
	idepths := scope.SampleDepthsInterleaved()
	for i := range depths {
		if idepths[i] != 2*depths[i] {
			t.Errorf("interleaved depth[%d] = %d, want %d", i, idepths[i], 2*depths[i])
		}
	}
}

// TestSetSampleDepth checks the trigger-mode juggling around a depth
// change and the rejection of depths needing chunked transfer.
func TestSetSampleDepth(t *testing.T) {
	ft := newFakeTransport()
	scope, err := newTestScope(ft)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ft.script(":ACQUIRE:SRATE?", "1.00E+09")
	ft.script(":ACQUIRE:MDEPTH?", "1M")

	scope.Start()
	scope.SetSampleDepth(1000000)

	iAuto := ft.sentIndex("TRIG_MODE AUTO")
	iDepth := ft.sentIndex("ACQUIRE:MDEPTH 1M")
	iSingle := ft.sentIndex("TRIG_MODE SINGLE")
	if iAuto < 0 || iDepth < 0 || iSingle < 0 {
		t.Fatalf("depth change sequence incomplete: %v", ft.sent)
	}
	if !(iAuto < iDepth && iDepth < iSingle) {
		t.Errorf("depth change out of order: AUTO@%d MDEPTH@%d SINGLE@%d", iAuto, iDepth, iSingle)
	}
	if ft.sentIndex(":TIMEBASE:SCALE 1.00E-04") < 0 {
		t.Errorf("depth change did not restore the sample rate: %v", ft.sent)
	}

	// Unsupported depth: no commands sent.
	before := len(ft.sent)
	scope.SetSampleDepth(50000000)
	for _, cmd := range ft.sent[before:] {
		if cmd == "TRIG_MODE AUTO" {
			t.Error("unsupported depth still started the mode sequence")
		}
	}
}

// TestSetSampleDepthDisarmed: without an armed trigger the sequence ends
// in STOP rather than SINGLE.
func TestSetSampleDepthDisarmed(t *testing.T) {
	ft := newFakeTransport()
	scope, err := newTestScope(ft)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ft.script(":ACQUIRE:SRATE?", "1.00E+09")
	ft.script(":ACQUIRE:MDEPTH?", "10k")

	scope.SetSampleDepth(10000)
	if ft.sentIndex("TRIG_MODE STOP") < 0 {
		t.Errorf("disarmed depth change did not end in STOP: %v", ft.sent)
	}
	if ft.sentIndex("TRIG_MODE SINGLE") >= 0 {
		t.Error("disarmed depth change re-armed the trigger")
	}
}

// TestTriggerOffsetMidpointConversion: the instrument's delay is from the
// capture midpoint; the driver reports from the start.
func TestTriggerOffsetMidpointConversion(t *testing.T) {
	ft := newFakeTransport()
	scope, err := newTestScope(ft)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ft.script(":ACQUIRE:SRATE?", "1.00E+09")
	ft.script(":ACQUIRE:MDEPTH?", "10M")
	// halfwidth = (10M/2)/1e9 = 5 ms
	ft.script(":TIMEBASE:DELAY?", "2.00E-03")

	if got := scope.GetTriggerOffset(); math.Abs(got-0.003) > 1e-12 {
		t.Errorf("GetTriggerOffset = %g, want 0.003", got)
	}

	scope.SetTriggerOffset(0.001)
	if ft.sentIndex(":TIMEBASE:DELAY 4.00E-03") < 0 {
		t.Errorf("SetTriggerOffset(1ms) did not send a 4ms delay: %v", ft.sent)
	}
}
