package sigdaq

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Limits of the waveform transfer path.
const (
	// maxAnalogChannels is the most analog channels any supported model has.
	maxAnalogChannels = 4
	// wavedescSize is the byte size of one WAVEDESC descriptor block.
	wavedescSize = 346
	// maxWaveformSize bounds one channel's data block; sample depths that
	// would need multi-chunk transfer are not supported.
	maxWaveformSize = 14 * 1000 * 1000
	// codesPerDivision is the ADC code span of one vertical division on
	// the SDS2000X+ (and SDS5000X).
	codesPerDivision = 30
)

// AnalogChannelControl is the per-channel capability surface.
type AnalogChannelControl interface {
	ChannelCount() int
	CanEnableChannel(i int) bool
	EnableChannel(i int)
	DisableChannel(i int)
	IsChannelEnabled(i int) bool
	GetChannelCoupling(i int) Coupling
	SetChannelCoupling(i int, c Coupling)
	AvailableCouplings(i int) []Coupling
	GetChannelAttenuation(i int) float64
	SetChannelAttenuation(i int, atten float64)
	GetChannelBandwidthLimit(i int) int
	SetChannelBandwidthLimit(i int, limitMHz int)
	ChannelBandwidthLimiters(i int) []int
	CanInvert(i int) bool
	Invert(i int, invert bool)
	IsInverted(i int) bool
	GetChannelVoltageRange(i int) float64
	SetChannelVoltageRange(i int, rng float64)
	GetChannelOffset(i int) float64
	SetChannelOffset(i int, offset float64)
	GetChannelDisplayName(i int) string
	SetChannelDisplayName(i int, name string)
	GetDeskewForChannel(i int) float64
	SetDeskewForChannel(i int, skew float64)
}

// TriggerControl is the trigger capability surface.
type TriggerControl interface {
	Start()
	StartSingleTrigger()
	Stop()
	ForceTrigger()
	PollTrigger() TriggerMode
	IsTriggerArmed() bool
	PullTrigger() *EdgeTrigger
	PushTrigger(*EdgeTrigger)
	Trigger() *EdgeTrigger
}

// TimebaseControl is the horizontal capability surface.
type TimebaseControl interface {
	SampleRatesNonInterleaved() []uint64
	SampleRatesInterleaved() []uint64
	SampleDepthsNonInterleaved() []uint64
	SampleDepthsInterleaved() []uint64
	GetSampleRate() int64
	SetSampleRate(rate int64)
	GetSampleDepth() int64
	SetSampleDepth(depth int64)
	GetTriggerOffset() float64
	SetTriggerOffset(offset float64)
	IsInterleaving() bool
	SetInterleaving(combine bool) bool
}

// Scope drives one Siglent SDS-series oscilloscope over a Transport. One
// concrete type implements the capability interfaces by composition; there
// is no inheritance hierarchy to probe.
type Scope struct {
	transport Transport
	id        Identity
	cache     *configCache

	// True if we have >8 bit capture depth.
	highDefinition bool
	// True on SDS2000X+ firmware 1.3.9R6 and older, where the SCPI
	// length header reports sample count rather than byte size.
	requireSizeWorkaround bool

	// Trigger arming state. These are control-plane fields manipulated
	// by the single goroutine that runs the poll/acquire loop.
	triggerArmed   bool
	triggerOneShot bool
	triggerForced  bool

	// Per-channel transfer buffers, allocated on first acquisition.
	waveformBuf [maxAnalogChannels][]byte
	maxWaveform int

	// Completed waveform sets, guarded separately from the config cache.
	pendingMu sync.Mutex
	pending   []SequenceSet
}

var (
	_ AnalogChannelControl = (*Scope)(nil)
	_ TriggerControl       = (*Scope)(nil)
	_ TimebaseControl      = (*Scope)(nil)
)

// New attaches to the instrument on the given transport, identifies the
// hardware, and prepares the driver. Identification failure is fatal;
// unknown hardware is not.
func New(transport Transport) (*Scope, error) {
	// Some firmware drops commands that arrive back to back.
	transport.EnableRateLimiting(50 * time.Millisecond)

	sc := &Scope{
		transport:   transport,
		cache:       newConfigCache(),
		maxWaveform: maxWaveformSize,
	}
	sc.FlushConfigCache()
	if err := sc.identifyHardware(); err != nil {
		return nil, err
	}
	sc.sharedInit()
	return sc, nil
}

// Identity returns the parsed identification of the attached instrument.
func (sc *Scope) Identity() Identity {
	return sc.id
}

// ChannelCount returns the number of analog channels.
func (sc *Scope) ChannelCount() int {
	return sc.id.AnalogChannels
}

// SetHighDefinition selects 16-bit sample interpretation for waveform
// downloads. Off by default; the attach sequence requests BYTE width.
func (sc *Scope) SetHighDefinition(hd bool) {
	sc.highDefinition = hd
}

// converse formats one command, queues it, and waits for the reply with
// trailing line endings removed.
func (sc *Scope) converse(format string, a ...interface{}) (string, error) {
	reply, err := sc.transport.Converse(fmt.Sprintf(format, a...))
	return strings.TrimRight(reply, "\r\n"), err
}

// sendOnly formats and queues one command with no reply.
func (sc *Scope) sendOnly(format string, a ...interface{}) {
	sc.transport.SendCommand(fmt.Sprintf(format, a...))
}

func (sc *Scope) identifyHardware() error {
	reply, err := sc.converse("*IDN?")
	if err != nil {
		return fmt.Errorf("IDN query failed: %v", err)
	}
	id, err := parseIdentity(reply)
	if err != nil {
		ProblemLogger.Print(err)
		return err
	}
	sc.id = id
	return nil
}

// sharedInit issues the model-dependent attach sequence and seeds trigger
// state.
func (sc *Scope) sharedInit() {
	switch sc.id.Family {
	case FamilySDS2000XPlus:
		sc.sendOnly("CHDR OFF")

		// Desired format for waveform data. Only use increased bit
		// depth if the scope actually puts content there.
		sc.sendOnly(":WAVEFORM:WIDTH BYTE")
	default:
		ProblemLogger.Print("Unknown scope type")
	}

	// Clear the state-change register so we get rid of any history we
	// don't care about.
	sc.PollTrigger()

	// Vertical axis commands are safe to deduplicate once we know what
	// we're dealing with.
	if sc.id.Family == FamilySDS2000XPlus {
		sc.transport.DeduplicateCommand("OFFSET")
		sc.transport.DeduplicateCommand("SCALE")
	}

	// Restore the last saved edge trigger descriptor, if the config file
	// has one. A saved level of 0 V is still a saved trigger.
	if viper.IsSet("trigger") {
		var et EdgeTrigger
		if err := viper.UnmarshalKey("trigger", &et); err == nil {
			sc.cache.mu.Lock()
			sc.cache.trigger = &et
			sc.cache.mu.Unlock()
		}
	}
}

// FlushConfigCache clears all cached configuration, including the trigger
// descriptor and channel display names. Must be called after reconnect.
func (sc *Scope) FlushConfigCache() {
	sc.cache.flush()
}
