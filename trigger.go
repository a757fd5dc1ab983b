package sigdaq

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// TriggerMode is the result of one trigger status poll.
type TriggerMode int

const (
	// TriggerModeRun means the scope is armed and waiting.
	TriggerModeRun TriggerMode = iota
	// TriggerModeStop means acquisition is stopped with no data pending.
	TriggerModeStop
	// TriggerModeTriggered means a capture completed and can be read.
	TriggerModeTriggered
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerModeRun:
		return "RUN"
	case TriggerModeStop:
		return "STOP"
	case TriggerModeTriggered:
		return "TRIGGERED"
	}
	return "UNKNOWN"
}

// Slope selects which signal edges fire an edge trigger.
type Slope int

const (
	SlopeRising Slope = iota
	SlopeFalling
	SlopeEither
)

func (s Slope) String() string {
	switch s {
	case SlopeRising:
		return "RISING"
	case SlopeFalling:
		return "FALLING"
	case SlopeEither:
		return "EITHER"
	}
	return "UNKNOWN"
}

// EdgeTrigger is the one trigger type this driver configures. Source is
// an analog channel index.
type EdgeTrigger struct {
	Source int     `mapstructure:"source" yaml:"source"`
	Level  float64 `mapstructure:"level" yaml:"level"`
	Slope  Slope   `mapstructure:"slope" yaml:"slope"`
}

// IsTriggerArmed reports the local arming state. No round trip.
func (sc *Scope) IsTriggerArmed() bool {
	return sc.triggerArmed
}

// Trigger returns the in-memory trigger descriptor, or nil if the
// instrument has an unsupported trigger type configured. It does not
// query hardware; use PullTrigger to resync.
func (sc *Scope) Trigger() *EdgeTrigger {
	sc.cache.mu.Lock()
	defer sc.cache.mu.Unlock()
	return sc.cache.trigger
}

// PollTrigger reads the trigger state machine. A pending forced trigger
// completes immediately without a status query. In Stop state an armed
// trigger means a capture finished; one-shot triggers disarm then, while
// repeating triggers stay armed because acquisition re-arms the hardware
// for the next capture.
func (sc *Scope) PollTrigger() TriggerMode {
	if sc.triggerForced {
		sc.triggerForced = false
		sc.triggerArmed = false
		return TriggerModeTriggered
	}

	sinr, err := sc.converse(":TRIGGER:STATUS?")
	if err != nil {
		ProblemLogger.Printf("trigger status query failed: %v", err)
		return TriggerModeStop
	}

	switch sinr {
	case "Arm", "Ready":
		sc.triggerArmed = true
		return TriggerModeRun

	case "Stop":
		if sc.triggerArmed {
			if sc.triggerOneShot {
				sc.triggerArmed = false
			}
			return TriggerModeTriggered
		}
		return TriggerModeStop
	}
	return TriggerModeRun
}

// Start arms a repeating capture. The scope always does single captures;
// acquisition re-arms after each download.
func (sc *Scope) Start() {
	sc.sendOnly(":TRIGGER:MODE STOP")
	sc.sendOnly(":TRIGGER:MODE SINGLE")
	if err := sc.transport.FlushCommandQueue(); err != nil {
		ProblemLogger.Printf("trigger start flush failed: %v", err)
	}

	sc.triggerArmed = true
	sc.triggerOneShot = false
}

// StartSingleTrigger arms exactly one capture.
func (sc *Scope) StartSingleTrigger() {
	sc.sendOnly(":TRIGGER:MODE STOP")
	sc.sendOnly(":TRIGGER:MODE SINGLE")
	if err := sc.transport.FlushCommandQueue(); err != nil {
		ProblemLogger.Printf("trigger start flush failed: %v", err)
	}

	sc.triggerArmed = true
	sc.triggerOneShot = true
}

// Stop disarms the trigger.
func (sc *Scope) Stop() {
	sc.sendOnly(":TRIGGER:MODE STOP")
	if err := sc.transport.FlushCommandQueue(); err != nil {
		ProblemLogger.Printf("trigger stop flush failed: %v", err)
	}

	sc.triggerArmed = false
	sc.triggerOneShot = true
}

// ForceTrigger fires the trigger immediately. A second force while one is
// pending is ignored.
func (sc *Scope) ForceTrigger() {
	if sc.triggerForced {
		return
	}
	sc.triggerForced = true

	sc.sendOnly(":TRIGGER:MODE FTRIG")
	if err := sc.transport.FlushCommandQueue(); err != nil {
		ProblemLogger.Printf("force trigger flush failed: %v", err)
	}

	sc.triggerArmed = true
	sc.triggerOneShot = true
}

// PullTrigger resyncs the in-memory trigger descriptor from hardware.
// Only edge triggers are understood; anything else clears the descriptor.
func (sc *Scope) PullTrigger() *EdgeTrigger {
	reply, err := sc.converse(":TRIGGER:TYPE?")
	if err != nil {
		ProblemLogger.Printf("trigger type query failed: %v", err)
		return nil
	}
	if strings.TrimSpace(reply) != "EDGE" {
		ProblemLogger.Printf("Unsupported trigger type %q", reply)
		sc.cache.mu.Lock()
		sc.cache.trigger = nil
		sc.cache.mu.Unlock()
		return nil
	}

	et := &EdgeTrigger{}

	source, err := sc.converse(":TRIGGER:EDGE:SOURCE?")
	if err == nil {
		et.Source = channelIndexFromHwName(strings.TrimSpace(source))
		if et.Source < 0 {
			ProblemLogger.Printf("Unknown trigger source %q", source)
			et.Source = 0
		}
	}

	level, err := sc.converse(":TRIGGER:EDGE:LEVEL?")
	if err == nil {
		et.Level, _ = strconv.ParseFloat(strings.TrimSpace(level), 64)
	}

	slope, err := sc.converse(":TRIGGER:EDGE:SLOPE?")
	if err == nil {
		et.Slope = parseTriggerSlope(strings.TrimSpace(slope))
	}

	sc.cache.mu.Lock()
	sc.cache.trigger = et
	sc.cache.mu.Unlock()
	return et
}

// parseTriggerSlope decodes the long-form slope replies. The instrument
// answers with mixed-case SCPI long names.
func parseTriggerSlope(reply string) Slope {
	switch reply {
	case "RISing":
		return SlopeRising
	case "FALLing":
		return SlopeFalling
	case "ALTernate":
		return SlopeEither
	}
	ProblemLogger.Printf("Unknown trigger slope %s", reply)
	return SlopeRising
}

// PushTrigger writes the descriptor to the instrument, stores it in the
// cache, and saves it so a later session can restore it.
func (sc *Scope) PushTrigger(et *EdgeTrigger) {
	if et == nil {
		return
	}

	sc.sendOnly(":TRIGGER:TYPE EDGE")
	sc.sendOnly(":TRIGGER:EDGE:SOURCE %s", channelHwName(et.Source))

	switch et.Slope {
	case SlopeRising:
		sc.sendOnly(":TRIGGER:EDGE:SLOPE RISING")
	case SlopeFalling:
		sc.sendOnly(":TRIGGER:EDGE:SLOPE FALLING")
	case SlopeEither:
		sc.sendOnly(":TRIGGER:EDGE:SLOPE ALTERNATE")
	default:
		ProblemLogger.Printf("Invalid trigger slope %d", et.Slope)
	}
	sc.sendOnly(":TRIGGER:EDGE:LEVEL %1.2E", et.Level)

	sc.cache.mu.Lock()
	sc.cache.trigger = et
	sc.cache.mu.Unlock()

	viper.Set("trigger", map[string]interface{}{
		"source": et.Source,
		"level":  et.Level,
		"slope":  int(et.Slope),
	})
}

// channelIndexFromHwName converts "C1".."C4" to a zero-based index, or -1.
func channelIndexFromHwName(name string) int {
	if len(name) != 2 || name[0] != 'C' {
		return -1
	}
	i := int(name[1] - '1')
	if i < 0 || i >= maxAnalogChannels {
		return -1
	}
	return i
}
