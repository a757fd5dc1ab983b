package sigdaq

import (
	"strconv"
	"strings"
)

// Coupling is an input coupling and termination setting.
type Coupling int

const (
	CouplingDC1M Coupling = iota
	CouplingAC1M
	CouplingDC50
	CouplingAC50
	CouplingGND
	CouplingInvalid
)

func (c Coupling) String() string {
	switch c {
	case CouplingDC1M:
		return "DC 1M"
	case CouplingAC1M:
		return "AC 1M"
	case CouplingDC50:
		return "DC 50"
	case CouplingAC50:
		return "AC 50"
	case CouplingGND:
		return "GND"
	}
	return "invalid"
}

// AvailableCouplings lists the couplings every analog input supports.
func (sc *Scope) AvailableCouplings(i int) []Coupling {
	return []Coupling{CouplingDC1M, CouplingAC1M, CouplingDC50, CouplingAC50, CouplingGND}
}

// CanEnableChannel reports whether i names a real analog input.
func (sc *Scope) CanEnableChannel(i int) bool {
	return i < sc.id.AnalogChannels
}

// IsChannelEnabled reports whether the channel is acquiring. The first
// call per channel costs a round trip; later calls answer from cache.
func (sc *Scope) IsChannelEnabled(i int) bool {
	if i >= sc.id.AnalogChannels {
		return false
	}
	on, err := sc.cache.channelBool(sc.cache.enabled, i, func() (bool, error) {
		reply, err := sc.converse(":CHANNEL%d:SWITCH?", i+1)
		if err != nil {
			return false, err
		}
		// May have a trailing newline, ignore that.
		return !strings.HasPrefix(reply, "OFF"), nil
	})
	if err != nil {
		ProblemLogger.Printf("channel %d enable query failed: %v", i, err)
		return false
	}
	return on
}

// EnableChannel turns channel i on. If that changes the interleaving
// state, the cached sample rate and memory depth are no longer valid.
func (sc *Scope) EnableChannel(i int) {
	if i >= sc.id.AnalogChannels {
		ProblemLogger.Print("Unsupported channel type")
		return
	}
	wasInterleaving := sc.IsInterleaving()

	sc.sendOnly(":CHANNEL%d:SWITCH ON", i+1)

	sc.cache.mu.Lock()
	sc.cache.enabled[i] = true
	if sc.isInterleavingLocked() != wasInterleaving {
		sc.cache.invalidateLocked(mutateInterleave)
	}
	sc.cache.mu.Unlock()
}

// DisableChannel turns channel i off.
func (sc *Scope) DisableChannel(i int) {
	if i >= sc.id.AnalogChannels {
		return
	}
	wasInterleaving := sc.IsInterleaving()

	sc.cache.mu.Lock()
	sc.cache.enabled[i] = false
	sc.cache.mu.Unlock()

	sc.sendOnly(":CHANNEL%d:SWITCH OFF", i+1)

	sc.cache.mu.Lock()
	if sc.isInterleavingLocked() != wasInterleaving {
		sc.cache.invalidateLocked(mutateInterleave)
	}
	sc.cache.mu.Unlock()
}

// GetChannelCoupling reads the coupling and termination, and updates the
// active-probe flag as a side effect. Never served from cache.
func (sc *Scope) GetChannelCoupling(i int) Coupling {
	if i >= sc.id.AnalogChannels {
		return CouplingInvalid
	}
	sc.cache.setChannelBool(sc.cache.probeActive, i, false)

	replyType, err1 := sc.converse(":CHANNEL%d:COUPLING?", i+1)
	replyImp, err2 := sc.converse(":CHANNEL%d:IMPEDANCE?", i+1)
	if err1 != nil || err2 != nil {
		ProblemLogger.Printf("channel %d coupling query failed", i)
		return CouplingInvalid
	}
	if len(replyType) > 2 {
		replyType = replyType[:2]
	}
	fifty := strings.HasPrefix(replyImp, "FIF")

	switch replyType {
	case "AC":
		if fifty {
			return CouplingAC50
		}
		return CouplingAC1M
	case "DC":
		if fifty {
			return CouplingDC50
		}
		return CouplingDC1M
	case "GN":
		return CouplingGND
	}

	ProblemLogger.Printf("GetChannelCoupling got invalid coupling [%s] [%s]", replyType, replyImp)
	return CouplingInvalid
}

// SetChannelCoupling configures coupling and termination. Channels with
// an active probe attached are left alone.
func (sc *Scope) SetChannelCoupling(i int, c Coupling) {
	if i >= sc.id.AnalogChannels {
		return
	}

	// Refresh the active-probe flag before touching hardware config.
	sc.GetChannelCoupling(i)
	if active, _ := sc.cache.channelBool(sc.cache.probeActive, i, func() (bool, error) { return false, nil }); active {
		return
	}

	switch c {
	case CouplingAC1M:
		sc.sendOnly(":CHANNEL%d:COUPLING AC", i+1)
		sc.sendOnly(":CHANNEL%d:IMPEDANCE ONEMEG", i+1)
	case CouplingDC1M:
		sc.sendOnly(":CHANNEL%d:COUPLING DC", i+1)
		sc.sendOnly(":CHANNEL%d:IMPEDANCE ONEMEG", i+1)
	case CouplingDC50:
		sc.sendOnly(":CHANNEL%d:COUPLING DC", i+1)
		sc.sendOnly(":CHANNEL%d:IMPEDANCE FIFTY", i+1)
	case CouplingAC50:
		sc.sendOnly(":CHANNEL%d:COUPLING AC", i+1)
		sc.sendOnly(":CHANNEL%d:IMPEDANCE FIFTY", i+1)
	default:
		// Treat unrecognized as ground.
		sc.sendOnly(":CHANNEL%d:COUPLING GND", i+1)
	}
}

// GetChannelAttenuation reads the probe attenuation factor.
func (sc *Scope) GetChannelAttenuation(i int) float64 {
	reply, err := sc.converse(":CHANNEL%d:PROBE?", i+1)
	if err != nil {
		ProblemLogger.Printf("channel %d probe query failed: %v", i, err)
		return 1
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		ProblemLogger.Printf("channel %d probe reply unparseable: %q", i, reply)
		return 1
	}
	return d
}

// SetChannelAttenuation sets the probe attenuation factor. Refused when
// an active probe is attached, since the probe reports its own ratio.
func (sc *Scope) SetChannelAttenuation(i int, atten float64) {
	sc.GetChannelCoupling(i)
	if active, _ := sc.cache.channelBool(sc.cache.probeActive, i, func() (bool, error) { return false, nil }); active {
		return
	}
	sc.sendOnly(":CHANNEL%d:PROBE VALUE,%1.2E", i+1, atten)
}

// ChannelBandwidthLimiters lists the limits settable through this driver,
// in MHz, with 0 meaning full bandwidth.
func (sc *Scope) ChannelBandwidthLimiters(i int) []int {
	return []int{0, 20}
}

// GetChannelBandwidthLimit returns the current limit in MHz, 0 if full.
func (sc *Scope) GetChannelBandwidthLimit(i int) int {
	reply, err := sc.converse(":CHANNEL%d:BWLIMIT?", i+1)
	if err != nil {
		ProblemLogger.Printf("channel %d bwlimit query failed: %v", i, err)
		return 0
	}
	switch reply {
	case "FULL":
		return 0
	case "20M":
		return 20
	}
	ProblemLogger.Printf("GetChannelBandwidthLimit got invalid bwlimit %s", reply)
	return 0
}

// SetChannelBandwidthLimit sets the limit in MHz; 0 means full bandwidth.
func (sc *Scope) SetChannelBandwidthLimit(i int, limitMHz int) {
	switch limitMHz {
	case 0:
		sc.sendOnly(":CHANNEL%d:BWLIMIT FULL", i+1)
	case 20:
		sc.sendOnly(":CHANNEL%d:BWLIMIT 20M", i+1)
	case 200:
		sc.sendOnly(":CHANNEL%d:BWLIMIT 200M", i+1)
	default:
		ProblemLogger.Printf("invalid bwlimit set request (%dMHz)", limitMHz)
	}
}

// CanInvert reports whether channel i supports hardware inversion. All
// analog channels, and only analog channels, can be inverted.
func (sc *Scope) CanInvert(i int) bool {
	return i < sc.id.AnalogChannels
}

// Invert enables or disables hardware inversion on channel i.
func (sc *Scope) Invert(i int, invert bool) {
	if i >= sc.id.AnalogChannels {
		return
	}
	onoff := "OFF"
	if invert {
		onoff = "ON"
	}
	sc.sendOnly(":CHANNEL%d:INVERT %s", i+1, onoff)
}

// IsInverted reports whether channel i is hardware inverted.
func (sc *Scope) IsInverted(i int) bool {
	if i >= sc.id.AnalogChannels {
		return false
	}
	reply, err := sc.converse(":CHANNEL%d:INVERT?", i+1)
	if err != nil {
		ProblemLogger.Printf("channel %d invert query failed: %v", i, err)
		return false
	}
	return strings.TrimSpace(reply) == "ON"
}

// SetChannelDisplayName writes a label to the instrument screen and
// remembers it locally.
func (sc *Scope) SetChannelDisplayName(i int, name string) {
	if i >= sc.id.AnalogChannels {
		return
	}
	sc.sendOnly(":CHANNEL%d:LABEL:TEXT \"%s\"", i+1, name)
	sc.sendOnly(":CHANNEL%d:LABEL ON", i+1)

	sc.cache.mu.Lock()
	sc.cache.displayNames[i] = name
	sc.cache.mu.Unlock()
}

// GetChannelDisplayName returns the on-screen label, falling back to the
// hardware name (C1..C4) when no label is set.
func (sc *Scope) GetChannelDisplayName(i int) string {
	if i >= sc.id.AnalogChannels {
		return ""
	}

	sc.cache.mu.Lock()
	if name, ok := sc.cache.displayNames[i]; ok {
		sc.cache.mu.Unlock()
		return name
	}
	reply, err := sc.converse(":CHANNEL%d:LABEL:TEXT?", i+1)
	if err != nil {
		sc.cache.mu.Unlock()
		ProblemLogger.Printf("channel %d label query failed: %v", i, err)
		return channelHwName(i)
	}
	name := strings.Trim(reply, "\"")
	if name == "" {
		name = channelHwName(i)
	}
	sc.cache.displayNames[i] = name
	sc.cache.mu.Unlock()
	return name
}

// GetChannelOffset returns the vertical offset in volts.
func (sc *Scope) GetChannelOffset(i int) float64 {
	if i >= sc.id.AnalogChannels {
		return 0
	}
	v, err := sc.cache.channelFloat(sc.cache.offsets, i, func() (float64, error) {
		reply, err := sc.converse(":CHANNEL%d:OFFSET?", i+1)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(reply), 64)
	})
	if err != nil {
		ProblemLogger.Printf("channel %d offset query failed: %v", i, err)
		return 0
	}
	return v
}

// SetChannelOffset sets the vertical offset in volts and caches the value
// optimistically.
func (sc *Scope) SetChannelOffset(i int, offset float64) {
	if i >= sc.id.AnalogChannels {
		return
	}
	sc.sendOnly(":CHANNEL%d:OFFSET %1.2E", i+1, offset)
	sc.cache.setChannelFloat(sc.cache.offsets, i, offset)
}

// GetChannelVoltageRange returns the full-scale vertical range in volts.
// The display is 8 divisions high.
func (sc *Scope) GetChannelVoltageRange(i int) float64 {
	if i >= sc.id.AnalogChannels {
		return 1
	}
	v, err := sc.cache.channelFloat(sc.cache.voltageRanges, i, func() (float64, error) {
		reply, err := sc.converse(":CHANNEL%d:SCALE?", i+1)
		if err != nil {
			return 0, err
		}
		voltsPerDiv, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
		if err != nil {
			return 0, err
		}
		return voltsPerDiv * 8, nil
	})
	if err != nil {
		ProblemLogger.Printf("channel %d scale query failed: %v", i, err)
		return 1
	}
	return v
}

// SetChannelVoltageRange sets the full-scale vertical range in volts.
func (sc *Scope) SetChannelVoltageRange(i int, rng float64) {
	if i >= sc.id.AnalogChannels {
		return
	}
	sc.cache.setChannelFloat(sc.cache.voltageRanges, i, rng)
	sc.sendOnly(":CHANNEL%d:SCALE %.4f", i+1, rng/8)
}

// GetDeskewForChannel returns the channel deskew in seconds.
func (sc *Scope) GetDeskewForChannel(i int) float64 {
	if i >= sc.id.AnalogChannels {
		return 0
	}
	v, err := sc.cache.channelFloat(sc.cache.deskew, i, func() (float64, error) {
		reply, err := sc.converse(":CHANNEL%d:SKEW?", i+1)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(reply), 64)
	})
	if err != nil {
		ProblemLogger.Printf("channel %d skew query failed: %v", i, err)
		return 0
	}
	return v
}

// SetDeskewForChannel sets the channel deskew in seconds.
func (sc *Scope) SetDeskewForChannel(i int, skew float64) {
	if i >= sc.id.AnalogChannels {
		return
	}
	sc.sendOnly(":CHANNEL%d:SKEW %1.2E", i+1, skew)
	sc.cache.setChannelFloat(sc.cache.deskew, i, skew)
}

// bulkCheckChannelEnableState populates the enable cache for any channel
// not yet known, so an acquisition never stalls mid-transfer on a config
// query.
func (sc *Scope) bulkCheckChannelEnableState() {
	sc.cache.mu.Lock()
	var unknown []int
	for i := 0; i < sc.id.AnalogChannels; i++ {
		if _, ok := sc.cache.enabled[i]; !ok {
			unknown = append(unknown, i)
		}
	}
	sc.cache.mu.Unlock()

	for _, i := range unknown {
		reply, err := sc.converse(":CHANNEL%d:SWITCH?", i+1)
		if err != nil {
			ProblemLogger.Printf("channel %d enable query failed: %v", i, err)
			continue
		}
		sc.cache.setChannelBool(sc.cache.enabled, i, !strings.HasPrefix(reply, "OFF"))
	}
}

// enabledChannels returns the indices of enabled channels, in order.
func (sc *Scope) enabledChannels() []int {
	var on []int
	for i := 0; i < sc.id.AnalogChannels; i++ {
		if sc.IsChannelEnabled(i) {
			on = append(on, i)
		}
	}
	return on
}
