package sigdaq

import (
	"fmt"
	"strings"
)

// ModelFamily enumerates the scope series we can distinguish. Exact SKU is
// mostly irrelevant.
type ModelFamily int

// Known model families.
const (
	FamilyUnknown ModelFamily = iota
	FamilySDS2000XPlus
)

func (f ModelFamily) String() string {
	if f == FamilySDS2000XPlus {
		return "SDS2000X Plus"
	}
	return "unknown"
}

// Identity holds the parsed *IDN? reply and everything derived from it.
// It is immutable after identification and re-derived only on reconnect.
type Identity struct {
	Vendor   string
	Model    string
	Serial   string
	Firmware string

	Family          ModelFamily
	MaxBandwidthMHz int
	AnalogChannels  int
}

// parseIdentity splits a reply of the form vendor,model,serial,version.
// The version field contains no commas, so the reply must split into
// exactly four fields.
func parseIdentity(reply string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("bad IDN response %q", reply)
	}
	id := Identity{
		Vendor:   parts[0],
		Model:    parts[1],
		Serial:   parts[2],
		Firmware: parts[3],
	}
	id.classify()
	id.AnalogChannels = channelCountFromModel(id.Model)
	return id, nil
}

// classify looks up the model family and bandwidth tier. Unknown vendors
// or models are non-fatal: the driver continues with degraded capability
// (no sample-rate or memory-depth tables).
func (id *Identity) classify() {
	id.Family = FamilyUnknown
	id.MaxBandwidthMHz = 0

	if id.Vendor != "Siglent Technologies" {
		ProblemLogger.Printf("Vendor %q is unknown", id.Vendor)
		return
	}

	// SDS2NNNX Plus: model starts with "SDS2" and ends in "s" (of "Plus")
	if strings.HasPrefix(id.Model, "SDS2") && strings.HasSuffix(id.Model, "s") {
		id.Family = FamilySDS2000XPlus
		id.MaxBandwidthMHz = 100 // SDS21NNX Plus
		if len(id.Model) > 4 {
			switch id.Model[4] {
			case '2': // SDS22NNX Plus
				id.MaxBandwidthMHz = 200
			case '3': // SDS23NNX Plus
				id.MaxBandwidthMHz = 350
			case '5': // SDS25NNX Plus
				id.MaxBandwidthMHz = 500
			}
		}
	} else {
		ProblemLogger.Printf("Model %q is unknown, available sample rates/memory depths may not be properly detected", id.Model)
	}
}

// channelCountFromModel derives the analog channel count from the model
// string. Char 7 of the model name is the number of channels:
// SDS2104X Plus has 4 channels.
func channelCountFromModel(model string) int {
	if len(model) > 7 {
		switch model[6] {
		case '2':
			return 2
		case '4':
			return 4
		}
	}
	return 1
}

// channelColors is Siglent's standard color sequence:
// yellow-pink-cyan-green.
var channelColors = [4]string{"#ffff00", "#ff6abc", "#00ffff", "#00c100"}

// ChannelColor returns the display color for channel index i.
func ChannelColor(i int) string {
	return channelColors[i%4]
}

// channelHwName returns the hardware name of channel index i ("C1"...).
func channelHwName(i int) string {
	return fmt.Sprintf("C%d", i+1)
}
