// Package binfile reads Siglent V2/V4 binary capture files (the *.bin
// files saved from the scope front panel or web UI) into calibrated
// waveforms. Only format versions 2 and 4 are recognized.
package binfile

import (
	"fmt"
	"os"
	"time"

	"github.com/sigdaq/sigdaq/bitunpack"
	"github.com/sigdaq/sigdaq/rawbytes"
	"github.com/sigdaq/sigdaq/wave"
)

// Payload base offsets by file version.
const (
	payloadOffsetV2 = 0x800
	payloadOffsetV4 = 0x1000
)

// waveHeaderSize is the packed size of the version 2/4 wave header.
const waveHeaderSize = 1020

// Wave header field offsets. The header is packed little-endian with no
// implicit padding; doubles carrying per-channel values are each followed
// by 32 reserved bytes, hence the 40-byte stride.
const (
	offChEnable       = 0   // 4 x int32
	offChGain         = 16  // 4 x (float64 + 32 reserved)
	offChOffset       = 176 // 4 x (float64 + 32 reserved)
	offDigitalEnable  = 336 // int32
	offDigitalChEn    = 340 // 16 x int32
	offTimeDiv        = 404 // float64
	offTimeDelay      = 444 // float64
	offWaveLength     = 484 // uint32
	offSampleRate     = 488 // float64
	offDigWaveLength  = 528 // uint32
	offDigSampleRate  = 532 // float64
	offChProbe        = 572 // 4 x float64
	offDataWidth      = 604 // int8: 0 = 1 byte, 1 = 2 bytes
	offByteOrder      = 605 // int8: 0 = LSB, 1 = MSB
	offHoriDivisions  = 612 // int32
	offChCodesPerDiv  = 616 // 4 x int32
	offMathEnable     = 632 // 4 x int32
	offMathGain       = 648 // 4 x (float64 + 32 reserved)
	offMathOffset     = 808 // 4 x (float64 + 32 reserved)
	offMathWaveLength = 968 // 4 x uint32
	offMathInterval   = 984 // 4 x float64
	offMathCodesPer   = 1016
)

// WaveHeader is the decoded fixed-layout header of a capture file.
type WaveHeader struct {
	ChannelEnabled [4]bool
	ChannelGain    [4]float64
	ChannelOffset  [4]float64
	ChannelProbe   [4]float64
	CodesPerDiv    [4]int32

	DigitalEnabled    bool
	DigitalChEnabled  [16]bool
	DigitalWaveLength uint32
	DigitalSampleRate float64

	TimeDiv    float64
	TimeDelay  float64
	WaveLength uint32
	SampleRate float64
	DataWidth  int  // bytes per sample: 1 or 2
	ByteOrder  int8 // 0 LSB first, 1 MSB first
	HoriDivs   int32

	MathEnabled     [4]bool
	MathGain        [4]float64
	MathOffset      [4]float64
	MathWaveLength  [4]uint32
	MathInterval    [4]float64
	MathCodesPerDiv int32
}

// Stream is one decoded channel. Exactly one of Analog or Digital is set.
type Stream struct {
	Name    string
	Analog  *wave.AnalogWaveform
	Digital *wave.DigitalWaveform
}

// File is a fully decoded capture file.
type File struct {
	Version int
	Header  WaveHeader
	Streams []Stream
}

// ReadFile reads and decodes the named capture file. The file's
// modification time becomes the waveform start time, since V2/V4 captures
// carry no trigger timestamp of their own.
func ReadFile(name string) (*File, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	timestamp := time.Time{}
	if fi, err := os.Stat(name); err == nil {
		timestamp = fi.ModTime()
	}
	return Read(data, timestamp)
}

// Read decodes a capture file image. Unrecognized format versions are a
// fatal parse error: no streams are returned.
func Read(data []byte, timestamp time.Time) (*File, error) {
	r := rawbytes.NewReader(data)
	version := int(r.Uint32At(0))
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("capture file too short for header: %v", err)
	}

	var headerPos, payloadPos int
	switch version {
	case 2:
		headerPos = 4
		payloadPos = payloadOffsetV2
	case 4:
		headerPos = 8 // 4 pad bytes follow the version field
		payloadPos = payloadOffsetV4
	default:
		return nil, fmt.Errorf("unsupported version (%d) in file header", version)
	}
	if len(data) < headerPos {
		return nil, fmt.Errorf("capture file too short for header: %d bytes", len(data))
	}

	wh, err := parseWaveHeader(data[headerPos:])
	if err != nil {
		return nil, err
	}

	f := &File{Version: version, Header: wh}
	if err := f.decodePayload(data, payloadPos); err != nil {
		return nil, err
	}
	for i := range f.Streams {
		if f.Streams[i].Analog != nil {
			f.Streams[i].Analog.StartTime = timestamp
		} else if f.Streams[i].Digital != nil {
			f.Streams[i].Digital.StartTime = timestamp
		}
	}
	return f, nil
}

func parseWaveHeader(buf []byte) (WaveHeader, error) {
	var wh WaveHeader
	if len(buf) < waveHeaderSize {
		return wh, fmt.Errorf("capture file truncated: wave header needs %d bytes, have %d",
			waveHeaderSize, len(buf))
	}
	r := rawbytes.NewReader(buf)

	for i := 0; i < 4; i++ {
		wh.ChannelEnabled[i] = r.Int32At(offChEnable+4*i) == 1
		wh.ChannelGain[i] = r.Float64At(offChGain + 40*i)
		wh.ChannelOffset[i] = r.Float64At(offChOffset + 40*i)
		wh.ChannelProbe[i] = r.Float64At(offChProbe + 8*i)
		wh.CodesPerDiv[i] = r.Int32At(offChCodesPerDiv + 4*i)
	}

	wh.DigitalEnabled = r.Int32At(offDigitalEnable) == 1
	for i := 0; i < 16; i++ {
		wh.DigitalChEnabled[i] = r.Int32At(offDigitalChEn+4*i) == 1
	}

	wh.TimeDiv = r.Float64At(offTimeDiv)
	wh.TimeDelay = r.Float64At(offTimeDelay)
	wh.WaveLength = r.Uint32At(offWaveLength)
	wh.SampleRate = r.Float64At(offSampleRate)
	wh.DigitalWaveLength = r.Uint32At(offDigWaveLength)
	wh.DigitalSampleRate = r.Float64At(offDigSampleRate)
	wh.DataWidth = int(r.Int8At(offDataWidth)) + 1
	wh.ByteOrder = r.Int8At(offByteOrder)
	wh.HoriDivs = r.Int32At(offHoriDivisions)

	for i := 0; i < 4; i++ {
		wh.MathEnabled[i] = r.Int32At(offMathEnable+4*i) == 1
		wh.MathGain[i] = r.Float64At(offMathGain + 40*i)
		wh.MathOffset[i] = r.Float64At(offMathOffset + 40*i)
		wh.MathWaveLength[i] = r.Uint32At(offMathWaveLength + 4*i)
		wh.MathInterval[i] = r.Float64At(offMathInterval + 8*i)
	}
	wh.MathCodesPerDiv = r.Int32At(offMathCodesPer)

	return wh, r.Err()
}

// decodePayload walks the payload region: analog channels in enabled
// order, then math channels, then digital bit lines.
func (f *File) decodePayload(data []byte, pos int) error {
	wh := &f.Header
	centerCode := (1 << uint(8*wh.DataWidth-1)) - 1

	for i := 0; i < 4; i++ {
		if !wh.ChannelEnabled[i] {
			continue
		}
		if wh.CodesPerDiv[i] == 0 {
			return fmt.Errorf("channel C%d enabled with zero codes per division", i+1)
		}
		vgain := wh.ChannelGain[i] * wh.ChannelProbe[i] / float64(wh.CodesPerDiv[i])
		voff := vgain*float64(centerCode) + wh.ChannelOffset[i]
		wfm, next, err := decodeAnalog(data, pos, int(wh.WaveLength), wh.DataWidth, vgain, voff)
		if err != nil {
			return fmt.Errorf("channel C%d: %v", i+1, err)
		}
		wfm.SamplePeriod = 1.0 / wh.SampleRate
		f.Streams = append(f.Streams, Stream{Name: fmt.Sprintf("C%d", i+1), Analog: wfm})
		pos = next
	}

	for i := 0; i < 4; i++ {
		if !wh.MathEnabled[i] {
			continue
		}
		if wh.MathCodesPerDiv == 0 {
			return fmt.Errorf("math channel F%d enabled with zero codes per division", i+1)
		}
		vgain := wh.MathGain[i] / float64(wh.MathCodesPerDiv)
		voff := vgain*float64(centerCode) + wh.MathOffset[i]
		wfm, next, err := decodeAnalog(data, pos, int(wh.MathWaveLength[i]), wh.DataWidth, vgain, voff)
		if err != nil {
			return fmt.Errorf("math channel F%d: %v", i+1, err)
		}
		wfm.SamplePeriod = wh.MathInterval[i]
		f.Streams = append(f.Streams, Stream{Name: fmt.Sprintf("F%d", i+1), Analog: wfm})
		pos = next
	}

	if wh.DigitalEnabled {
		if wh.DigitalWaveLength%8 != 0 {
			return fmt.Errorf("digital wave length %d is not a whole number of bytes",
				wh.DigitalWaveLength)
		}
		nbytes := int(wh.DigitalWaveLength) / 8
		for i := 0; i < 16; i++ {
			if !wh.DigitalChEnabled[i] {
				continue
			}
			if pos+nbytes > len(data) {
				return fmt.Errorf("digital channel D%d: payload [%d:%d] outside file of %d bytes",
					i, pos, pos+nbytes, len(data))
			}
			wfm := &wave.DigitalWaveform{
				SamplePeriod: 1.0 / wh.DigitalSampleRate,
				Samples:      bitunpack.Unpack(data[pos:pos+nbytes], int(wh.DigitalWaveLength)),
			}
			f.Streams = append(f.Streams, Stream{Name: fmt.Sprintf("D%d", i), Digital: wfm})
			pos += nbytes
		}
	}

	return nil
}

// decodeAnalog converts one channel's raw codes to volts, returning the
// waveform and the payload position after it.
func decodeAnalog(data []byte, pos, nsamples, width int, vgain, voff float64) (*wave.AnalogWaveform, int, error) {
	nbytes := nsamples * width
	if pos+nbytes > len(data) {
		return nil, 0, fmt.Errorf("payload [%d:%d] outside file of %d bytes", pos, pos+nbytes, len(data))
	}
	wfm := &wave.AnalogWaveform{Samples: make([]float32, nsamples)}
	raw := data[pos : pos+nbytes]
	if width == 2 {
		wave.ConvertUnsigned16(wfm.Samples, rawbytes.ToSliceUint16(raw), float32(vgain), float32(voff))
	} else {
		wave.ConvertUnsigned8(wfm.Samples, raw, float32(vgain), float32(voff))
	}
	return wfm, pos + nbytes, nil
}
