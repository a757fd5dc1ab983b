package sigdaq

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/sigdaq/sigdaq/rawbytes"
	"github.com/sigdaq/sigdaq/wave"
)

// WaveformHeader describes one published waveform. It travels as the
// second frame of each message, JSON encoded, ahead of the raw float32
// sample payload.
type WaveformHeader struct {
	ID           string  `json:"id"`
	Segment      int     `json:"segment"`
	Channel      int     `json:"channel"`
	Name         string  `json:"name"`
	SamplePeriod float64 `json:"samplePeriod"`
	TriggerPhase float64 `json:"triggerPhase"`
	StartTime    string  `json:"startTime"`
	StartFrac    float64 `json:"startFrac"`
	Samples      int     `json:"samples"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
}

// WaveformPublisher fans completed waveform sets out to subscribers over
// a ZMQ PUB socket. Messages are 3 frames: channel topic ("C1".."C4"),
// JSON header, little-endian float32 samples.
type WaveformPublisher struct {
	socket *zmq.Socket
}

// NewWaveformPublisher binds a PUB socket on the given TCP port.
func NewWaveformPublisher(portnum int) (*WaveformPublisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := socket.Bind(fmt.Sprintf("tcp://*:%d", portnum)); err != nil {
		socket.Close()
		return nil, err
	}
	return &WaveformPublisher{socket: socket}, nil
}

// Close shuts the socket down.
func (p *WaveformPublisher) Close() {
	p.socket.Close()
}

// PublishLoop publishes every waveform set received on its input. It
// terminates when the abort channel is closed.
func (p *WaveformPublisher) PublishLoop(sets <-chan SequenceSet, abort <-chan struct{}) {
	for {
		select {
		case <-abort:
			return
		case set := <-sets:
			if err := p.Publish(set); err != nil {
				ProblemLogger.Printf("waveform publish failed: %v", err)
			}
		}
	}
}

// Publish sends one message per channel in the set.
func (p *WaveformPublisher) Publish(set SequenceSet) error {
	for ch, w := range set.Waveforms {
		s := wave.Summarize(w)
		header := WaveformHeader{
			ID:           set.ID,
			Segment:      set.Segment,
			Channel:      ch,
			Name:         channelHwName(ch),
			SamplePeriod: w.SamplePeriod,
			TriggerPhase: w.TriggerPhase,
			StartTime:    w.StartTime.Format("2006-01-02T15:04:05Z07:00"),
			StartFrac:    w.StartFrac,
			Samples:      len(w.Samples),
			Min:          s.Min,
			Max:          s.Max,
			Mean:         s.Mean,
		}
		hjson, err := json.Marshal(&header)
		if err != nil {
			return err
		}
		payload := rawbytes.FromSliceFloat32(w.Samples)
		if _, err := p.socket.SendMessage(channelHwName(ch), hjson, payload); err != nil {
			return err
		}
	}
	return nil
}
