package sigdb

import "time"

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the sigdaqactivity table: one row
// per program run.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// AcquisitionMessage is the information required to make an entry in the
// acquisitions table: one row per hardware capture downloaded from the
// scope.
type AcquisitionMessage struct {
	ID         string
	Model      string
	Serial     string
	Segments   int
	Nchannels  int
	NSamples   int
	SampleRate int64
	Timestamp  time.Time
}

// WaveformMessage is the information for the waveforms table: one row per
// channel per segment.
type WaveformMessage struct {
	AcquisitionID string
	Segment       int
	Channel       int
	ChanName      string
	SamplePeriod  float64
	Min           float64
	Max           float64
	Mean          float64
}
