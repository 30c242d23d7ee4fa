package adm

// Region is a published view of a sample buffer. Bytes stays owned by the
// adapter; the external device fills or drains it but never frees it. A new
// Generation invalidates every region handed out before it.
type Region struct {
	Bytes      []byte
	Frames     int
	Channels   int
	SampleRate uint32
	Generation uint64
}

// Valid reports whether the region refers to allocated memory.
func (r Region) Valid() bool {
	return len(r.Bytes) > 0
}

// ExternalDevice is the boundary-crossing device implementation the adapter
// delegates to. Status results use 0 for success and a negative value for
// failure. Availability queries return 1 when available, 0 when not and a
// negative value on failure. Delays are milliseconds, negative on failure.
type ExternalDevice interface {
	Init() int32
	Terminate() int32
	Initialized() bool

	PlayoutIsAvailable() int32
	RecordingIsAvailable() int32
	InitPlayout() int32
	PlayoutIsInitialized() bool
	InitRecording() int32
	RecordingIsInitialized() bool

	StartPlayout() int32
	StopPlayout() int32
	Playing() bool
	StartRecording() int32
	StopRecording() int32
	Recording() bool

	StereoPlayoutIsAvailable() bool
	StereoRecordingIsAvailable() bool

	PlayoutDelay() int32
	RecordingDelay() int32

	PlayoutWarning() bool
	PlayoutError() bool
	RecordingWarning() bool
	RecordingError() bool
	ClearPlayoutWarning()
	ClearPlayoutError()
	ClearRecordingWarning()
	ClearRecordingError()

	// SetRecordingBuffer and SetPlayoutBuffer receive the region the device
	// must use from now on. They are called after every reallocation.
	SetRecordingBuffer(Region)
	SetPlayoutBuffer(Region)
}

// Sink is the transport pipeline's buffer object: it consumes recorded
// quanta and produces playout quanta.
type Sink interface {
	SetRecordingSampleRate(hz uint32) error
	SetPlayoutSampleRate(hz uint32) error
	SetRecordingChannels(channels int) error
	SetPlayoutChannels(channels int) error

	// SetRecordedBuffer hands over one recorded quantum. The sink must copy
	// what it needs before returning.
	SetRecordedBuffer(data []byte, frames int) error
	SetVQEData(playoutDelayMS, recordingDelayMS uint16, clockDriftMS int)
	DeliverRecordedData() error

	// RequestPlayoutData asks the pipeline to prepare frames of playout
	// audio and returns how many it produced.
	RequestPlayoutData(frames int) (int, error)
	// GetPlayoutData copies the prepared audio into dst and returns the
	// number of frames written.
	GetPlayoutData(dst []byte) (int, error)
}

// Callbacks is the surface a Module exposes back to the external device it
// wraps. Channel and rate calls belong to the control path; DataIsRecorded
// and GetPlayoutData are the real-time data path.
type Callbacks interface {
	RecordingChannels() int
	PlayoutChannels() int
	SetRecordingSampleRate(hz int64) error
	SetPlayoutSampleRate(hz int64) error
	DataIsRecorded()
	GetPlayoutData()
}
