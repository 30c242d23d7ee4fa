package adm

// PCM format and quantum constants. The buffer sizing formula is written in
// terms of these names only.
const (
	BitsPerSample        = 16
	BytesPerSample       = BitsPerSample / 8
	CallbackBufferSizeMS = 10
	BuffersPerSecond     = 1000 / CallbackBufferSizeMS
)

// Channel counts.
const (
	Mono   = 1
	Stereo = 2
)

// Direction identifies the capture or the playout side of the adapter.
type Direction int

const (
	DirectionRecording Direction = iota
	DirectionPlayout
)

// String returns the label used in logs and metrics.
func (d Direction) String() string {
	switch d {
	case DirectionRecording:
		return "recording"
	case DirectionPlayout:
		return "playout"
	default:
		return "unknown"
	}
}

// AudioLayer names the audio layer a device module runs on.
type AudioLayer int

const (
	PlatformDefaultAudio AudioLayer = iota
	DummyAudio
)

func (l AudioLayer) String() string {
	if l == PlatformDefaultAudio {
		return "platform-default"
	}
	return "dummy"
}

// FramesPerBuffer returns the number of frames in one quantum at sampleRate.
func FramesPerBuffer(sampleRate uint32) int {
	return int(sampleRate / BuffersPerSecond)
}

// QuantumSize returns the frames per quantum and the byte size of one quantum
// of 16-bit PCM at the given rate and channel count.
func QuantumSize(sampleRate uint32, channels int) (frames, size int) {
	frames = FramesPerBuffer(sampleRate)
	bytesPerFrame := channels * BytesPerSample
	return frames, frames * bytesPerFrame
}
