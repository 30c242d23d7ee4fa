// Package transport provides the pipeline side of the adapter: DeviceBuffer,
// the sink a Module delivers recorded quanta to and pulls playout quanta
// from, the AudioTransport contract it drives, a Loopback transport and an
// Engine that holds a module reference for as long as it runs.
package transport

import (
	"github.com/xfrag/webrtc/internal/errors"
)

// Frame is one recorded quantum with its timing information. Data is only
// valid for the duration of the call it is passed to.
type Frame struct {
	Data             []byte
	Frames           int
	Channels         int
	SampleRate       uint32
	PlayoutDelayMS   uint16
	RecordingDelayMS uint16
	ClockDriftMS     int
}

// AudioTransport consumes recorded audio and produces playout audio.
type AudioTransport interface {
	// RecordedDataIsAvailable receives one recorded quantum.
	RecordedDataIsAvailable(f Frame) error
	// NeedMorePlayData fills dst with up to frames frames of interleaved
	// 16-bit audio and returns the number of frames written.
	NeedMorePlayData(frames, bytesPerFrame, channels int, sampleRate uint32, dst []byte) (int, error)
}

var (
	// ErrNoTransport is returned when recorded audio is delivered before a
	// transport is registered.
	ErrNoTransport = errors.Newf("no audio transport registered").
			Component("transport").
			Category(errors.CategoryState).
			Build()

	// ErrInvalidFormat is returned for channel counts other than 1 and 2 and
	// for buffers shorter than the announced frame count.
	ErrInvalidFormat = errors.Newf("invalid audio format").
				Component("transport").
				Category(errors.CategoryValidation).
				Build()

	// ErrModuleDestroyed is returned when an engine is opened on a module
	// that has already been destroyed.
	ErrModuleDestroyed = errors.Newf("module already destroyed").
				Component("transport").
				Category(errors.CategoryLifetime).
				Build()
)
