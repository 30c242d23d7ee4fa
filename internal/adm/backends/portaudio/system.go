package portaudio

import (
	"github.com/gordonklaus/portaudio"

	"github.com/xfrag/webrtc/internal/errors"
)

// stream is the blocking subset of *portaudio.Stream the backend uses.
type stream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

// system wraps the PortAudio library so tests can replace it.
type system interface {
	Initialize() error
	Terminate() error
	DefaultDevice(input bool) (*portaudio.DeviceInfo, error)
	// Open opens a 16-bit stream on dev exchanging audio through buf.
	Open(input bool, dev *portaudio.DeviceInfo, sampleRate float64, channels, frames int, buf []int16) (stream, error)
}

type paSystem struct{}

func (paSystem) Initialize() error { return portaudio.Initialize() }
func (paSystem) Terminate() error  { return portaudio.Terminate() }

func (paSystem) DefaultDevice(input bool) (*portaudio.DeviceInfo, error) {
	if input {
		return portaudio.DefaultInputDevice()
	}
	return portaudio.DefaultOutputDevice()
}

func (paSystem) Open(input bool, dev *portaudio.DeviceInfo, sampleRate float64, channels, frames int, buf []int16) (stream, error) {
	var params portaudio.StreamParameters
	if input {
		params = portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = channels
	} else {
		params = portaudio.LowLatencyParameters(nil, dev)
		params.Output.Channels = channels
	}
	params.SampleRate = sampleRate
	params.FramesPerBuffer = frames
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// defaultDevice returns the default device for the direction if it has at
// least channels channels.
func defaultDevice(sys system, input bool, channels int) (*portaudio.DeviceInfo, error) {
	dev, err := sys.DefaultDevice(input)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryNotFound).
			Context("input", input).
			Build()
	}
	maxChannels := dev.MaxOutputChannels
	if input {
		maxChannels = dev.MaxInputChannels
	}
	if maxChannels < channels {
		return nil, errors.Newf("default device %q has %d channels, need %d", dev.Name, maxChannels, channels).
			Component("backend").
			Category(errors.CategoryNotSupported).
			Build()
	}
	return dev, nil
}

func paError(err error, op string) error {
	return errors.New(err).
		Component("backend").
		Category(errors.CategoryAudioDevice).
		Context("operation", op).
		Build()
}
