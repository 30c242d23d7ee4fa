package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

type transportHolder struct {
	t AudioTransport
}

// DeviceBuffer implements adm.Sink on top of an AudioTransport. The recording
// and playout sides have separate locks so the two real-time paths never
// wait on each other.
type DeviceBuffer struct {
	logger    *slog.Logger
	transport atomic.Pointer[transportHolder]

	recMu       sync.Mutex
	recRate     uint32
	recChannels int
	recData     []byte
	recFrames   int
	playDelay   uint16
	recDelay    uint16
	clockDrift  int

	playMu       sync.Mutex
	playRate     uint32
	playChannels int
	playData     []byte
	playFrames   int

	delivered atomic.Int64
	requested atomic.Int64
}

var _ adm.Sink = (*DeviceBuffer)(nil)

// NewDeviceBuffer returns a mono buffer with no rates set.
func NewDeviceBuffer(logger *slog.Logger) *DeviceBuffer {
	if logger == nil {
		logger = logging.ForService("transport")
		if logger == nil {
			logger = slog.Default()
		}
	}
	return &DeviceBuffer{
		logger:       logger.With("component", "device_buffer"),
		recChannels:  adm.Mono,
		playChannels: adm.Mono,
	}
}

// RegisterAudioCallback installs t as the transport; nil unregisters.
func (b *DeviceBuffer) RegisterAudioCallback(t AudioTransport) {
	if t == nil {
		b.transport.Store(nil)
		b.logger.Debug("audio transport unregistered")
		return
	}
	b.transport.Store(&transportHolder{t: t})
	b.logger.Debug("audio transport registered")
}

func (b *DeviceBuffer) current() AudioTransport {
	if h := b.transport.Load(); h != nil {
		return h.t
	}
	return nil
}

func validChannels(channels int) error {
	if channels != adm.Mono && channels != adm.Stereo {
		return errors.New(ErrInvalidFormat).
			Component("transport").
			Category(errors.CategoryValidation).
			Context("channels", channels).
			Build()
	}
	return nil
}

// SetRecordingSampleRate implements adm.Sink. Zero means unset.
func (b *DeviceBuffer) SetRecordingSampleRate(hz uint32) error {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	b.recRate = hz
	b.logger.Debug("recording sample rate set", "sample_rate", hz)
	return nil
}

// SetPlayoutSampleRate implements adm.Sink. Zero means unset.
func (b *DeviceBuffer) SetPlayoutSampleRate(hz uint32) error {
	b.playMu.Lock()
	defer b.playMu.Unlock()
	b.playRate = hz
	b.logger.Debug("playout sample rate set", "sample_rate", hz)
	return nil
}

func (b *DeviceBuffer) SetRecordingChannels(channels int) error {
	if err := validChannels(channels); err != nil {
		return err
	}
	b.recMu.Lock()
	defer b.recMu.Unlock()
	b.recChannels = channels
	return nil
}

func (b *DeviceBuffer) SetPlayoutChannels(channels int) error {
	if err := validChannels(channels); err != nil {
		return err
	}
	b.playMu.Lock()
	defer b.playMu.Unlock()
	b.playChannels = channels
	return nil
}

// RecordingFormat returns the recording rate and channel count.
func (b *DeviceBuffer) RecordingFormat() (uint32, int) {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	return b.recRate, b.recChannels
}

// PlayoutFormat returns the playout rate and channel count.
func (b *DeviceBuffer) PlayoutFormat() (uint32, int) {
	b.playMu.Lock()
	defer b.playMu.Unlock()
	return b.playRate, b.playChannels
}

// SetRecordedBuffer copies one recorded quantum.
func (b *DeviceBuffer) SetRecordedBuffer(data []byte, frames int) error {
	b.recMu.Lock()
	defer b.recMu.Unlock()

	size := frames * b.recChannels * adm.BytesPerSample
	if frames <= 0 || len(data) < size {
		return errors.New(ErrInvalidFormat).
			Component("transport").
			Category(errors.CategoryValidation).
			Context("frames", frames).
			Context("bytes", len(data)).
			Context("channels", b.recChannels).
			Build()
	}
	if cap(b.recData) < size {
		b.recData = make([]byte, size)
	}
	b.recData = b.recData[:size]
	copy(b.recData, data)
	b.recFrames = frames
	return nil
}

// SetVQEData stores the timing that goes out with the next delivery.
func (b *DeviceBuffer) SetVQEData(playoutDelayMS, recordingDelayMS uint16, clockDriftMS int) {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	b.playDelay = playoutDelayMS
	b.recDelay = recordingDelayMS
	b.clockDrift = clockDriftMS
}

// DeliverRecordedData hands the stored quantum to the transport.
func (b *DeviceBuffer) DeliverRecordedData() error {
	t := b.current()
	if t == nil {
		return ErrNoTransport
	}

	b.recMu.Lock()
	defer b.recMu.Unlock()
	if b.recFrames == 0 {
		return errors.Newf("no recorded data to deliver").
			Component("transport").
			Category(errors.CategoryState).
			Build()
	}

	err := t.RecordedDataIsAvailable(Frame{
		Data:             b.recData,
		Frames:           b.recFrames,
		Channels:         b.recChannels,
		SampleRate:       b.recRate,
		PlayoutDelayMS:   b.playDelay,
		RecordingDelayMS: b.recDelay,
		ClockDriftMS:     b.clockDrift,
	})
	if err != nil {
		return errors.New(err).
			Component("transport").
			Category(errors.CategoryTransport).
			Context("operation", "recorded_data_is_available").
			Build()
	}
	b.delivered.Add(1)
	return nil
}

// RequestPlayoutData asks the transport for frames frames. Without a
// transport it produces nothing.
func (b *DeviceBuffer) RequestPlayoutData(frames int) (int, error) {
	b.playMu.Lock()
	defer b.playMu.Unlock()
	b.playFrames = 0

	t := b.current()
	if t == nil || frames <= 0 {
		return 0, nil
	}

	bytesPerFrame := b.playChannels * adm.BytesPerSample
	size := frames * bytesPerFrame
	if cap(b.playData) < size {
		b.playData = make([]byte, size)
	}
	b.playData = b.playData[:size]

	n, err := t.NeedMorePlayData(frames, bytesPerFrame, b.playChannels, b.playRate, b.playData)
	if err != nil {
		return 0, errors.New(err).
			Component("transport").
			Category(errors.CategoryTransport).
			Context("operation", "need_more_play_data").
			Build()
	}
	// More than requested is passed through; the adapter treats it as an
	// invariant violation.
	b.playFrames = min(max(n, 0), frames)
	b.requested.Add(1)
	return n, nil
}

// GetPlayoutData copies the prepared frames into dst.
func (b *DeviceBuffer) GetPlayoutData(dst []byte) (int, error) {
	b.playMu.Lock()
	defer b.playMu.Unlock()

	bytesPerFrame := b.playChannels * adm.BytesPerSample
	frames := min(b.playFrames, len(dst)/bytesPerFrame)
	copy(dst, b.playData[:frames*bytesPerFrame])
	return frames, nil
}

// Stats returns the number of delivered recorded quanta and of playout
// requests served by a transport.
func (b *DeviceBuffer) Stats() (delivered, requested int64) {
	return b.delivered.Load(), b.requested.Load()
}
