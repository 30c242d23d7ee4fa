package adm

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xfrag/webrtc/internal/errors"
)

// Module wraps a Device in shared ownership. The creator holds the first
// reference; other holders such as a transport engine take their own with
// AddRef. The device is destroyed exactly once, when the count reaches zero.
type Module struct {
	*Device

	refs        atomic.Int32
	destroyOnce sync.Once
	destroyErr  error
	logger      *slog.Logger
}

var _ Callbacks = (*Module)(nil)

// Create builds a module around ext and attaches sink. On failure nothing is
// retained.
func Create(ext ExternalDevice, sink Sink, opts Options) (*Module, error) {
	d := NewDevice(ext, opts)
	if err := d.AttachAudioBuffer(sink); err != nil {
		return nil, errors.New(err).
			Component("adm").
			Category(errors.CategoryState).
			Context("operation", "attach_audio_buffer").
			Build()
	}

	m := &Module{
		Device: d,
		logger: d.logger.With("component", "module"),
	}
	m.refs.Store(1)
	GetMetrics().RecordReferences(d.id, 1)
	m.logger.Info("module created")
	return m, nil
}

// AddRef takes a reference and returns the new count. It returns 0 and does
// nothing once the module is destroyed.
func (m *Module) AddRef() int32 {
	for {
		n := m.refs.Load()
		if n <= 0 {
			m.logger.Error("reference taken on a destroyed module")
			return 0
		}
		if m.refs.CompareAndSwap(n, n+1) {
			GetMetrics().RecordReferences(m.id, n+1)
			return n + 1
		}
	}
}

// Release drops a reference and returns the remaining count. The release
// that brings the count to zero destroys the module. Releasing a destroyed
// module is reported and has no effect.
func (m *Module) Release() int32 {
	for {
		n := m.refs.Load()
		if n <= 0 {
			m.logger.Error("release called on a destroyed module")
			return 0
		}
		if m.refs.CompareAndSwap(n, n-1) {
			if n-1 == 0 {
				m.destroy()
			} else {
				GetMetrics().RecordReferences(m.id, n-1)
			}
			return n - 1
		}
	}
}

// Refs returns the current reference count.
func (m *Module) Refs() int32 {
	return m.refs.Load()
}

// Destroyed reports whether the module has been destroyed.
func (m *Module) Destroyed() bool {
	return m.refs.Load() <= 0
}

// Dispose releases the creator's reference. It is refused with
// ErrActiveReferences while any other holder remains.
func (m *Module) Dispose() error {
	for {
		n := m.refs.Load()
		switch {
		case n <= 0:
			return ErrDisposed
		case n > 1:
			GetMetrics().RecordRefusedDisposal(m.id)
			m.logger.Warn("dispose refused, module has active references", "references", n)
			return errors.New(ErrActiveReferences).
				Component("adm").
				Category(errors.CategoryLifetime).
				Context("references", n).
				Build()
		}
		if m.refs.CompareAndSwap(1, 0) {
			m.destroy()
			return m.destroyErr
		}
	}
}

func (m *Module) destroy() {
	m.destroyOnce.Do(func() {
		m.destroyErr = m.Device.Close()
		if m.destroyErr != nil {
			m.logger.Warn("terminate failed during destruction", "error", m.destroyErr)
		}
		GetMetrics().RemoveModule(m.id)
		m.logger.Info("module destroyed")
	})
}

// SetStereoPlayout switches playout between stereo and mono and keeps the
// sink's channel count in step. Stereo requires device support.
func (m *Module) SetStereoPlayout(enable bool) error {
	if enable && !m.Device.StereoPlayoutIsAvailable() {
		m.logger.Warn("stereo playout requested but not available")
		return m.unsupported("SetStereoPlayout")
	}
	if err := m.Device.SetStereoPlayout(enable); err != nil {
		return err
	}
	if sink := m.currentSink(); sink != nil {
		return sink.SetPlayoutChannels(int(channelsFor(enable)))
	}
	return nil
}

// SetStereoRecording switches recording between stereo and mono and keeps
// the sink's channel count in step.
func (m *Module) SetStereoRecording(enable bool) error {
	if enable && !m.Device.StereoRecordingIsAvailable() {
		m.logger.Warn("stereo recording requested but not available")
		return m.unsupported("SetStereoRecording")
	}
	if err := m.Device.SetStereoRecording(enable); err != nil {
		return err
	}
	if sink := m.currentSink(); sink != nil {
		return sink.SetRecordingChannels(int(channelsFor(enable)))
	}
	return nil
}

// RecordingChannels returns 2 when stereo recording is enabled, else 1.
func (m *Module) RecordingChannels() int {
	if m.StereoRecording() {
		return Stereo
	}
	return Mono
}

// PlayoutChannels returns 2 when stereo playout is enabled, else 1.
func (m *Module) PlayoutChannels() int {
	if m.StereoPlayout() {
		return Stereo
	}
	return Mono
}

// SetRecordingSampleRate is the device-facing rate callback. The value is
// truncated to 32 bits.
func (m *Module) SetRecordingSampleRate(hz int64) error {
	return m.Device.SetRecordingSampleRate(uint32(hz & 0xFFFFFFFF))
}

// SetPlayoutSampleRate is the device-facing rate callback. The value is
// truncated to 32 bits.
func (m *Module) SetPlayoutSampleRate(hz int64) error {
	return m.Device.SetPlayoutSampleRate(uint32(hz & 0xFFFFFFFF))
}
