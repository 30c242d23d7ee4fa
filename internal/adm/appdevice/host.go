package appdevice

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

// Options configure a Host.
type Options struct {
	Logger *slog.Logger
}

// Host is an adm.ExternalDevice built on a Backend. The control path is
// serialized by a state mutex; each data direction has its own mutex which
// the data path only ever try-locks.
type Host struct {
	backend Backend
	logger  *slog.Logger

	mu              sync.Mutex
	initialized     bool
	playInitialized bool
	playing         bool
	recInitialized  bool
	recording       bool

	module    atomic.Pointer[adm.Module]
	callbacks atomic.Pointer[callbackHolder]

	recRegion  atomic.Pointer[adm.Region]
	playRegion atomic.Pointer[adm.Region]

	recMu  sync.Mutex
	recGen uint64
	recPos int

	playMu  sync.Mutex
	playGen uint64
	playPos int // negative while the region must be refilled before reading
}

type callbackHolder struct{ cb adm.Callbacks }

var (
	_ adm.ExternalDevice = (*Host)(nil)
	_ Port               = (*Host)(nil)
)

// New creates a host around backend and attaches itself as the backend's
// port.
func New(backend Backend, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("appdevice")
		if logger == nil {
			logger = slog.Default()
		}
	}
	h := &Host{
		backend: backend,
		logger:  logger.With("component", "host"),
		playPos: -1,
	}
	backend.Attach(h)
	return h
}

// Wrap creates the module around this host and attaches sink to it. The
// caller owns the creator's reference and releases it with Dispose.
func (h *Host) Wrap(sink adm.Sink, opts adm.Options) (*adm.Module, error) {
	if h.module.Load() != nil {
		return nil, ErrAlreadyWrapped
	}
	m, err := adm.Create(h, sink, opts)
	if err != nil {
		return nil, err
	}
	if !h.module.CompareAndSwap(nil, m) {
		_ = m.Dispose()
		return nil, ErrAlreadyWrapped
	}
	h.callbacks.Store(&callbackHolder{cb: m})
	h.logger.Info("wrapped by module", "module_id", m.ID())
	return m, nil
}

// Module returns the wrapping module, nil before Wrap or after Dispose.
func (h *Host) Module() *adm.Module {
	return h.module.Load()
}

// Dispose releases the creator's reference on the wrapping module. It fails
// with adm.ErrActiveReferences while other holders remain.
func (h *Host) Dispose() error {
	m := h.module.Load()
	if m == nil {
		return nil
	}
	if err := m.Dispose(); err != nil && !errors.Is(err, adm.ErrDisposed) {
		return err
	}
	h.module.Store(nil)
	h.callbacks.Store(nil)
	h.recRegion.Store(nil)
	h.playRegion.Store(nil)
	return nil
}

func (h *Host) cb() adm.Callbacks {
	if holder := h.callbacks.Load(); holder != nil {
		return holder.cb
	}
	return nil
}

// Init initializes the backend.
func (h *Host) Init() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.backend.OnInit(); err != nil {
		h.logger.Error("backend init failed", "error", err)
		return -1
	}
	h.initialized = true
	return 0
}

// Terminate shuts the backend down if it was initialized.
func (h *Host) Terminate() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return 0
	}
	if err := h.backend.OnTerminate(); err != nil {
		h.logger.Warn("backend terminate failed", "error", err)
	}
	h.initialized = false
	return 0
}

func (h *Host) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized
}

func (h *Host) PlayoutIsAvailable() int32   { return h.backend.PlayoutIsAvailable() }
func (h *Host) RecordingIsAvailable() int32 { return h.backend.RecordingIsAvailable() }

// InitPlayout checks the module's playout channel count against stereo
// availability, initializes the backend and pushes the backend's playout
// rate through the module, which sizes and publishes the playout buffer.
// A rejected rate stops the backend direction again.
func (h *Host) InitPlayout() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb := h.cb()
	if cb == nil {
		h.logger.Error("playout initialized before wrap")
		return -1
	}
	expected := adm.Mono
	if h.backend.StereoPlayoutIsAvailable() {
		expected = adm.Stereo
	}
	if channels := cb.PlayoutChannels(); channels != expected {
		h.logger.Error("unexpected playout channels", "channels", channels, "expected", expected)
		return -1
	}
	if h.playInitialized {
		return -1
	}
	if err := h.backend.OnInitPlayout(); err != nil {
		h.logger.Error("backend playout init failed", "error", err)
		return -1
	}

	h.playMu.Lock()
	err := cb.SetPlayoutSampleRate(h.backend.PlayoutSampleRate())
	h.playPos = -1
	h.playMu.Unlock()
	if err != nil {
		h.logger.Error("playout sample rate rejected", "error", err)
		if err := h.backend.OnStopPlayout(); err != nil {
			h.logger.Warn("backend playout rollback failed", "error", err)
		}
		return -1
	}

	h.playInitialized = true
	return 0
}

func (h *Host) PlayoutIsInitialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playInitialized
}

// InitRecording mirrors InitPlayout for the capture direction.
func (h *Host) InitRecording() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb := h.cb()
	if cb == nil {
		h.logger.Error("recording initialized before wrap")
		return -1
	}
	expected := adm.Mono
	if h.backend.StereoRecordingIsAvailable() {
		expected = adm.Stereo
	}
	if channels := cb.RecordingChannels(); channels != expected {
		h.logger.Error("unexpected recording channels", "channels", channels, "expected", expected)
		return -1
	}
	if h.recInitialized {
		return -1
	}
	if err := h.backend.OnInitRecording(); err != nil {
		h.logger.Error("backend recording init failed", "error", err)
		return -1
	}

	h.recMu.Lock()
	err := cb.SetRecordingSampleRate(h.backend.RecordingSampleRate())
	h.recPos = 0
	h.recMu.Unlock()
	if err != nil {
		h.logger.Error("recording sample rate rejected", "error", err)
		if err := h.backend.OnStopRecording(); err != nil {
			h.logger.Warn("backend recording rollback failed", "error", err)
		}
		return -1
	}

	h.recInitialized = true
	return 0
}

func (h *Host) RecordingIsInitialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recInitialized
}

func (h *Host) StartPlayout() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playInitialized {
		return -1
	}
	if h.playing {
		return 0
	}
	if err := h.backend.OnStartPlayout(); err != nil {
		h.logger.Error("backend playout start failed", "error", err)
		return -1
	}
	h.playing = true
	return 0
}

// StopPlayout stops the backend and returns playout to the uninitialized
// state.
func (h *Host) StopPlayout() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playInitialized {
		return 0
	}
	if err := h.backend.OnStopPlayout(); err != nil {
		h.logger.Warn("backend playout stop failed", "error", err)
	}
	h.playInitialized = false
	h.playing = false
	return 0
}

func (h *Host) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *Host) StartRecording() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.recInitialized {
		return -1
	}
	if h.recording {
		return 0
	}
	if err := h.backend.OnStartRecording(); err != nil {
		h.logger.Error("backend recording start failed", "error", err)
		return -1
	}
	h.recording = true
	return 0
}

// StopRecording stops the backend and returns recording to the
// uninitialized state.
func (h *Host) StopRecording() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.recInitialized {
		return 0
	}
	if err := h.backend.OnStopRecording(); err != nil {
		h.logger.Warn("backend recording stop failed", "error", err)
	}
	h.recInitialized = false
	h.recording = false
	return 0
}

func (h *Host) Recording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recording
}

func (h *Host) StereoPlayoutIsAvailable() bool   { return h.backend.StereoPlayoutIsAvailable() }
func (h *Host) StereoRecordingIsAvailable() bool { return h.backend.StereoRecordingIsAvailable() }
func (h *Host) PlayoutDelay() int32              { return h.backend.PlayoutDelay() }
func (h *Host) RecordingDelay() int32            { return h.backend.RecordingDelay() }
func (h *Host) PlayoutWarning() bool             { return h.backend.PlayoutWarning() }
func (h *Host) PlayoutError() bool               { return h.backend.PlayoutError() }
func (h *Host) RecordingWarning() bool           { return h.backend.RecordingWarning() }
func (h *Host) RecordingError() bool             { return h.backend.RecordingError() }
func (h *Host) ClearPlayoutWarning()             { h.backend.ClearPlayoutWarning() }
func (h *Host) ClearPlayoutError()               { h.backend.ClearPlayoutError() }
func (h *Host) ClearRecordingWarning()           { h.backend.ClearRecordingWarning() }
func (h *Host) ClearRecordingError()             { h.backend.ClearRecordingError() }

// SetRecordingBuffer stores the region published by the adapter. The write
// cursor is reset on the next DataIsRecorded.
func (h *Host) SetRecordingBuffer(r adm.Region) {
	h.recRegion.Store(&r)
	h.logger.Debug("recording buffer published", "size", len(r.Bytes), "generation", r.Generation)
}

// SetPlayoutBuffer stores the region published by the adapter. The region is
// treated as drained until the next GetPlayoutData refills it.
func (h *Host) SetPlayoutBuffer(r adm.Region) {
	h.playRegion.Store(&r)
	h.logger.Debug("playout buffer published", "size", len(r.Bytes), "generation", r.Generation)
}
