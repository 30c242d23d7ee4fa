// Package session assembles one audio session from the settings: a backend
// behind an appdevice host, the module wrapping it, the device buffer, the
// loopback transport and the engine holding the module. All control-path
// calls of a session must come from the goroutine that calls Start.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/adm/appdevice"
	"github.com/xfrag/webrtc/internal/adm/backends/file"
	"github.com/xfrag/webrtc/internal/adm/backends/malgo"
	"github.com/xfrag/webrtc/internal/adm/backends/portaudio"
	"github.com/xfrag/webrtc/internal/adm/transport"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

// StatusInterval is how often Run polls the device status flags and delays.
const StatusInterval = time.Second

// Backends lists the backend names compiled into this binary.
var Backends = []string{conf.BackendFile, conf.BackendMalgo, conf.BackendPortAudio}

// NewBackend builds the backend selected by device.backend.
func NewBackend(settings *conf.Settings, logger *slog.Logger) (appdevice.Backend, error) {
	switch settings.Device.Backend {
	case conf.BackendFile:
		cfg := file.ConfigFromSettings(settings)
		cfg.Logger = logger
		return file.New(cfg)
	case conf.BackendMalgo:
		cfg := malgo.ConfigFromSettings(settings)
		cfg.Logger = logger
		return malgo.New(cfg), nil
	case conf.BackendPortAudio:
		cfg := portaudio.ConfigFromSettings(settings)
		cfg.Logger = logger
		return portaudio.New(cfg), nil
	default:
		return nil, errors.Newf("unknown device backend %q", settings.Device.Backend).
			Component("session").
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Device.Backend).
			Build()
	}
}

// Status counts what the status poll observed.
type Status struct {
	RecordingWarnings int64
	RecordingErrors   int64
	PlayoutWarnings   int64
	PlayoutErrors     int64
}

// Session owns the pipeline built around one backend.
type Session struct {
	settings *conf.Settings
	logger   *slog.Logger

	host     *appdevice.Host
	module   *adm.Module
	buffer   *transport.DeviceBuffer
	loopback *transport.Loopback
	engine   *transport.Engine

	// set once Init* succeeded, so Stop undoes a direction whose start failed
	recInitialized  bool
	playInitialized bool
	recording       bool
	playing         bool

	recWarnings  atomic.Int64
	recErrors    atomic.Int64
	playWarnings atomic.Int64
	playErrors   atomic.Int64
}

// New wraps backend and opens the loopback engine on it. On failure
// everything built so far is disposed.
func New(settings *conf.Settings, backend appdevice.Backend, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.ForService("session")
		if logger == nil {
			logger = slog.Default()
		}
	}

	opts, err := adm.OptionsFromSettings(settings)
	if err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryConfiguration).
			Build()
	}
	opts.Logger = logger

	s := &Session{
		settings: settings,
		logger:   logger.With("component", "session"),
		buffer:   transport.NewDeviceBuffer(logger),
		loopback: transport.NewLoopback(settings.Transport.BufferMS, logger),
	}
	s.host = appdevice.New(backend, appdevice.Options{Logger: logger})

	s.module, err = s.host.Wrap(s.buffer, opts)
	if err != nil {
		return nil, err
	}
	s.engine, err = transport.NewEngine(s.module, s.buffer, s.loopback)
	if err != nil {
		_ = s.host.Dispose()
		return nil, err
	}
	s.logger = s.logger.With("module_id", s.module.ID())
	return s, nil
}

// Module returns the wrapped module.
func (s *Session) Module() *adm.Module { return s.module }

// Loopback returns the transport attached to the device buffer.
func (s *Session) Loopback() *transport.Loopback { return s.loopback }

// Buffer returns the device buffer.
func (s *Session) Buffer() *transport.DeviceBuffer { return s.buffer }

// Status returns the flag counts seen so far.
func (s *Session) Status() Status {
	return Status{
		RecordingWarnings: s.recWarnings.Load(),
		RecordingErrors:   s.recErrors.Load(),
		PlayoutWarnings:   s.playWarnings.Load(),
		PlayoutErrors:     s.playErrors.Load(),
	}
}

// Start initializes the device and starts every enabled direction. Stereo
// is selected whenever the device offers it, which the backends derive from
// the stereo settings.
func (s *Session) Start() error {
	if err := s.module.Init(); err != nil {
		return s.controlError("init", err)
	}

	if s.settings.Device.Recording.Enabled {
		if err := s.startRecording(); err != nil {
			return err
		}
	}
	if s.settings.Device.Playout.Enabled {
		if err := s.startPlayout(); err != nil {
			return err
		}
	}

	s.logger.Info("session started",
		"backend", s.settings.Device.Backend,
		"recording", s.recording,
		"playout", s.playing)
	return nil
}

func (s *Session) startRecording() error {
	available, err := s.module.RecordingIsAvailable()
	if err != nil {
		return s.controlError("recording_is_available", err)
	}
	if !available {
		return errors.Newf("recording is not available on the %s backend", s.settings.Device.Backend).
			Component("session").
			Category(errors.CategoryAudioDevice).
			Build()
	}
	if err := s.module.SetStereoRecording(s.module.StereoRecordingIsAvailable()); err != nil {
		return s.controlError("set_stereo_recording", err)
	}
	if err := s.module.InitRecording(); err != nil {
		return s.controlError("init_recording", err)
	}
	s.recInitialized = true
	if err := s.module.StartRecording(); err != nil {
		return s.controlError("start_recording", err)
	}
	s.recording = true
	return nil
}

func (s *Session) startPlayout() error {
	available, err := s.module.PlayoutIsAvailable()
	if err != nil {
		return s.controlError("playout_is_available", err)
	}
	if !available {
		return errors.Newf("playout is not available on the %s backend", s.settings.Device.Backend).
			Component("session").
			Category(errors.CategoryAudioDevice).
			Build()
	}
	if err := s.module.SetStereoPlayout(s.module.StereoPlayoutIsAvailable()); err != nil {
		return s.controlError("set_stereo_playout", err)
	}
	if err := s.module.InitPlayout(); err != nil {
		return s.controlError("init_playout", err)
	}
	s.playInitialized = true
	if err := s.module.StartPlayout(); err != nil {
		return s.controlError("start_playout", err)
	}
	s.playing = true
	return nil
}

func (s *Session) controlError(op string, err error) error {
	return errors.New(err).
		Component("session").
		Category(errors.CategoryAudioDevice).
		Context("operation", op).
		Context("backend", s.settings.Device.Backend).
		Build()
}

// Stop stops both directions, closes the engine and disposes the module,
// which terminates the device. It must run on the goroutine that called
// Start.
func (s *Session) Stop() error {
	var errs []error
	if s.recInitialized {
		if err := s.module.StopRecording(); err != nil {
			errs = append(errs, s.controlError("stop_recording", err))
		}
		s.recInitialized, s.recording = false, false
	}
	if s.playInitialized {
		if err := s.module.StopPlayout(); err != nil {
			errs = append(errs, s.controlError("stop_playout", err))
		}
		s.playInitialized, s.playing = false, false
	}

	s.engine.Close()
	if err := s.host.Dispose(); err != nil {
		errs = append(errs, err)
	}

	delivered, requested := s.buffer.Stats()
	s.logger.Info("session stopped",
		"delivered", delivered,
		"requested", requested,
		"loopback_dropped", s.loopback.Dropped(),
		"rate_mismatches", s.loopback.RateMismatches())
	return errors.Join(errs...)
}

// Run starts the session, polls the status flags until ctx is done and
// stops the session. The whole lifecycle runs on the calling goroutine.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		if stopErr := s.Stop(); stopErr != nil {
			s.logger.Warn("cleanup after failed start", "error", stopErr)
		}
		return err
	}

	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll logs and clears raised status flags and refreshes the delay gauges.
func (s *Session) poll() {
	if s.recording {
		if s.module.RecordingWarning() {
			s.recWarnings.Add(1)
			s.logger.Warn("recording warning reported by device")
			s.module.ClearRecordingWarning()
		}
		if s.module.RecordingError() {
			s.recErrors.Add(1)
			s.logger.Error("recording error reported by device")
			s.module.ClearRecordingError()
		}
		if _, err := s.module.RecordingDelay(); err != nil {
			s.logger.Debug("recording delay unavailable", "error", err)
		}
	}
	if s.playing {
		if s.module.PlayoutWarning() {
			s.playWarnings.Add(1)
			s.logger.Warn("playout warning reported by device")
			s.module.ClearPlayoutWarning()
		}
		if s.module.PlayoutError() {
			s.playErrors.Add(1)
			s.logger.Error("playout error reported by device")
			s.module.ClearPlayoutError()
		}
		if _, err := s.module.PlayoutDelay(); err != nil {
			s.logger.Debug("playout delay unavailable", "error", err)
		}
	}
}

