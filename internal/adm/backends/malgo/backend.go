// Package malgo implements an appdevice.Backend on the system default sound
// card through miniaudio. Recording and playout use separate devices so each
// direction can be initialized, started and stopped on its own.
package malgo

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"golang.org/x/time/rate"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/adm/appdevice"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

// Period layout requested from miniaudio.
const (
	PeriodMS = adm.CallbackBufferSizeMS
	Periods  = 3
)

// Config configures a malgo backend.
type Config struct {
	RecordingSampleRate int
	PlayoutSampleRate   int
	RecordingStereo     bool
	PlayoutStereo       bool
	// Reported delays; zero reports the buffered periods.
	RecordingDelayMS int
	PlayoutDelayMS   int
	Logger           *slog.Logger
}

// ConfigFromSettings maps the device section of the settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	d := settings.Device
	return Config{
		RecordingSampleRate: d.Recording.SampleRate,
		PlayoutSampleRate:   d.Playout.SampleRate,
		RecordingStereo:     d.Recording.Stereo,
		PlayoutStereo:       d.Playout.Stereo,
		RecordingDelayMS:    d.Recording.DelayMS,
		PlayoutDelayMS:      d.Playout.DelayMS,
	}
}

// Backend drives one capture and one playback device.
type Backend struct {
	appdevice.StatusFlags

	cfg    Config
	logger *slog.Logger
	port   appdevice.Port

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	capture  *malgo.Device
	playback *malgo.Device

	recording atomic.Bool
	playing   atomic.Bool

	captureLog  rate.Sometimes
	playbackLog rate.Sometimes
}

var _ appdevice.Backend = (*Backend)(nil)

// New returns an uninitialized backend. The sound card is opened by Init.
func New(cfg Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ForService("backend")
		if logger == nil {
			logger = slog.Default()
		}
	}
	return &Backend{
		cfg:         cfg,
		logger:      logger.With("component", "malgo"),
		captureLog:  rate.Sometimes{Interval: time.Second},
		playbackLog: rate.Sometimes{Interval: time.Second},
	}
}

func (b *Backend) Attach(port appdevice.Port) { b.port = port }

func (b *Backend) OnInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil
	}
	ctx, err := initContext()
	if err != nil {
		return err
	}
	b.ctx = ctx
	return nil
}

func (b *Backend) OnTerminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeDevice(&b.capture, &b.recording)
	b.closeDevice(&b.playback, &b.playing)
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioDevice).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

func (b *Backend) PlayoutIsAvailable() int32   { return b.available(malgo.Playback) }
func (b *Backend) RecordingIsAvailable() int32 { return b.available(malgo.Capture) }

func (b *Backend) available(kind malgo.DeviceType) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return -1
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		b.logger.Warn("device enumeration failed", "error", err)
		return -1
	}
	names := make([]string, len(infos))
	for i := range infos {
		names[i] = infos[i].Name()
	}
	if usableDevices(names) == 0 {
		return 0
	}
	return 1
}

func (b *Backend) PlayoutSampleRate() int64   { return int64(b.cfg.PlayoutSampleRate) }
func (b *Backend) RecordingSampleRate() int64 { return int64(b.cfg.RecordingSampleRate) }

func (b *Backend) PlayoutDelay() int32   { return delayMS(b.cfg.PlayoutDelayMS) }
func (b *Backend) RecordingDelay() int32 { return delayMS(b.cfg.RecordingDelayMS) }

func delayMS(configured int) int32 {
	if configured > 0 {
		return int32(configured)
	}
	return PeriodMS * Periods
}

func (b *Backend) StereoPlayoutIsAvailable() bool   { return b.cfg.PlayoutStereo }
func (b *Backend) StereoRecordingIsAvailable() bool { return b.cfg.RecordingStereo }

func (b *Backend) OnInitRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeDevice(&b.capture, &b.recording)
	dev, err := b.openDevice(malgo.Capture)
	if err != nil {
		return err
	}
	b.capture = dev
	return nil
}

func (b *Backend) OnInitPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeDevice(&b.playback, &b.playing)
	dev, err := b.openDevice(malgo.Playback)
	if err != nil {
		return err
	}
	b.playback = dev
	return nil
}

func (b *Backend) OnStartRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startDevice(b.capture, &b.recording, "start_capture")
}

func (b *Backend) OnStartPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startDevice(b.playback, &b.playing, "start_playback")
}

// OnStopRecording stops and releases the capture device; the next start
// needs a new OnInitRecording.
func (b *Backend) OnStopRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeDevice(&b.capture, &b.recording)
	return nil
}

func (b *Backend) OnStopPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeDevice(&b.playback, &b.playing)
	return nil
}

// openDevice opens the default device of kind in S16 at the configured rate.
func (b *Backend) openDevice(kind malgo.DeviceType) (*malgo.Device, error) {
	if b.ctx == nil {
		return nil, errors.Newf("malgo context not initialized").
			Component("backend").
			Category(errors.CategoryState).
			Build()
	}

	sampleRate, stereo := b.cfg.PlayoutSampleRate, b.cfg.PlayoutStereo
	if kind == malgo.Capture {
		sampleRate, stereo = b.cfg.RecordingSampleRate, b.cfg.RecordingStereo
	}
	channels := adm.Mono
	if stereo {
		channels = adm.Stereo
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = PeriodMS
	deviceConfig.Periods = Periods
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{}
	if kind == malgo.Capture {
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = uint32(channels)
		callbacks.Data = b.onCapture
		callbacks.Stop = b.onCaptureStopped
	} else {
		deviceConfig.Playback.Format = malgo.FormatS16
		deviceConfig.Playback.Channels = uint32(channels)
		callbacks.Data = b.onPlayback
		callbacks.Stop = b.onPlaybackStopped
	}

	dev, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioDevice).
			AudioContext(uint32(sampleRate), channels).
			Context("kind", kindName(kind)).
			Context("operation", "init_device").
			Build()
	}

	b.logger.Info("device opened",
		"kind", kindName(kind),
		"sample_rate", dev.SampleRate(),
		"channels", channels)
	return dev, nil
}

func (b *Backend) startDevice(dev *malgo.Device, running *atomic.Bool, op string) error {
	if dev == nil {
		return errors.Newf("device not initialized").
			Component("backend").
			Category(errors.CategoryState).
			Context("operation", op).
			Build()
	}
	running.Store(true)
	if err := dev.Start(); err != nil {
		running.Store(false)
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioDevice).
			Context("operation", op).
			Build()
	}
	return nil
}

func (b *Backend) closeDevice(dev **malgo.Device, running *atomic.Bool) {
	running.Store(false)
	if *dev == nil {
		return
	}
	if err := (*dev).Stop(); err != nil {
		b.logger.Warn("stopping device failed", "error", err)
	}
	(*dev).Uninit()
	*dev = nil
}

// onCapture runs on the miniaudio thread.
func (b *Backend) onCapture(_, input []byte, _ uint32) {
	if err := b.port.DataIsRecorded(input); err != nil {
		b.SetRecordingWarning()
		b.captureLog.Do(func() {
			b.logger.Warn("captured audio rejected", "error", err, "bytes", len(input))
		})
	}
}

// onPlayback runs on the miniaudio thread. Output it cannot fill is silenced.
func (b *Backend) onPlayback(output, _ []byte, _ uint32) {
	if err := b.port.GetPlayoutData(output); err != nil {
		clear(output)
		b.SetPlayoutWarning()
		b.playbackLog.Do(func() {
			b.logger.Warn("playout audio unavailable", "error", err, "bytes", len(output))
		})
	}
}

func (b *Backend) onCaptureStopped() {
	if b.recording.Load() {
		b.SetRecordingError()
		b.logger.Error("capture device stopped unexpectedly")
	}
}

func (b *Backend) onPlaybackStopped() {
	if b.playing.Load() {
		b.SetPlayoutError()
		b.logger.Error("playback device stopped unexpectedly")
	}
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}
