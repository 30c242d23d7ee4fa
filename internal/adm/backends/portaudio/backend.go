// Package portaudio implements an appdevice.Backend on PortAudio blocking
// streams on the system default devices. Each direction runs a goroutine that moves one 10 ms buffer per
// blocking Read or Write.
package portaudio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/time/rate"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/adm/appdevice"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

// Config configures a PortAudio backend.
type Config struct {
	RecordingSampleRate int
	PlayoutSampleRate   int
	RecordingStereo     bool
	PlayoutStereo       bool
	// Reported delays; zero reports the device's low latency.
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

// direction holds the stream and pump goroutine of one direction.
type direction struct {
	stream  stream
	samples []int16
	bytes   []byte
	latency time.Duration
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Backend is a PortAudio appdevice.Backend.
type Backend struct {
	appdevice.StatusFlags

	cfg    Config
	sys    system
	logger *slog.Logger
	port   appdevice.Port

	mu          sync.Mutex
	initialized bool
	rec         *direction
	play        *direction

	readLog  rate.Sometimes
	writeLog rate.Sometimes
}

var _ appdevice.Backend = (*Backend)(nil)

// New returns a backend; PortAudio is initialized by Init.
func New(cfg Config) *Backend {
	return newBackend(cfg, paSystem{})
}

func newBackend(cfg Config, sys system) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ForService("backend")
		if logger == nil {
			logger = slog.Default()
		}
	}
	return &Backend{
		cfg:      cfg,
		sys:      sys,
		logger:   logger.With("component", "portaudio"),
		readLog:  rate.Sometimes{Interval: time.Second},
		writeLog: rate.Sometimes{Interval: time.Second},
	}
}

func (b *Backend) Attach(port appdevice.Port) { b.port = port }

func (b *Backend) OnInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := b.sys.Initialize(); err != nil {
		return paError(err, "initialize")
	}
	b.initialized = true
	return nil
}

func (b *Backend) OnTerminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	closeErr := errors.Join(b.closeDirection(&b.rec), b.closeDirection(&b.play))
	if !b.initialized {
		return closeErr
	}
	b.initialized = false
	if err := b.sys.Terminate(); err != nil {
		return errors.Join(closeErr, paError(err, "terminate"))
	}
	return closeErr
}

func (b *Backend) PlayoutIsAvailable() int32   { return b.available(false) }
func (b *Backend) RecordingIsAvailable() int32 { return b.available(true) }

func (b *Backend) available(input bool) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return -1
	}
	if _, err := defaultDevice(b.sys, input, adm.Mono); err != nil {
		b.logger.Debug("no default device", "input", input, "error", err)
		return 0
	}
	return 1
}

func (b *Backend) PlayoutSampleRate() int64   { return int64(b.cfg.PlayoutSampleRate) }
func (b *Backend) RecordingSampleRate() int64 { return int64(b.cfg.RecordingSampleRate) }

func (b *Backend) PlayoutDelay() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return delayMS(b.cfg.PlayoutDelayMS, b.play)
}

func (b *Backend) RecordingDelay() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return delayMS(b.cfg.RecordingDelayMS, b.rec)
}

func delayMS(configured int, d *direction) int32 {
	switch {
	case configured > 0:
		return int32(configured)
	case d != nil:
		return int32(d.latency / time.Millisecond)
	default:
		return 0
	}
}

func (b *Backend) StereoPlayoutIsAvailable() bool   { return b.cfg.PlayoutStereo }
func (b *Backend) StereoRecordingIsAvailable() bool { return b.cfg.RecordingStereo }

func (b *Backend) OnInitRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.closeDirection(&b.rec); err != nil {
		return err
	}
	d, err := b.open(true)
	if err != nil {
		return err
	}
	b.rec = d
	return nil
}

func (b *Backend) OnInitPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.closeDirection(&b.play); err != nil {
		return err
	}
	d, err := b.open(false)
	if err != nil {
		return err
	}
	b.play = d
	return nil
}

func (b *Backend) OnStartRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start(b.rec, b.readLoop, "start_recording")
}

func (b *Backend) OnStartPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start(b.play, b.writeLoop, "start_playout")
}

func (b *Backend) OnStopRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeDirection(&b.rec)
}

func (b *Backend) OnStopPlayout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeDirection(&b.play)
}

func (b *Backend) open(input bool) (*direction, error) {
	if !b.initialized {
		return nil, errors.Newf("portaudio not initialized").
			Component("backend").
			Category(errors.CategoryState).
			Build()
	}

	sampleRate, stereo := b.cfg.PlayoutSampleRate, b.cfg.PlayoutStereo
	if input {
		sampleRate, stereo = b.cfg.RecordingSampleRate, b.cfg.RecordingStereo
	}
	channels := adm.Mono
	if stereo {
		channels = adm.Stereo
	}

	dev, err := defaultDevice(b.sys, input, channels)
	if err != nil {
		return nil, err
	}

	frames, size := adm.QuantumSize(uint32(sampleRate), channels)
	d := &direction{
		samples: make([]int16, frames*channels),
		bytes:   make([]byte, size),
		latency: dev.DefaultLowOutputLatency,
	}
	if input {
		d.latency = dev.DefaultLowInputLatency
	}

	d.stream, err = b.sys.Open(input, dev, float64(sampleRate), channels, frames, d.samples)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioDevice).
			AudioContext(uint32(sampleRate), channels).
			Context("device_name", dev.Name).
			Context("operation", "open_stream").
			Build()
	}

	b.logger.Info("stream opened",
		"input", input,
		"device", dev.Name,
		"sample_rate", sampleRate,
		"channels", channels,
		"latency", d.latency)
	return d, nil
}

func (b *Backend) start(d *direction, loop func(context.Context, *direction), op string) error {
	if d == nil {
		return errors.Newf("stream not initialized").
			Component("backend").
			Category(errors.CategoryState).
			Context("operation", op).
			Build()
	}
	if err := d.stream.Start(); err != nil {
		return paError(err, op)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go loop(ctx, d)
	return nil
}

// closeDirection waits for the pump goroutine, which returns within one
// buffer, before stopping and closing the stream.
func (b *Backend) closeDirection(dp **direction) error {
	d := *dp
	if d == nil {
		return nil
	}
	*dp = nil

	var stopErr error
	if d.cancel != nil {
		d.cancel()
		d.wg.Wait()
		stopErr = d.stream.Stop()
	}
	if err := errors.Join(stopErr, d.stream.Close()); err != nil {
		return paError(err, "close_stream")
	}
	return nil
}

func (b *Backend) readLoop(ctx context.Context, d *direction) {
	defer d.wg.Done()
	for ctx.Err() == nil {
		if err := d.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				b.SetRecordingWarning()
				b.readLog.Do(func() { b.logger.Warn("input overflowed") })
				continue
			}
			b.SetRecordingError()
			b.logger.Error("reading input stream failed", "error", err)
			return
		}
		for i, s := range d.samples {
			binary.LittleEndian.PutUint16(d.bytes[2*i:], uint16(s))
		}
		if err := b.port.DataIsRecorded(d.bytes); err != nil {
			b.SetRecordingWarning()
			b.readLog.Do(func() { b.logger.Warn("captured audio rejected", "error", err) })
		}
	}
}

func (b *Backend) writeLoop(ctx context.Context, d *direction) {
	defer d.wg.Done()
	for ctx.Err() == nil {
		if err := b.port.GetPlayoutData(d.bytes); err != nil {
			clear(d.bytes)
			b.SetPlayoutWarning()
			b.writeLog.Do(func() { b.logger.Warn("playout audio unavailable", "error", err) })
		}
		for i := range d.samples {
			d.samples[i] = int16(binary.LittleEndian.Uint16(d.bytes[2*i:]))
		}
		if err := d.stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				b.SetPlayoutWarning()
				b.writeLog.Do(func() { b.logger.Warn("output underflowed") })
				continue
			}
			b.SetPlayoutError()
			b.logger.Error("writing output stream failed", "error", err)
			return
		}
	}
}
