// Package file implements an appdevice.Backend that captures from an audio
// file and plays out into a WAV file, paced in real time by a ticker.
package file

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/adm/appdevice"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

// DefaultPlayoutSampleRate is used when Config.PlayoutSampleRate is zero.
const DefaultPlayoutSampleRate = 48000

// Config configures a file backend.
type Config struct {
	Input  string // capture source; recording is unavailable when empty
	Output string // playout WAV; playout audio is discarded when empty
	Loop   bool

	// RecordingSampleRate, when set, must match the input file.
	RecordingSampleRate int
	PlayoutSampleRate   int
	RecordingStereo     bool
	PlayoutStereo       bool
	RecordingDelayMS    int
	PlayoutDelayMS      int

	// Interval paces both directions, one quantum per tick. Defaults to 10 ms.
	Interval time.Duration
	Logger   *slog.Logger
}

// ConfigFromSettings maps the device section of the settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	d := settings.Device
	cfg := Config{
		Loop:                d.File.Loop,
		RecordingSampleRate: d.Recording.SampleRate,
		PlayoutSampleRate:   d.Playout.SampleRate,
		RecordingStereo:     d.Recording.Stereo,
		PlayoutStereo:       d.Playout.Stereo,
		RecordingDelayMS:    d.Recording.DelayMS,
		PlayoutDelayMS:      d.Playout.DelayMS,
	}
	if d.Recording.Enabled {
		cfg.Input = d.File.Input
	}
	if d.Playout.Enabled {
		cfg.Output = d.File.Output
	}
	return cfg
}

// Backend is a file backed appdevice.Backend.
type Backend struct {
	appdevice.StatusFlags

	cfg    Config
	logger *slog.Logger
	source *PCM
	port   appdevice.Port

	recCancel  context.CancelFunc
	recWG      sync.WaitGroup
	playCancel context.CancelFunc
	playWG     sync.WaitGroup

	outFile *os.File
	encoder *wav.Encoder

	recorded atomic.Int64
	played   atomic.Int64
}

var _ appdevice.Backend = (*Backend)(nil)

// New decodes the input file, if any, and returns a backend ready to attach.
func New(cfg Config) (*Backend, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = adm.CallbackBufferSizeMS * time.Millisecond
	}
	if cfg.PlayoutSampleRate == 0 {
		cfg.PlayoutSampleRate = DefaultPlayoutSampleRate
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.ForService("backend")
		if logger == nil {
			logger = slog.Default()
		}
	}

	b := &Backend{
		cfg:    cfg,
		logger: logger.With("component", "file"),
	}

	if cfg.Input != "" {
		pcm, err := Decode(cfg.Input)
		if err != nil {
			return nil, err
		}
		if cfg.RecordingSampleRate != 0 && cfg.RecordingSampleRate != pcm.SampleRate {
			return nil, errors.Newf("input file rate %d Hz does not match configured recording rate %d Hz",
				pcm.SampleRate, cfg.RecordingSampleRate).
				Component("backend").
				Category(errors.CategoryConfiguration).
				FileContext(cfg.Input, 0).
				Build()
		}
		channels := adm.Mono
		if cfg.RecordingStereo {
			channels = adm.Stereo
		}
		b.source = pcm.WithChannels(channels)
		b.logger.Info("input decoded",
			"path", cfg.Input,
			"sample_rate", pcm.SampleRate,
			"channels", pcm.Channels,
			"frames", pcm.Frames())
	}

	return b, nil
}

// Attach implements appdevice.Backend.
func (b *Backend) Attach(port appdevice.Port) { b.port = port }

func (b *Backend) OnInit() error { return nil }

// OnTerminate stops both directions and finalizes the output file.
func (b *Backend) OnTerminate() error {
	b.stopRecording()
	return b.OnStopPlayout()
}

func (b *Backend) PlayoutIsAvailable() int32 { return 1 }

func (b *Backend) RecordingIsAvailable() int32 {
	if b.source == nil {
		return 0
	}
	return 1
}

func (b *Backend) PlayoutSampleRate() int64 { return int64(b.cfg.PlayoutSampleRate) }

func (b *Backend) RecordingSampleRate() int64 {
	if b.source == nil {
		return 0
	}
	return int64(b.source.SampleRate)
}

func (b *Backend) PlayoutDelay() int32   { return int32(b.cfg.PlayoutDelayMS) }
func (b *Backend) RecordingDelay() int32 { return int32(b.cfg.RecordingDelayMS) }

func (b *Backend) StereoPlayoutIsAvailable() bool   { return b.cfg.PlayoutStereo }
func (b *Backend) StereoRecordingIsAvailable() bool { return b.cfg.RecordingStereo }

// Stats returns the number of quanta moved in each direction.
func (b *Backend) Stats() (recorded, played int64) {
	return b.recorded.Load(), b.played.Load()
}

func (b *Backend) OnInitRecording() error {
	if b.source == nil {
		return errors.Newf("no input file configured").
			Component("backend").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func (b *Backend) OnStartRecording() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.recCancel = cancel
	b.recWG.Add(1)
	go b.captureLoop(ctx)
	return nil
}

func (b *Backend) OnStopRecording() error {
	b.stopRecording()
	return nil
}

func (b *Backend) stopRecording() {
	if b.recCancel == nil {
		return
	}
	b.recCancel()
	b.recWG.Wait()
	b.recCancel = nil
}

// captureLoop feeds one quantum of the input per tick. Past the end of a
// non-looping input it feeds silence and raises the recording warning.
func (b *Backend) captureLoop(ctx context.Context) {
	defer b.recWG.Done()

	_, size := adm.QuantumSize(uint32(b.source.SampleRate), b.source.Channels)
	data := b.source.Bytes()
	chunk := make([]byte, size)
	pos := 0
	exhausted := false

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n := copy(chunk, data[pos:])
		pos += n
		for n < size && b.cfg.Loop && len(data) > 0 {
			pos = copy(chunk[n:], data)
			n += pos
		}
		if n < size {
			clear(chunk[n:])
			if !exhausted {
				exhausted = true
				b.SetRecordingWarning()
				b.logger.Info("input exhausted, recording silence", "path", b.cfg.Input)
			}
		}

		if err := b.port.DataIsRecorded(chunk); err != nil {
			b.SetRecordingError()
			b.logger.Warn("recorded data rejected", "error", err)
			continue
		}
		b.recorded.Add(1)
	}
}

// OnInitPlayout opens the output file, truncating it.
func (b *Backend) OnInitPlayout() error {
	if b.cfg.Output == "" || b.encoder != nil {
		return nil
	}
	f, err := os.Create(b.cfg.Output)
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryFileIO).
			FileContext(b.cfg.Output, 0).
			Build()
	}
	b.outFile = f
	b.encoder = wav.NewEncoder(f, b.cfg.PlayoutSampleRate, adm.BitsPerSample, b.playoutChannels(), 1)
	return nil
}

func (b *Backend) OnStartPlayout() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.playCancel = cancel
	b.playWG.Add(1)
	go b.playoutLoop(ctx)
	return nil
}

// OnStopPlayout stops the playout goroutine and finalizes the WAV header.
func (b *Backend) OnStopPlayout() error {
	if b.playCancel != nil {
		b.playCancel()
		b.playWG.Wait()
		b.playCancel = nil
	}
	return b.closeOutput()
}

func (b *Backend) closeOutput() error {
	if b.encoder == nil {
		return nil
	}
	encErr := b.encoder.Close()
	fileErr := b.outFile.Close()
	b.encoder, b.outFile = nil, nil
	if err := errors.Join(encErr, fileErr); err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryFileIO).
			FileContext(b.cfg.Output, 0).
			Build()
	}
	return nil
}

func (b *Backend) playoutChannels() int {
	if b.cfg.PlayoutStereo {
		return adm.Stereo
	}
	return adm.Mono
}

func (b *Backend) playoutLoop(ctx context.Context) {
	defer b.playWG.Done()

	channels := b.playoutChannels()
	_, size := adm.QuantumSize(uint32(b.cfg.PlayoutSampleRate), channels)
	chunk := make([]byte, size)
	buf := &audio.IntBuffer{
		Data:           make([]int, size/adm.BytesPerSample),
		Format:         &audio.Format{SampleRate: b.cfg.PlayoutSampleRate, NumChannels: channels},
		SourceBitDepth: adm.BitsPerSample,
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := b.port.GetPlayoutData(chunk); err != nil {
			b.SetPlayoutError()
			b.logger.Warn("playout data unavailable", "error", err)
			continue
		}
		b.played.Add(1)

		if b.encoder == nil {
			continue
		}
		for i := range buf.Data {
			buf.Data[i] = int(int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8))
		}
		if err := b.encoder.Write(buf); err != nil {
			b.SetPlayoutWarning()
			b.logger.Warn("writing playout audio failed", "path", b.cfg.Output, "error", err)
		}
	}
}
