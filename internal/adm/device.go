package adm

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
)

type sinkHolder struct{ sink Sink }

// Device implements the generic device module contract on top of an
// ExternalDevice. Control-path operations run on the goroutine bound by the
// ThreadChecker; the data path runs on the device's own goroutine.
type Device struct {
	ext     ExternalDevice
	checker *ThreadChecker
	logger  *slog.Logger
	id      string
	relaxed bool
	policy  UnderrunPolicy

	agcMu sync.Mutex
	agc   bool

	recChannels  atomic.Int32
	playChannels atomic.Int32

	sink atomic.Pointer[sinkHolder]

	recBuf  *SampleBuffer
	playBuf *SampleBuffer

	stubLogs     sync.Map // operation -> *rate.Sometimes
	noSinkLog    rate.Sometimes
	underrunLog  rate.Sometimes
	recordingLog rate.Sometimes
	closeOnce    sync.Once
}

// NewDevice wraps ext. The thread checker starts detached so the first
// control-path caller becomes the owner.
func NewDevice(ext ExternalDevice, opts Options) *Device {
	opts = opts.withDefaults()

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("adm")
		if logger == nil {
			logger = slog.Default()
		}
	}

	d := &Device{
		ext:          ext,
		logger:       logger.With("component", "device", "module_id", id),
		id:           id,
		relaxed:      opts.RelaxedChecks,
		policy:       opts.UnderrunPolicy,
		recBuf:       NewSampleBuffer(DirectionRecording, opts.MaxBufferBytes, opts.Allocator),
		playBuf:      NewSampleBuffer(DirectionPlayout, opts.MaxBufferBytes, opts.Allocator),
		noSinkLog:    rate.Sometimes{Interval: time.Second},
		underrunLog:  rate.Sometimes{Interval: time.Second},
		recordingLog: rate.Sometimes{Interval: time.Second},
	}
	d.recChannels.Store(Mono)
	d.playChannels.Store(Mono)
	d.checker = NewThreadChecker(d.onThreadViolation)
	d.checker.Detach()
	return d
}

// ID returns the identifier used in logs and metrics.
func (d *Device) ID() string { return d.id }

// ThreadChecker exposes the affinity guard so owners can detach it before
// handing the device to another goroutine.
func (d *Device) ThreadChecker() *ThreadChecker { return d.checker }

func (d *Device) onThreadViolation(v *ThreadViolationError) {
	GetMetrics().RecordThreadViolation(v.Op)
	d.logger.Error("thread affinity violation",
		"operation", v.Op,
		"bound_goroutine", v.Bound,
		"caller_goroutine", v.Caller)
	if !d.relaxed {
		panic(v)
	}
}

func (d *Device) violateInvariant(v *InvariantError) {
	GetMetrics().RecordDeliveryFailure(d.id, DirectionPlayout, "invariant")
	d.logger.Error("data path invariant violated",
		"operation", v.Op,
		"expected_frames", v.Expected,
		"frames", v.Got)
	if !d.relaxed {
		panic(v)
	}
}

// status translates a device status code. Non-zero codes are kept verbatim.
func (d *Device) status(op string, code int32) error {
	if code == 0 {
		return nil
	}
	GetMetrics().RecordDelegationError(d.id, op)
	d.logger.Warn("external device call failed", "operation", op, "status", code)
	return &StatusError{Op: op, Code: code}
}

// available decodes an availability query: negative is a failure, 1 means
// available and anything else not available.
func (d *Device) available(op string, raw int32) (bool, error) {
	if raw < 0 {
		return false, d.status(op, raw)
	}
	return raw == 1, nil
}

// delay masks a non-negative raw delay to 16 bits.
func (d *Device) delay(op string, direction Direction, raw int32) (uint16, error) {
	if raw < 0 {
		return 0, d.status(op, raw)
	}
	ms := uint16(raw & 0xFFFF)
	GetMetrics().RecordDelay(d.id, direction, ms)
	return ms, nil
}

// Init initializes the external device.
func (d *Device) Init() error {
	d.checker.Check("Init")
	d.logger.Debug("init")
	return d.status("Init", d.ext.Init())
}

// Terminate shuts the external device down.
func (d *Device) Terminate() error {
	d.checker.Check("Terminate")
	d.logger.Debug("terminate")
	return d.status("Terminate", d.ext.Terminate())
}

func (d *Device) Initialized() bool {
	d.checker.Check("Initialized")
	return d.ext.Initialized()
}

func (d *Device) PlayoutIsAvailable() (bool, error) {
	d.checker.Check("PlayoutIsAvailable")
	return d.available("PlayoutIsAvailable", d.ext.PlayoutIsAvailable())
}

func (d *Device) InitPlayout() error {
	d.checker.Check("InitPlayout")
	d.logger.Debug("init playout")
	return d.status("InitPlayout", d.ext.InitPlayout())
}

func (d *Device) PlayoutIsInitialized() bool {
	d.checker.Check("PlayoutIsInitialized")
	return d.ext.PlayoutIsInitialized()
}

func (d *Device) RecordingIsAvailable() (bool, error) {
	d.checker.Check("RecordingIsAvailable")
	return d.available("RecordingIsAvailable", d.ext.RecordingIsAvailable())
}

func (d *Device) InitRecording() error {
	d.checker.Check("InitRecording")
	d.logger.Debug("init recording")
	return d.status("InitRecording", d.ext.InitRecording())
}

func (d *Device) RecordingIsInitialized() bool {
	d.checker.Check("RecordingIsInitialized")
	return d.ext.RecordingIsInitialized()
}

func (d *Device) StartPlayout() error {
	d.checker.Check("StartPlayout")
	d.logger.Info("starting playout")
	return d.status("StartPlayout", d.ext.StartPlayout())
}

func (d *Device) StopPlayout() error {
	d.checker.Check("StopPlayout")
	d.logger.Info("stopping playout")
	return d.status("StopPlayout", d.ext.StopPlayout())
}

func (d *Device) Playing() bool {
	d.checker.Check("Playing")
	return d.ext.Playing()
}

func (d *Device) StartRecording() error {
	d.checker.Check("StartRecording")
	d.logger.Info("starting recording")
	return d.status("StartRecording", d.ext.StartRecording())
}

func (d *Device) StopRecording() error {
	d.checker.Check("StopRecording")
	d.logger.Info("stopping recording")
	return d.status("StopRecording", d.ext.StopRecording())
}

func (d *Device) Recording() bool {
	d.checker.Check("Recording")
	return d.ext.Recording()
}

// SetAGC stores the automatic gain control flag. It may be called from any
// goroutine.
func (d *Device) SetAGC(enable bool) error {
	d.agcMu.Lock()
	defer d.agcMu.Unlock()
	d.agc = enable
	return nil
}

// AGC reports the automatic gain control flag.
func (d *Device) AGC() bool {
	d.agcMu.Lock()
	defer d.agcMu.Unlock()
	return d.agc
}

func (d *Device) StereoPlayoutIsAvailable() bool {
	d.checker.Check("StereoPlayoutIsAvailable")
	return d.ext.StereoPlayoutIsAvailable()
}

// SetStereoPlayout selects the playout channel count used by the next
// buffer configuration. It is not affinity checked.
func (d *Device) SetStereoPlayout(enable bool) error {
	d.playChannels.Store(channelsFor(enable))
	d.logger.Debug("stereo playout set", "enabled", enable)
	return nil
}

func (d *Device) StereoPlayout() bool {
	d.checker.Check("StereoPlayout")
	return d.playChannels.Load() == Stereo
}

func (d *Device) StereoRecordingIsAvailable() bool {
	d.checker.Check("StereoRecordingIsAvailable")
	return d.ext.StereoRecordingIsAvailable()
}

// SetStereoRecording selects the recording channel count used by the next
// buffer configuration.
func (d *Device) SetStereoRecording(enable bool) error {
	d.checker.Check("SetStereoRecording")
	d.recChannels.Store(channelsFor(enable))
	d.logger.Debug("stereo recording set", "enabled", enable)
	return nil
}

func (d *Device) StereoRecording() bool {
	d.checker.Check("StereoRecording")
	return d.recChannels.Load() == Stereo
}

func channelsFor(stereo bool) int32 {
	if stereo {
		return Stereo
	}
	return Mono
}

// PlayoutDelay returns the playout delay in milliseconds.
func (d *Device) PlayoutDelay() (uint16, error) {
	return d.delay("PlayoutDelay", DirectionPlayout, d.ext.PlayoutDelay())
}

// RecordingDelay returns the recording delay in milliseconds.
func (d *Device) RecordingDelay() (uint16, error) {
	return d.delay("RecordingDelay", DirectionRecording, d.ext.RecordingDelay())
}

func (d *Device) PlayoutWarning() bool   { return d.ext.PlayoutWarning() }
func (d *Device) PlayoutError() bool     { return d.ext.PlayoutError() }
func (d *Device) RecordingWarning() bool { return d.ext.RecordingWarning() }
func (d *Device) RecordingError() bool   { return d.ext.RecordingError() }
func (d *Device) ClearPlayoutWarning()   { d.ext.ClearPlayoutWarning() }
func (d *Device) ClearPlayoutError()     { d.ext.ClearPlayoutError() }
func (d *Device) ClearRecordingWarning() { d.ext.ClearRecordingWarning() }
func (d *Device) ClearRecordingError()   { d.ext.ClearRecordingError() }

// SetRecordingSampleRate forwards the rate to the sink and resizes the
// recording buffer for the current channel count.
func (d *Device) SetRecordingSampleRate(hz uint32) error {
	d.checker.Check("SetRecordingSampleRate")
	if sink := d.currentSink(); sink != nil {
		if err := sink.SetRecordingSampleRate(hz); err != nil {
			d.logger.Warn("sink rejected recording sample rate", "sample_rate", hz, "error", err)
		}
	} else {
		d.logger.Warn("recording sample rate set before an audio buffer was attached", "sample_rate", hz)
	}
	return d.configure(DirectionRecording, hz, int(d.recChannels.Load()))
}

// SetPlayoutSampleRate forwards the rate to the sink and resizes the playout
// buffer for the current channel count.
func (d *Device) SetPlayoutSampleRate(hz uint32) error {
	d.checker.Check("SetPlayoutSampleRate")
	if sink := d.currentSink(); sink != nil {
		if err := sink.SetPlayoutSampleRate(hz); err != nil {
			d.logger.Warn("sink rejected playout sample rate", "sample_rate", hz, "error", err)
		}
	} else {
		d.logger.Warn("playout sample rate set before an audio buffer was attached", "sample_rate", hz)
	}
	return d.configure(DirectionPlayout, hz, int(d.playChannels.Load()))
}

func (d *Device) buffer(direction Direction) *SampleBuffer {
	if direction == DirectionPlayout {
		return d.playBuf
	}
	return d.recBuf
}

// configure resizes one buffer and republishes the region after a
// reallocation. The region is handed out after the buffer lock is released.
func (d *Device) configure(direction Direction, hz uint32, channels int) error {
	res, err := d.buffer(direction).Configure(hz, channels)
	if err != nil {
		GetMetrics().RecordBufferReallocation(d.id, direction, res.Region, err)
		d.logger.Error("sample buffer configuration failed, keeping previous buffer",
			"direction", direction.String(),
			"sample_rate", hz,
			"channels", channels,
			"previous_size", res.Size,
			"error", err)
		return err
	}

	d.logger.Info("sample buffer configured",
		"direction", direction.String(),
		"sample_rate", hz,
		"channels", channels,
		"frames_per_buffer", res.Frames,
		"size", res.Size,
		"reallocated", res.Reallocated)

	if !res.Reallocated {
		return nil
	}
	GetMetrics().RecordBufferReallocation(d.id, direction, res.Region, nil)
	if direction == DirectionPlayout {
		d.ext.SetPlayoutBuffer(res.Region)
	} else {
		d.ext.SetRecordingBuffer(res.Region)
	}
	return nil
}

// RecordingRegion returns the currently published recording region.
func (d *Device) RecordingRegion() Region { return d.recBuf.Region() }

// PlayoutRegion returns the currently published playout region.
func (d *Device) PlayoutRegion() Region { return d.playBuf.Region() }

// AttachAudioBuffer registers the sink used by the data path and resets it
// to rate 0 and mono in both directions. The actual rates are pushed later
// by the external device.
func (d *Device) AttachAudioBuffer(sink Sink) error {
	if sink == nil {
		return ErrNoSink
	}
	err := errors.Join(
		sink.SetRecordingSampleRate(0),
		sink.SetPlayoutSampleRate(0),
		sink.SetRecordingChannels(Mono),
		sink.SetPlayoutChannels(Mono),
	)
	if err != nil {
		return err
	}
	d.sink.Store(&sinkHolder{sink: sink})
	d.logger.Debug("audio buffer attached")
	return nil
}

func (d *Device) currentSink() Sink {
	if h := d.sink.Load(); h != nil {
		return h.sink
	}
	return nil
}

// Close detaches the affinity guard, terminates the external device and
// releases both buffers. Only the first call has an effect.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.checker.Detach()
		err = d.Terminate()
		d.recBuf.Release()
		d.playBuf.Release()
		d.logger.Debug("device closed")
	})
	return err
}
