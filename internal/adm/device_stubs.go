package adm

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/xfrag/webrtc/internal/errors"
)

// WindowsDeviceType selects a Windows communication or default device.
type WindowsDeviceType int

const (
	DefaultCommunicationDevice WindowsDeviceType = iota
	DefaultDevice
)

// BufferType selects how the playout buffer size is chosen.
type BufferType int

const (
	FixedBufferSize BufferType = iota
	AdaptiveBufferSize
)

// unsupported answers a call the external device has no equivalent for. The
// warning is rate limited per operation.
func (d *Device) unsupported(op string) error {
	GetMetrics().RecordUnsupportedCall(op)
	limiter, _ := d.stubLogs.LoadOrStore(op, &rate.Sometimes{Interval: time.Second})
	limiter.(*rate.Sometimes).Do(func() {
		d.logger.Warn("operation not supported", "operation", op)
	})
	return errors.New(ErrNotSupported).
		Component("adm").
		Category(errors.CategoryNotSupported).
		Context("operation", op).
		Build()
}

// ActiveAudioLayer always reports the platform default layer.
func (d *Device) ActiveAudioLayer() (AudioLayer, error) {
	return PlatformDefaultAudio, nil
}

// Device enumeration. There is exactly one device per direction.

func (d *Device) PlayoutDevices() int16   { return 1 }
func (d *Device) RecordingDevices() int16 { return 1 }

func (d *Device) PlayoutDeviceName(index uint16) (name, guid string, err error) {
	return "", "", d.unsupported("PlayoutDeviceName")
}

func (d *Device) RecordingDeviceName(index uint16) (name, guid string, err error) {
	return "", "", d.unsupported("RecordingDeviceName")
}

func (d *Device) SetPlayoutDevice(index uint16) error {
	d.logger.Debug("playout device selected", "index", index)
	return nil
}

func (d *Device) SetPlayoutDeviceWindows(device WindowsDeviceType) error {
	return d.unsupported("SetPlayoutDeviceWindows")
}

func (d *Device) SetRecordingDevice(index uint16) error {
	d.logger.Debug("recording device selected", "index", index)
	return nil
}

func (d *Device) SetRecordingDeviceWindows(device WindowsDeviceType) error {
	return d.unsupported("SetRecordingDeviceWindows")
}

// Mixer initialization always succeeds.

func (d *Device) InitSpeaker() error            { return nil }
func (d *Device) SpeakerIsInitialized() bool    { return true }
func (d *Device) InitMicrophone() error         { return nil }
func (d *Device) MicrophoneIsInitialized() bool { return true }

// Speaker volume

func (d *Device) SpeakerVolumeIsAvailable() (bool, error) { return false, nil }

func (d *Device) SetSpeakerVolume(volume uint32) error {
	return d.unsupported("SetSpeakerVolume")
}

func (d *Device) SpeakerVolume() (uint32, error) {
	return 0, d.unsupported("SpeakerVolume")
}

func (d *Device) MaxSpeakerVolume() (uint32, error) {
	return 0, d.unsupported("MaxSpeakerVolume")
}

func (d *Device) MinSpeakerVolume() (uint32, error) {
	return 0, d.unsupported("MinSpeakerVolume")
}

func (d *Device) SpeakerVolumeStepSize() (uint16, error) {
	return 0, d.unsupported("SpeakerVolumeStepSize")
}

// Microphone volume

func (d *Device) MicrophoneVolumeIsAvailable() (bool, error) { return false, nil }

func (d *Device) SetMicrophoneVolume(volume uint32) error {
	return d.unsupported("SetMicrophoneVolume")
}

func (d *Device) MicrophoneVolume() (uint32, error) {
	return 0, d.unsupported("MicrophoneVolume")
}

func (d *Device) MaxMicrophoneVolume() (uint32, error) {
	return 0, d.unsupported("MaxMicrophoneVolume")
}

func (d *Device) MinMicrophoneVolume() (uint32, error) {
	return 0, d.unsupported("MinMicrophoneVolume")
}

func (d *Device) MicrophoneVolumeStepSize() (uint16, error) {
	return 0, d.unsupported("MicrophoneVolumeStepSize")
}

// Mute and boost can only be switched off.

func (d *Device) SpeakerMuteIsAvailable() (bool, error) { return false, nil }

func (d *Device) SetSpeakerMute(enable bool) error {
	if !enable {
		return nil
	}
	return d.unsupported("SetSpeakerMute")
}

func (d *Device) SpeakerMute() (bool, error) { return false, nil }

func (d *Device) MicrophoneMuteIsAvailable() (bool, error) { return false, nil }

func (d *Device) SetMicrophoneMute(enable bool) error {
	if !enable {
		return nil
	}
	return d.unsupported("SetMicrophoneMute")
}

func (d *Device) MicrophoneMute() (bool, error) { return false, nil }

func (d *Device) MicrophoneBoostIsAvailable() (bool, error) { return false, nil }

func (d *Device) SetMicrophoneBoost(enable bool) error {
	if !enable {
		return nil
	}
	return d.unsupported("SetMicrophoneBoost")
}

func (d *Device) MicrophoneBoost() (bool, error) { return false, nil }

func (d *Device) SetWaveOutVolume(left, right uint16) error {
	return d.unsupported("SetWaveOutVolume")
}

func (d *Device) WaveOutVolume() (left, right uint16, err error) {
	return 0, 0, d.unsupported("WaveOutVolume")
}

func (d *Device) SetPlayoutBuffer(bufferType BufferType, sizeMS uint16) error {
	return d.unsupported("SetPlayoutBuffer")
}

func (d *Device) PlayoutBuffer() (BufferType, uint16, error) {
	return FixedBufferSize, 0, d.unsupported("PlayoutBuffer")
}

func (d *Device) CPULoad() (uint16, error) {
	return 0, d.unsupported("CPULoad")
}
