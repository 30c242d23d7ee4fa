package adm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})

	ops := map[string]func() error{
		"PlayoutDeviceName":         func() error { _, _, err := d.PlayoutDeviceName(0); return err },
		"RecordingDeviceName":       func() error { _, _, err := d.RecordingDeviceName(0); return err },
		"SetPlayoutDeviceWindows":   func() error { return d.SetPlayoutDeviceWindows(DefaultDevice) },
		"SetRecordingDeviceWindows": func() error { return d.SetRecordingDeviceWindows(DefaultCommunicationDevice) },
		"SetSpeakerVolume":          func() error { return d.SetSpeakerVolume(10) },
		"SpeakerVolume":             func() error { _, err := d.SpeakerVolume(); return err },
		"MaxSpeakerVolume":          func() error { _, err := d.MaxSpeakerVolume(); return err },
		"MinSpeakerVolume":          func() error { _, err := d.MinSpeakerVolume(); return err },
		"SpeakerVolumeStepSize":     func() error { _, err := d.SpeakerVolumeStepSize(); return err },
		"SetMicrophoneVolume":       func() error { return d.SetMicrophoneVolume(10) },
		"MicrophoneVolume":          func() error { _, err := d.MicrophoneVolume(); return err },
		"MaxMicrophoneVolume":       func() error { _, err := d.MaxMicrophoneVolume(); return err },
		"MinMicrophoneVolume":       func() error { _, err := d.MinMicrophoneVolume(); return err },
		"MicrophoneVolumeStepSize":  func() error { _, err := d.MicrophoneVolumeStepSize(); return err },
		"SetSpeakerMute":            func() error { return d.SetSpeakerMute(true) },
		"SetMicrophoneMute":         func() error { return d.SetMicrophoneMute(true) },
		"SetMicrophoneBoost":        func() error { return d.SetMicrophoneBoost(true) },
		"SetWaveOutVolume":          func() error { return d.SetWaveOutVolume(1, 1) },
		"WaveOutVolume":             func() error { _, _, err := d.WaveOutVolume(); return err },
		"SetPlayoutBuffer":          func() error { return d.SetPlayoutBuffer(AdaptiveBufferSize, 20) },
		"PlayoutBuffer":             func() error { _, _, err := d.PlayoutBuffer(); return err },
		"CPULoad":                   func() error { _, err := d.CPULoad(); return err },
	}

	for name, call := range ops {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.ErrorIs(t, err, ErrNotSupported)
			assert.Equal(t, int32(-1), Status(err))
			assert.Contains(t, err.Error(), "not supported")
		})
	}

	assert.Empty(t, ext.Calls(), "stubs never reach the external device")
}

func TestFixedAnswers(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})

	layer, err := d.ActiveAudioLayer()
	require.NoError(t, err)
	assert.Equal(t, PlatformDefaultAudio, layer)

	assert.Equal(t, int16(1), d.PlayoutDevices())
	assert.Equal(t, int16(1), d.RecordingDevices())
	assert.NoError(t, d.SetPlayoutDevice(0))
	assert.NoError(t, d.SetRecordingDevice(0))

	assert.NoError(t, d.InitSpeaker())
	assert.NoError(t, d.InitMicrophone())
	assert.True(t, d.SpeakerIsInitialized())
	assert.True(t, d.MicrophoneIsInitialized())

	for _, query := range []func() (bool, error){
		d.SpeakerVolumeIsAvailable,
		d.MicrophoneVolumeIsAvailable,
		d.SpeakerMuteIsAvailable,
		d.MicrophoneMuteIsAvailable,
		d.MicrophoneBoostIsAvailable,
		d.SpeakerMute,
		d.MicrophoneMute,
		d.MicrophoneBoost,
	} {
		v, err := query()
		assert.NoError(t, err)
		assert.False(t, v)
	}

	assert.NoError(t, d.SetSpeakerMute(false))
	assert.NoError(t, d.SetMicrophoneMute(false))
	assert.NoError(t, d.SetMicrophoneBoost(false))

	assert.Empty(t, ext.Calls())
}
