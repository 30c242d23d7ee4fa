package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "webrtc-adm", settings.Main.Name)
	assert.True(t, settings.ADM.StrictThreadChecks)
	assert.Equal(t, UnderrunPreserve, settings.ADM.UnderrunPolicy)
	assert.Equal(t, BackendFile, settings.Device.Backend)
	assert.Equal(t, 48000, settings.Device.Recording.SampleRate)
	assert.Equal(t, TransportLoopback, settings.Transport.Mode)
	assert.Same(t, settings, GetSettings())
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
device:
  backend: malgo
  recording:
    samplerate: 16000
    stereo: true
  playout:
    samplerate: 16000
adm:
  underrunpolicy: silence
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMalgo, settings.Device.Backend)
	assert.Equal(t, 16000, settings.Device.Recording.SampleRate)
	assert.True(t, settings.Device.Recording.Stereo)
	assert.True(t, settings.Device.Playout.Enabled, "unset keys fall back to defaults")
	assert.Equal(t, UnderrunSilence, settings.ADM.UnderrunPolicy)
	assert.Equal(t, 1<<20, settings.ADM.MaxBufferBytes)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
device:
  backend: alsa
  recording:
    samplerate: 100
`)

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, `device.backend "alsa" is not supported`)
	assert.Contains(t, ve.Errors, "device.recording.samplerate must be between 8000 and 384000")
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{}
		s.Main.Log.Level = "info"
		s.ADM = ADMSettings{UnderrunPolicy: UnderrunPreserve, MaxBufferBytes: 1 << 20}
		s.Device = DeviceSettings{
			Backend:   BackendFile,
			Recording: DirectionSettings{Enabled: true, SampleRate: 48000},
			Playout:   DirectionSettings{Enabled: true, SampleRate: 48000},
			File:      FileSettings{Input: "in.wav", Output: "out.wav"},
		}
		s.Transport = TransportSettings{Mode: TransportLoopback, BufferMS: 200}
		s.Telemetry.Listen = "127.0.0.1:9090"
		return s
	}

	require.NoError(t, ValidateSettings(valid()))

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"log level", func(s *Settings) { s.Main.Log.Level = "loud" }, `main.log.level "loud" is not a known level`},
		{"underrun policy", func(s *Settings) { s.ADM.UnderrunPolicy = "repeat" }, `adm.underrunpolicy must be "preserve" or "silence", got "repeat"`},
		{"buffer bound", func(s *Settings) { s.ADM.MaxBufferBytes = 1024 }, "adm.maxbufferbytes must be at least 15360"},
		{"missing input", func(s *Settings) { s.Device.File.Input = "" }, "device.file.input must be set when recording is enabled"},
		{"no direction", func(s *Settings) {
			s.Device.Recording.Enabled = false
			s.Device.Playout.Enabled = false
		}, "at least one of device.recording and device.playout must be enabled"},
		{"delay range", func(s *Settings) { s.Device.Playout.DelayMS = 70000 }, "device.playout.delayms must be between 0 and 65535"},
		{"loopback rates", func(s *Settings) { s.Device.Playout.SampleRate = 44100 }, "loopback transport requires equal recording and playout sample rates"},
		{"listen", func(s *Settings) {
			s.Telemetry.Enabled = true
			s.Telemetry.Listen = "nope"
		}, `telemetry.listen "nope" is not a host:port address`},
		{"sentry dsn", func(s *Settings) { s.Telemetry.Sentry.Enabled = true }, "telemetry.sentry.dsn must be set when sentry is enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)

			err := ValidateSettings(s)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Errors, tt.want)
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))
	settings, err := Load(path)
	require.NoError(t, err)

	settings.Device.Backend = BackendPortAudio
	settings.Transport.BufferMS = 500
	require.NoError(t, SaveYAMLConfig(path, settings))

	viper.Reset()
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendPortAudio, reloaded.Device.Backend)
	assert.Equal(t, 500, reloaded.Transport.BufferMS)
}
