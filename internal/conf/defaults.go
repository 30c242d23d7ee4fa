// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "webrtc-adm")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "logs/adm.log")
	viper.SetDefault("main.log.maxsize", 10)
	viper.SetDefault("main.log.maxbackups", 5)
	viper.SetDefault("main.log.maxage", 14)
	viper.SetDefault("main.log.compress", false)

	viper.SetDefault("adm.strictthreadchecks", true)
	viper.SetDefault("adm.underrunpolicy", UnderrunPreserve)
	viper.SetDefault("adm.maxbufferbytes", 1<<20)

	viper.SetDefault("device.backend", BackendFile)
	viper.SetDefault("device.recording.enabled", true)
	viper.SetDefault("device.recording.samplerate", 48000)
	viper.SetDefault("device.recording.stereo", false)
	viper.SetDefault("device.recording.delayms", 0)
	viper.SetDefault("device.playout.enabled", true)
	viper.SetDefault("device.playout.samplerate", 48000)
	viper.SetDefault("device.playout.stereo", false)
	viper.SetDefault("device.playout.delayms", 0)
	viper.SetDefault("device.file.input", "input.wav")
	viper.SetDefault("device.file.output", "output.wav")
	viper.SetDefault("device.file.loop", false)

	viper.SetDefault("transport.mode", TransportLoopback)
	viper.SetDefault("transport.bufferms", 200)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "127.0.0.1:9090")
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
}
