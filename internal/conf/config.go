// Package conf holds the runtime configuration: viper defaults, the embedded
// default config file, loading and validation.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// Backend names accepted in device.backend.
const (
	BackendFile      = "file"
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
)

// Underrun policies accepted in adm.underrunpolicy.
const (
	UnderrunPreserve = "preserve"
	UnderrunSilence  = "silence"
)

// TransportLoopback routes captured audio back to playout.
const TransportLoopback = "loopback"

// Settings contains all configuration options.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main struct {
		Name string    `mapstructure:"name" yaml:"name"`
		Log  LogConfig `mapstructure:"log" yaml:"log"`
	} `mapstructure:"main" yaml:"main"`

	ADM       ADMSettings       `mapstructure:"adm" yaml:"adm"`
	Device    DeviceSettings    `mapstructure:"device" yaml:"device"`
	Transport TransportSettings `mapstructure:"transport" yaml:"transport"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
}

// LogConfig controls the structured log output and optional rotated log file.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`           // trace, debug, info, warn, error
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`       // write a rotated log file
	Path       string `mapstructure:"path" yaml:"path"`             // log file path
	MaxSize    int    `mapstructure:"maxsize" yaml:"maxsize"`       // megabytes before rotation
	MaxBackups int    `mapstructure:"maxbackups" yaml:"maxbackups"` // rotated files kept
	MaxAge     int    `mapstructure:"maxage" yaml:"maxage"`         // days rotated files are kept
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ADMSettings tunes the device adapter.
type ADMSettings struct {
	StrictThreadChecks bool   `mapstructure:"strictthreadchecks" yaml:"strictthreadchecks"` // panic on affinity violations
	UnderrunPolicy     string `mapstructure:"underrunpolicy" yaml:"underrunpolicy"`         // preserve or silence
	MaxBufferBytes     int    `mapstructure:"maxbufferbytes" yaml:"maxbufferbytes"`         // upper bound for one quantum buffer
}

// DeviceSettings selects and configures the external device backend.
type DeviceSettings struct {
	Backend   string            `mapstructure:"backend" yaml:"backend"`
	Recording DirectionSettings `mapstructure:"recording" yaml:"recording"`
	Playout   DirectionSettings `mapstructure:"playout" yaml:"playout"`
	File      FileSettings      `mapstructure:"file" yaml:"file"`
}

// DirectionSettings configures one audio direction.
type DirectionSettings struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	SampleRate int  `mapstructure:"samplerate" yaml:"samplerate"`
	Stereo     bool `mapstructure:"stereo" yaml:"stereo"`
	DelayMS    int  `mapstructure:"delayms" yaml:"delayms"` // reported device delay, 0 derives it from the device
}

// FileSettings configures the file backend.
type FileSettings struct {
	Input  string `mapstructure:"input" yaml:"input"`   // wav, flac or mp3 capture source
	Output string `mapstructure:"output" yaml:"output"` // wav playout destination
	Loop   bool   `mapstructure:"loop" yaml:"loop"`     // restart the input at EOF
}

// TransportSettings configures the transport attached to the device buffer.
type TransportSettings struct {
	Mode     string `mapstructure:"mode" yaml:"mode"`
	BufferMS int    `mapstructure:"bufferms" yaml:"bufferms"` // loopback ring capacity
}

// TelemetrySettings configures metrics export and error reporting.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Sentry  struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		DSN     string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"sentry" yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into Settings. When
// configFile is empty the default search paths are used and a default config
// file is created if none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper(configFile string) error {
	setDefaultConfig()
	viper.SetEnvPrefix("ADM")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")
	if err := WriteDefaultConfig(configPath); err != nil {
		return err
	}
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// WriteDefaultConfig writes the embedded default configuration to configPath.
func WriteDefaultConfig(configPath string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. The file is replaced
// atomically, comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
