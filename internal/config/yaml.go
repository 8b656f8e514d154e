// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/analysis"
	applog "ppgbpm/internal/log"
	"ppgbpm/internal/sampler"
	"ppgbpm/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug       bool              `yaml:"debug"`             // Enable debug mode (forces the debug log level).
	LogLevel    string            `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command     string            `yaml:"command,omitempty"` // Set by the CLI when a one-off command runs instead of the engine.
	Args        []string          `yaml:"-"`                 // Positional arguments of Command.
	Acquisition AcquisitionConfig `yaml:"acquisition"`       // Where samples come from.
	Sampling    SamplingConfig    `yaml:"sampling"`          // Sampling period and frame size.
	Estimator   EstimatorConfig   `yaml:"estimator"`         // BPM search range.
	Recording   RecordingConfig   `yaml:"recording"`         // Frame recording settings.
	Transport   TransportConfig   `yaml:"transport"`         // Reporting collaborators.
	TUI         TUIConfig         `yaml:"tui"`               // Terminal monitor settings.
	Analyze     AnalyzeConfig     `yaml:"analyze"`           // Offline analysis settings.
}

// AcquisitionConfig selects and configures the sample source.
type AcquisitionConfig struct {
	Source         string  `yaml:"source"`          // "device", "wav" or "synthetic".
	DevicePath     string  `yaml:"device_path"`     // Character device opened read/write.
	ByteOrder      string  `yaml:"byte_order"`      // "little" or "big".
	WAVFile        string  `yaml:"wav_file"`        // Recording replayed by the wav source.
	WAVLoop        bool    `yaml:"wav_loop"`        // Rewind at the end of the recording.
	SyntheticBPM   float64 `yaml:"synthetic_bpm"`   // Heart rate generated by the synthetic source.
	SyntheticNoise float64 `yaml:"synthetic_noise"` // Peak noise added by the synthetic source.
	OnReadError    string  `yaml:"on_read_error"`   // "fatal" or "discard".
}

// SamplingConfig holds the producer timing and frame geometry.
type SamplingConfig struct {
	Period    time.Duration `yaml:"period"`     // Sampling period (e.g., "20ms" for 50 Hz).
	FrameSize int           `yaml:"frame_size"` // Samples per frame, a power of 2.
}

// EstimatorConfig holds the physiological BPM search range.
type EstimatorConfig struct {
	MinBPM float64 `yaml:"min_bpm"`
	MaxBPM float64 `yaml:"max_bpm"`
}

// RecordingConfig holds settings for capturing consumed frames to WAV.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record every frame handed to the estimator.
	OutputFile string `yaml:"output_file"` // WAV file to write.
}

// TransportConfig holds settings related to reporting readings.
type TransportConfig struct {
	LogEnabled       bool   `yaml:"log_enabled"`        // Print each reading through the logger.
	WSEnabled        bool   `yaml:"ws_enabled"`         // Broadcast readings over WebSocket.
	WSAddr           string `yaml:"ws_addr"`            // Listen address for the WebSocket server.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send readings as UDP packets.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	NATSEnabled      bool   `yaml:"nats_enabled"`       // Publish readings to NATS.
	NATSURL          string `yaml:"nats_url"`           // NATS server URL.
	NATSSubject      string `yaml:"nats_subject"`       // Subject readings are published on.
}

// TUIConfig holds settings for the terminal monitor.
type TUIConfig struct {
	Enabled bool   `yaml:"enabled"`  // Show the terminal monitor instead of plain logs.
	LogFile string `yaml:"log_file"` // Log output while the monitor owns the terminal.
}

// AnalyzeConfig holds settings for offline analysis of recordings.
type AnalyzeConfig struct {
	Hop int `yaml:"hop"` // Samples between frame starts, 0 for the frame size.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Acquisition: AcquisitionConfig{
			Source:         DefaultSource,
			DevicePath:     DefaultDevicePath,
			ByteOrder:      DefaultByteOrder,
			SyntheticBPM:   DefaultSyntheticBPM,
			SyntheticNoise: DefaultSyntheticNoise,
			OnReadError:    DefaultOnReadError,
		},
		Sampling: SamplingConfig{
			Period:    DefaultSamplePeriod,
			FrameSize: DefaultFrameSize,
		},
		Estimator: EstimatorConfig{
			MinBPM: DefaultMinBPM,
			MaxBPM: DefaultMaxBPM,
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: DefaultRecordingFile,
		},
		Transport: TransportConfig{
			LogEnabled:       true,
			WSEnabled:        false,
			WSAddr:           DefaultWSAddr,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTarget,
			NATSEnabled:      false,
			NATSURL:          DefaultNATSURL,
			NATSSubject:      DefaultNATSSubject,
		},
		TUI: TUIConfig{
			Enabled: false,
			LogFile: DefaultTUILogFile,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"ppgbpm.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applog.Debugf("Config: Loaded %s", path)

	// Environment variables win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// WriteYAML writes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Validate rejects configurations the pipeline cannot run with. Every problem
// is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		errs = append(errs, fmt.Errorf("log_level '%s' is not a known level", c.LogLevel))
	}

	// Acquisition
	switch strings.ToLower(c.Acquisition.Source) {
	case SourceDevice:
		if c.Acquisition.DevicePath == "" {
			errs = append(errs, errors.New("acquisition.device_path must be set for the device source"))
		}
	case SourceWAV:
		if c.Acquisition.WAVFile == "" {
			errs = append(errs, errors.New("acquisition.wav_file must be set for the wav source"))
		}
	case SourceSynthetic:
		if c.Acquisition.SyntheticBPM <= 0 {
			errs = append(errs, fmt.Errorf("acquisition.synthetic_bpm must be positive, got %g", c.Acquisition.SyntheticBPM))
		}
	default:
		errs = append(errs, fmt.Errorf("acquisition.source '%s' is not one of %s, %s, %s",
			c.Acquisition.Source, SourceDevice, SourceWAV, SourceSynthetic))
	}
	if _, err := acquire.ParseByteOrder(c.Acquisition.ByteOrder); err != nil {
		errs = append(errs, fmt.Errorf("acquisition.byte_order: %w", err))
	}
	if _, err := sampler.ParseReadErrorPolicy(c.Acquisition.OnReadError); err != nil {
		errs = append(errs, fmt.Errorf("acquisition.on_read_error: %w", err))
	}

	// Sampling
	if c.Sampling.Period < MinSamplePeriod {
		errs = append(errs, fmt.Errorf("sampling.period must be at least %s, got %s", MinSamplePeriod, c.Sampling.Period))
	}
	frameOK := bitint.IsPowerOfTwo(c.Sampling.FrameSize) &&
		c.Sampling.FrameSize >= MinFrameSize && c.Sampling.FrameSize <= MaxFrameSize
	if !frameOK {
		errs = append(errs, fmt.Errorf("sampling.frame_size must be a power of 2 in [%d, %d], got %d",
			MinFrameSize, MaxFrameSize, c.Sampling.FrameSize))
	}

	// Estimator, only meaningful once the geometry is valid.
	if frameOK && c.Sampling.Period > 0 {
		if _, err := analysis.NewEstimator(c.Sampling.FrameSize, c.SampleRate(), c.Estimator.MinBPM, c.Estimator.MaxBPM); err != nil {
			errs = append(errs, fmt.Errorf("estimator: %w", err))
		}
	}

	if c.Analyze.Hop < 0 {
		errs = append(errs, fmt.Errorf("analyze.hop must not be negative, got %d", c.Analyze.Hop))
	}

	if c.Recording.Enabled && c.Recording.OutputFile == "" {
		errs = append(errs, errors.New("recording.output_file must be set when recording is enabled"))
	}

	// Transport
	if c.Transport.WSEnabled && c.Transport.WSAddr == "" {
		errs = append(errs, errors.New("transport.ws_addr must be set when WebSocket is enabled"))
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			errs = append(errs, errors.New("transport.udp_target_address must be set when UDP is enabled"))
		} else if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress))
		}
	}
	if c.Transport.NATSEnabled && c.Transport.NATSURL == "" {
		errs = append(errs, errors.New("transport.nats_url must be set when NATS is enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", "debug", &cfg.Debug)
	envString("ENV_LOG_LEVEL", "log_level", &cfg.LogLevel)

	// ENV_{...}
	// These are specific to acquisition and sampling.
	envString("ENV_SOURCE", "acquisition.source", &cfg.Acquisition.Source)
	envString("ENV_DEVICE_PATH", "acquisition.device_path", &cfg.Acquisition.DevicePath)
	envString("ENV_BYTE_ORDER", "acquisition.byte_order", &cfg.Acquisition.ByteOrder)
	envString("ENV_WAV_FILE", "acquisition.wav_file", &cfg.Acquisition.WAVFile)
	envString("ENV_ON_READ_ERROR", "acquisition.on_read_error", &cfg.Acquisition.OnReadError)
	envDuration("ENV_SAMPLE_PERIOD", "sampling.period", &cfg.Sampling.Period)
	envInt("ENV_FRAME_SIZE", "sampling.frame_size", &cfg.Sampling.FrameSize)

	// ENV_{...}
	// These are specific to the transport layer.
	envBool("ENV_WS_ENABLED", "transport.ws_enabled", &cfg.Transport.WSEnabled)
	envString("ENV_WS_ADDR", "transport.ws_addr", &cfg.Transport.WSAddr)
	envBool("ENV_UDP_ENABLED", "transport.udp_enabled", &cfg.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", "transport.udp_target_address", &cfg.Transport.UDPTargetAddress)
	envBool("ENV_NATS_ENABLED", "transport.nats_enabled", &cfg.Transport.NATSEnabled)
	envString("ENV_NATS_URL", "transport.nats_url", &cfg.Transport.NATSURL)
	envString("ENV_NATS_SUBJECT", "transport.nats_subject", &cfg.Transport.NATSSubject)
}

func envString(name, field string, dst *string) {
	if val, ok := os.LookupEnv(name); ok {
		*dst = val
		applog.Infof("Config: Overriding %s from env: %s", field, val)
	}
}

func envBool(name, field string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	bVal, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = bVal
	applog.Infof("Config: Overriding %s from env: %v", field, bVal)
}

func envInt(name, field string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	iVal, err := strconv.Atoi(val)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = iVal
	applog.Infof("Config: Overriding %s from env: %d", field, iVal)
}

func envDuration(name, field string, dst *time.Duration) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = dur
	applog.Infof("Config: Overriding %s from env: %s", field, dur)
}
