// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ppgbpm/internal/config"
	"ppgbpm/pkg/build"
)

// Commands that run instead of the engine.
const (
	CommandAnalyze = "analyze"
	CommandConfig  = "config"
	CommandVersion = "version"
	CommandHelp    = "help"
)

// options mirrors the command line flags. Only flags the user actually set
// override the loaded configuration.
type options struct {
	configPath string

	source       string
	devicePath   string
	byteOrder    string
	wavFile      string
	wavLoop      bool
	syntheticBPM float64
	onReadError  string

	period    time.Duration
	frameSize int
	minBPM    float64
	maxBPM    float64

	record     bool
	outputFile string

	logEnabled  bool
	wsEnabled   bool
	wsAddr      string
	udpEnabled  bool
	udpTarget   string
	natsEnabled bool
	natsURL     string
	natsSubject string

	tui      bool
	verbose  bool
	logLevel string

	hop int
}

// ParseArgs parses os.Args and returns the effective configuration.
func ParseArgs() (*config.Config, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	opts := &options{}
	var cfg *config.Config

	// load runs after cobra parsed the flags of whichever command was chosen.
	load := func(cmd *cobra.Command, command string, cmdArgs []string) error {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		opts.apply(cmd.Flags(), loaded)
		loaded.Command = command
		loaded.Args = cmdArgs
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "", nil)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Estimate heart rate over every frame of a WAV recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandAnalyze, args)
		},
	}
	analyzeCmd.Flags().IntVar(&opts.hop, "hop", 0,
		"Samples between frame starts (0 uses the frame size)")
	rootCmd.AddCommand(analyzeCmd)

	// Config command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandConfig, nil)
		},
	})

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg = &config.Config{Command: CommandVersion}
			return nil
		},
	})

	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&opts.configPath, "config", "c", "",
		"Path to a YAML configuration file. Default is ./config.yaml when present")

	// Acquisition
	flags.StringVar(&opts.source, "source", config.DefaultSource,
		"Sample source: device, wav or synthetic")
	flags.StringVarP(&opts.devicePath, "device", "d", config.DefaultDevicePath,
		"Character device the PPG samples are read from")
	flags.StringVar(&opts.byteOrder, "byte-order", config.DefaultByteOrder,
		"Byte order of device samples: little or big")
	flags.StringVar(&opts.wavFile, "wav", "",
		"WAV recording replayed by the wav source")
	flags.BoolVar(&opts.wavLoop, "loop", false,
		"Rewind the WAV recording when it ends")
	flags.Float64Var(&opts.syntheticBPM, "synthetic-bpm", config.DefaultSyntheticBPM,
		"Heart rate generated by the synthetic source")
	flags.StringVar(&opts.onReadError, "on-read-error", config.DefaultOnReadError,
		"What a failed read does: fatal or discard")

	// Sampling and estimation
	flags.DurationVarP(&opts.period, "period", "p", config.DefaultSamplePeriod,
		"Sampling period (20ms gives 50 Hz)")
	flags.IntVarP(&opts.frameSize, "frame-size", "n", config.DefaultFrameSize,
		"Samples per frame, a power of 2")
	flags.Float64Var(&opts.minBPM, "min-bpm", config.DefaultMinBPM,
		"Lower bound of the BPM search range")
	flags.Float64Var(&opts.maxBPM, "max-bpm", config.DefaultMaxBPM,
		"Upper bound of the BPM search range")

	// Recording
	flags.BoolVarP(&opts.record, "record", "r", false,
		"Record every analysed frame to a WAV file")
	flags.StringVarP(&opts.outputFile, "output", "o", "",
		"Output file name. Default is ppg-MM-DD-YYYY-HHMMSS.wav")

	// Transports
	flags.BoolVar(&opts.logEnabled, "log-bpm", true,
		"Print every reading through the logger")
	flags.BoolVar(&opts.wsEnabled, "ws", false,
		"Broadcast readings over WebSocket")
	flags.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWSAddr,
		"WebSocket listen address")
	flags.BoolVar(&opts.udpEnabled, "udp", false,
		"Send readings as UDP packets")
	flags.StringVar(&opts.udpTarget, "udp-target", config.DefaultUDPTarget,
		"UDP target address")
	flags.BoolVar(&opts.natsEnabled, "nats", false,
		"Publish readings to NATS")
	flags.StringVar(&opts.natsURL, "nats-url", config.DefaultNATSURL,
		"NATS server URL")
	flags.StringVar(&opts.natsSubject, "nats-subject", config.DefaultNATSSubject,
		"NATS subject readings are published on")

	// UI and debug
	flags.BoolVarP(&opts.tui, "tui", "t", false,
		"Show the terminal heart rate monitor")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")
	flags.StringVar(&opts.logLevel, "log-level", "info",
		"Log level: debug, info, warn or error")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if cfg == nil {
		// --help or --version was handled by cobra.
		return &config.Config{Command: CommandHelp}, nil
	}
	return cfg, nil
}

// apply copies the flags that were set on the command line into cfg.
func (o *options) apply(flags *pflag.FlagSet, cfg *config.Config) {
	changed := flags.Changed

	if changed("source") {
		cfg.Acquisition.Source = o.source
	}
	if changed("device") {
		cfg.Acquisition.DevicePath = o.devicePath
	}
	if changed("byte-order") {
		cfg.Acquisition.ByteOrder = o.byteOrder
	}
	if changed("wav") {
		cfg.Acquisition.WAVFile = o.wavFile
		if !changed("source") {
			cfg.Acquisition.Source = config.SourceWAV
		}
	}
	if changed("loop") {
		cfg.Acquisition.WAVLoop = o.wavLoop
	}
	if changed("synthetic-bpm") {
		cfg.Acquisition.SyntheticBPM = o.syntheticBPM
	}
	if changed("on-read-error") {
		cfg.Acquisition.OnReadError = o.onReadError
	}

	if changed("period") {
		cfg.Sampling.Period = o.period
	}
	if changed("frame-size") {
		cfg.Sampling.FrameSize = o.frameSize
	}
	if changed("min-bpm") {
		cfg.Estimator.MinBPM = o.minBPM
	}
	if changed("max-bpm") {
		cfg.Estimator.MaxBPM = o.maxBPM
	}

	if changed("record") {
		cfg.Recording.Enabled = o.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = o.outputFile
	} else if changed("record") && o.record {
		cfg.Recording.OutputFile = "ppg-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	if changed("log-bpm") {
		cfg.Transport.LogEnabled = o.logEnabled
	}
	if changed("ws") {
		cfg.Transport.WSEnabled = o.wsEnabled
	}
	if changed("ws-addr") {
		cfg.Transport.WSAddr = o.wsAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = o.udpEnabled
	}
	if changed("udp-target") {
		cfg.Transport.UDPTargetAddress = o.udpTarget
	}
	if changed("nats") {
		cfg.Transport.NATSEnabled = o.natsEnabled
	}
	if changed("nats-url") {
		cfg.Transport.NATSURL = o.natsURL
	}
	if changed("nats-subject") {
		cfg.Transport.NATSSubject = o.natsSubject
	}

	if changed("tui") {
		cfg.TUI.Enabled = o.tui
	}
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if changed("verbose") {
		cfg.Debug = o.verbose
	}
	if changed("hop") {
		cfg.Analyze.Hop = o.hop
	}
}
