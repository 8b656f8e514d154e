// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ppgbpm/cmd"
	"ppgbpm/internal/config"
	"ppgbpm/internal/engine"
	applog "ppgbpm/internal/log"
	"ppgbpm/internal/sampler"
	"ppgbpm/internal/transport"
	"ppgbpm/internal/tui"
	"ppgbpm/pkg/build"
)

// main is the entry point for the heart rate estimator.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Open the acquisition source and the transports
//
// 2. Concurrent Phase (Hot Path):
//   - Sampler goroutine appends one sample per tick
//   - Worker goroutine estimates BPM for every completed frame
//   - Terminal monitor, if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - SIGINT/SIGTERM cancels the engine context exactly once
//   - Trigger disarmed, worker drained, source and transports closed
//   - Non-zero exit status on any startup failure or fatal read error
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	buildErr := build.Initialize()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}
	configureLogging(cfg)
	if buildErr != nil {
		applog.Debugf("Build: Development build (%v)", buildErr)
	}

	// Handle one-off commands that don't require the engine to be running
	if cfg.Command != "" {
		if err := executeCommand(cfg); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		applog.Fatalf("%v", err)
	}
}

// run wires the pipeline together and blocks until it stops.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := engine.OpenSource(cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	transports, err := engine.OpenTransports(cfg)
	if err != nil {
		source.Close()
		return fmt.Errorf("startup: %w", err)
	}

	var monitor *tui.Monitor
	if cfg.TUI.Enabled {
		// The monitor owns the terminal; logs go to a file instead.
		logFile, err := os.OpenFile(cfg.TUI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			source.Close()
			transport.Multi(transports).Close()
			return fmt.Errorf("startup: open tui log: %w", err)
		}
		defer logFile.Close()
		applog.SetOutput(logFile)
		defer applog.SetOutput(os.Stderr)

		info := fmt.Sprintf("%s source, N=%d, %.0f Hz, first estimate after %s",
			cfg.Acquisition.Source, cfg.Sampling.FrameSize, cfg.SampleRate(), cfg.FrameDuration())
		monitor = tui.NewMonitor(info)
		transports = append(transports, monitor)
	}

	trigger, err := sampler.NewTickerTrigger(cfg.Sampling.Period)
	if err != nil {
		source.Close()
		transport.Multi(transports).Close()
		return fmt.Errorf("startup: %w", err)
	}

	eng, err := engine.New(cfg, source, trigger, transports...)
	if err != nil {
		trigger.Stop()
		source.Close()
		transport.Multi(transports).Close()
		return fmt.Errorf("startup: %w", err)
	}

	if cfg.Recording.Enabled {
		if err := eng.StartRecording(cfg.Recording.OutputFile); err != nil {
			trigger.Stop()
			source.Close()
			transport.Multi(transports).Close()
			return fmt.Errorf("startup: %w", err)
		}
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	monitorDone := make(chan struct{})
	if monitor != nil {
		go func() {
			defer close(monitorDone)
			if err := monitor.Run(); err != nil {
				applog.Errorf("Monitor: %v", err)
			}
			// Quitting the monitor stops the engine.
			eng.Stop()
		}()
	} else {
		close(monitorDone)
	}

	err = eng.Run(ctx)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Teardown closed the monitor; wait until it has restored the terminal.
	<-monitorDone

	if cfg.Recording.Enabled {
		applog.Infof("Recording saved to: %s", cfg.Recording.OutputFile)
	}
	if errors.Is(err, io.EOF) && cfg.Acquisition.Source == config.SourceWAV {
		applog.Infof("Replay of %s finished", cfg.Acquisition.WAVFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// executeCommand handles one-off commands that don't require the engine
// to be running.
func executeCommand(cfg *config.Config) error {
	switch cfg.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
	case cmd.CommandConfig:
		return cfg.WriteYAML(os.Stdout)
	case cmd.CommandAnalyze:
		_, err := cmd.Analyze(cfg, cfg.Args[0], os.Stdout)
		return err
	case cmd.CommandHelp:
		// Already printed by cobra.
	default:
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}
	return nil
}

// configureLogging applies the configured level; debug forces LevelDebug.
func configureLogging(cfg *config.Config) {
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		level = applog.LevelInfo
	}
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
}
