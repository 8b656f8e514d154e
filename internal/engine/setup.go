// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/config"
	applog "ppgbpm/internal/log"
	"ppgbpm/internal/transport"
	"ppgbpm/internal/transport/udp"
)

// OpenSource opens the acquisition source selected by cfg.
func OpenSource(cfg *config.Config) (acquire.Source, error) {
	acq := cfg.Acquisition
	switch strings.ToLower(acq.Source) {
	case config.SourceDevice:
		order, err := acquire.ParseByteOrder(acq.ByteOrder)
		if err != nil {
			return nil, err
		}
		src, err := acquire.OpenDevice(acq.DevicePath, order)
		if err != nil {
			return nil, fmt.Errorf("unable to open device: %w", err)
		}
		applog.Infof("Engine: Reading %d-byte %s-endian samples from %s", acquire.SampleSize, acq.ByteOrder, acq.DevicePath)
		return src, nil

	case config.SourceWAV:
		src, err := acquire.OpenWAV(acq.WAVFile, acq.WAVLoop)
		if err != nil {
			return nil, err
		}
		if want := int(math.Round(cfg.SampleRate())); src.SampleRate() != want {
			applog.Warnf("Engine: %s is recorded at %d Hz but sampling runs at %d Hz; estimates will be scaled",
				acq.WAVFile, src.SampleRate(), want)
		}
		applog.Infof("Engine: Replaying %d samples from %s (loop: %v)", src.Len(), acq.WAVFile, acq.WAVLoop)
		return src, nil

	case config.SourceSynthetic:
		applog.Infof("Engine: Generating a synthetic %.0f BPM pulse", acq.SyntheticBPM)
		return acquire.NewSyntheticSource(cfg.SampleRate(), acq.SyntheticBPM, acq.SyntheticNoise), nil

	default:
		return nil, fmt.Errorf("unknown acquisition source: '%s'", acq.Source)
	}
}

// OpenTransports creates every transport enabled in cfg. If one fails, the
// ones already opened are closed and the error is returned.
func OpenTransports(cfg *config.Config) ([]transport.Transport, error) {
	var opened []transport.Transport
	fail := func(err error) ([]transport.Transport, error) {
		if cerr := transport.Multi(opened).Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	tc := cfg.Transport
	if tc.LogEnabled {
		opened = append(opened, transport.NewLoggingTransport())
	}
	if tc.WSEnabled {
		ws := transport.NewWebSocketTransport(tc.WSAddr)
		if err := ws.Start(); err != nil {
			ws.Close()
			return fail(err)
		}
		opened = append(opened, ws)
	}
	if tc.UDPEnabled {
		pub, err := udp.Dial(tc.UDPTargetAddress)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, pub)
	}
	if tc.NATSEnabled {
		nt, err := transport.ConnectNATS(tc.NATSURL, tc.NATSSubject)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, nt)
	}
	return opened, nil
}
