// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/analysis"
	"ppgbpm/internal/config"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Analyze estimates the heart rate over consecutive frames of the first
// channel of a WAV recording and writes a per-frame table and a summary to w.
// The recording's own sample rate is used for the estimator.
func Analyze(cfg *config.Config, path string, w io.Writer) (analysis.Summary, error) {
	src, err := acquire.OpenWAV(path, false)
	if err != nil {
		return analysis.Summary{}, err
	}
	defer src.Close()

	samples := make([]int32, 0, src.Len())
	for {
		v, err := src.ReadSample()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return analysis.Summary{}, err
		}
		samples = append(samples, v)
	}

	sampleRate := float64(src.SampleRate())
	n := cfg.Sampling.FrameSize
	pipeline, err := analysis.NewPipeline(n, sampleRate, cfg.Estimator.MinBPM, cfg.Estimator.MaxBPM)
	if err != nil {
		return analysis.Summary{}, err
	}

	hop := cfg.Analyze.Hop
	if hop == 0 {
		hop = n
	}
	estimates, err := analysis.Analyze(pipeline, samples, hop)
	if err != nil {
		return analysis.Summary{}, fmt.Errorf("%s: %w", path, err)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("FRAME", "START (s)", "BPM", "BIN", "POWER")
	for i, e := range estimates {
		start := float64(i*hop) / sampleRate
		t.Row(
			strconv.Itoa(i+1),
			strconv.FormatFloat(start, 'f', 1, 64),
			strconv.Itoa(e.BPM),
			strconv.Itoa(e.Bin),
			strconv.FormatFloat(float64(e.Power), 'g', 4, 32),
		)
	}

	summary := analysis.Summarize(estimates)
	fmt.Fprintf(w, "%s: %d samples at %.0f Hz, N=%d, hop %d\n", path, len(samples), sampleRate, n, hop)
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "frames: %d  mean: %.1f bpm  stddev: %.1f  median: %.0f  range: %.0f-%.0f\n",
		summary.Frames, summary.Mean, summary.StdDev, summary.Median, summary.Min, summary.Max)
	return summary, nil
}
