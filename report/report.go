// Package report computes and formats summary statistics for sampled
// eth_call durations.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientSamples is returned when a sample set is too small to
// describe. The sample standard deviation needs at least two entries.
var ErrInsufficientSamples = errors.New("insufficient samples")

const minSamples = 2

// Summary holds the descriptive statistics of one labelled sample set.
// All durations are in seconds.
type Summary struct {
	Label  string  `json:"label"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_seconds"`
	StdDev float64 `json:"std_dev_seconds"`
	Min    float64 `json:"min_seconds"`
	Max    float64 `json:"max_seconds"`
}

// Summarize computes the mean, sample standard deviation (divisor n-1),
// minimum and maximum of samples.
func Summarize(label string, samples []float64) (Summary, error) {
	if len(samples) < minSamples {
		return Summary{}, fmt.Errorf(
			"summarize %s: %w: got %d, need at least %d",
			label, ErrInsufficientSamples, len(samples), minSamples,
		)
	}

	return Summary{
		Label:  label,
		Count:  len(samples),
		Mean:   stat.Mean(samples, nil),
		StdDev: stat.StdDev(samples, nil),
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
	}, nil
}

// Print summarizes samples and writes the four statistics lines for label.
func Print(w io.Writer, label string, samples []float64) error {
	s, err := Summarize(label, samples)
	if err != nil {
		return err
	}

	return s.WriteText(w)
}

// WriteText writes the summary as four plain text lines.
func (s Summary) WriteText(w io.Writer) error {
	lines := []struct {
		prefix string
		value  float64
	}{
		{"Mean eth_call duration", s.Mean},
		{"Std Dev of eth_call duration", s.StdDev},
		{"Min eth_call duration", s.Min},
		{"Max eth_call duration", s.Max},
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s via %s: %s seconds\n",
			l.prefix, s.Label, formatFloat(l.value),
		); err != nil {
			return err
		}
	}

	return nil
}

// Generate writes a markdown comparison table for the given summaries.
func Generate(w io.Writer, summaries []Summary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no summaries to report")
	}

	fastest := findFastest(summaries)

	fmt.Fprintln(w, "## eth_call Benchmark Results")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Transport | Samples | Mean | Std Dev | Min | Max | Relative |")
	fmt.Fprintln(w, "|-----------|---------|------|---------|-----|-----|----------|")

	for _, s := range summaries {
		relative := 1.0
		if fastest > 0 && s.Mean > 0 {
			relative = s.Mean / fastest
		}

		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %.2fx |\n",
			s.Label,
			s.Count,
			formatSeconds(s.Mean),
			formatSeconds(s.StdDev),
			formatSeconds(s.Min),
			formatSeconds(s.Max),
			relative,
		)
	}

	return nil
}

// GenerateJSON writes summaries as JSON to w.
func GenerateJSON(w io.Writer, summaries []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(summaries)
}

func findFastest(summaries []Summary) float64 {
	fastest := math.Inf(1)
	for _, s := range summaries {
		if s.Mean > 0 && s.Mean < fastest {
			fastest = s.Mean
		}
	}

	if math.IsInf(fastest, 1) {
		return 0
	}

	return fastest
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(sec float64) string {
	if sec < 1 {
		return fmt.Sprintf("%.1fms", sec*1000)
	}

	return fmt.Sprintf("%.3fs", sec)
}
