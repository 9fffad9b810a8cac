// Package metrics records training scalars, histograms, figures and audio.
package metrics

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/visualization"
)

// Writer is a sink for training diagnostics keyed by tag and step.
type Writer interface {
	AddScalar(tag string, value float64, step int) error
	AddHistogram(tag string, values []float32, step int) error
	AddFigure(tag string, fig *visualization.PlotData, step int) error
	AddAudio(tag string, wave []float32, step int, sampleRate int) error
}

// Discard is a Writer that drops everything.
var Discard Writer = discard{}

type discard struct{}

func (discard) AddScalar(string, float64, int) error { return nil }

func (discard) AddHistogram(string, []float32, int) error { return nil }

func (discard) AddFigure(string, *visualization.PlotData, int) error { return nil }

func (discard) AddAudio(string, []float32, int, int) error { return nil }

// multiWriter forwards every record to all writers.
type multiWriter struct {
	writers []Writer
}

// Multi returns a Writer that duplicates records to every writer. All writers
// are attempted; the first error is returned.
func Multi(writers ...Writer) Writer {
	all := make([]Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			all = append(all, w)
		}
	}
	return &multiWriter{writers: all}
}

func (m *multiWriter) each(tag string, fn func(w Writer) error) error {
	var first error
	for _, w := range m.writers {
		if err := fn(w); err != nil && first == nil {
			first = errors.WithMessagef(err, "tag %s", tag)
		}
	}
	return first
}

func (m *multiWriter) AddScalar(tag string, value float64, step int) error {
	return m.each(tag, func(w Writer) error { return w.AddScalar(tag, value, step) })
}

func (m *multiWriter) AddHistogram(tag string, values []float32, step int) error {
	return m.each(tag, func(w Writer) error { return w.AddHistogram(tag, values, step) })
}

func (m *multiWriter) AddFigure(tag string, fig *visualization.PlotData, step int) error {
	return m.each(tag, func(w Writer) error { return w.AddFigure(tag, fig, step) })
}

func (m *multiWriter) AddAudio(tag string, wave []float32, step int, sampleRate int) error {
	return m.each(tag, func(w Writer) error { return w.AddAudio(tag, wave, step, sampleRate) })
}
