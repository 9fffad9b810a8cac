package visualization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultHistogramBins is the bin count used when none is given.
const DefaultHistogramBins = 30

// Histogram summarizes a set of values.
type Histogram struct {
	Count     int       `json:"count"`
	NonFinite int       `json:"non_finite,omitempty"` // NaN and infinite values left out of the bins
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Edges     []float64 `json:"edges"` // len(Counts)+1 bin boundaries
	Counts    []float64 `json:"counts"`
}

// NewHistogram bins values into equally wide bins spanning their range.
// A constant input yields a single bin of width one centered on the value.
func NewHistogram(values []float32, bins int) Histogram {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	x := make([]float64, 0, len(values))
	for _, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		x = append(x, f)
	}
	if len(x) == 0 {
		return Histogram{NonFinite: len(values)}
	}
	sort.Float64s(x)

	h := Histogram{
		Count:     len(x),
		NonFinite: len(values) - len(x),
		Min:       x[0],
		Max:       x[len(x)-1],
	}
	h.Mean, h.Std = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		h.Std = 0
	}

	if h.Min == h.Max {
		h.Edges = []float64{h.Min - 0.5, h.Max + 0.5}
		h.Counts = []float64{float64(len(x))}
		return h
	}

	h.Edges = make([]float64, bins+1)
	floats.Span(h.Edges, h.Min, h.Max)
	// stat.Histogram treats the last edge as exclusive.
	h.Edges[bins] = math.Nextafter(h.Max, math.Inf(1))
	h.Counts = stat.Histogram(nil, h.Edges, x, nil)
	h.Edges[bins] = h.Max
	return h
}
