package metrics

import (
	"math"
	"strconv"
	"time"

	"github.com/tsawler/go-forward/visualization"
)

// Event kinds.
const (
	KindScalar    = "scalar"
	KindHistogram = "histogram"
	KindFigure    = "figure"
	KindAudio     = "audio"
)

// Event is one record as written to the event log and the live stream.
type Event struct {
	Kind      string                   `json:"kind"`
	Tag       string                   `json:"tag"`
	Step      int                      `json:"step"`
	WallTime  time.Time                `json:"wall_time"`
	Value     *float64                 `json:"value,omitempty"`
	NonFinite string                   `json:"non_finite,omitempty"` // "NaN", "+Inf" or "-Inf" in place of Value
	Histogram *visualization.Histogram `json:"histogram,omitempty"`
	Figure    *visualization.PlotData  `json:"figure,omitempty"`
	File      string                   `json:"file,omitempty"` // Artifact path relative to the log directory
	Samples   int                      `json:"samples,omitempty"`
	Rate      int                      `json:"sample_rate,omitempty"`
}

// scalarEvent builds a scalar event. JSON has no encoding for NaN or
// infinities, so those are carried as text.
func scalarEvent(tag string, value float64, step int) Event {
	e := Event{Kind: KindScalar, Tag: tag, Step: step}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		e.NonFinite = strconv.FormatFloat(value, 'g', -1, 64)
	} else {
		e.Value = &value
	}
	return e
}
