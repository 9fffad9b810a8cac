package visualization

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	// Training plots
	TrainingCurves PlotType = "training_curves"

	// Acoustic feature plots
	MelSpectrogram PlotType = "mel_spectrogram"
	PitchContour   PlotType = "pitch_contour"

	// Distribution plots
	DistributionHistogram PlotType = "distribution_histogram"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	// Data series - flexible structure for different plot types
	Series []SeriesData `json:"series"`

	// Plot configuration
	Config PlotConfig `json:"config"`

	// Metrics metadata
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "histogram", "heatmap"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point - flexible for different plot types
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`     // For heatmaps
	Label string      `json:"label,omitempty"` // For categorical data
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	ZAxisLabel    string                 `json:"z_axis_label,omitempty"`
	XAxisScale    string                 `json:"x_axis_scale"` // "linear", "log"
	YAxisScale    string                 `json:"y_axis_scale"` // "linear", "log"
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// PlotMel builds a heatmap of a mel spectrogram given as frames x mel bins.
// Frames run along the x axis and mel bins along the y axis.
func PlotMel(title string, mel [][]float32) *PlotData {
	data := make([]DataPoint, 0, len(mel)*melBins(mel))
	for t, frame := range mel {
		for f, value := range frame {
			data = append(data, DataPoint{X: t, Y: f, Z: value})
		}
	}

	return &PlotData{
		PlotType:  MelSpectrogram,
		Title:     title,
		Timestamp: time.Now(),
		Series: []SeriesData{
			{
				Name: "Mel",
				Type: "heatmap",
				Data: data,
				Style: map[string]interface{}{
					"colorscale": "Viridis",
				},
			},
		},
		Config: PlotConfig{
			XAxisLabel:  "Frame",
			YAxisLabel:  "Mel Channel",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  false,
			ShowGrid:    false,
			Width:       1200,
			Height:      400,
			Interactive: true,
			CustomOptions: map[string]interface{}{
				"frames": len(mel),
				"bins":   melBins(mel),
			},
		},
	}
}

// PlotPitch builds a line plot of a per-token contour such as pitch or silence.
func PlotPitch(title string, values []float32) *PlotData {
	data := make([]DataPoint, len(values))
	for i, v := range values {
		data[i] = DataPoint{X: i, Y: v}
	}

	return &PlotData{
		PlotType:  PitchContour,
		Title:     title,
		Timestamp: time.Now(),
		Series: []SeriesData{
			{
				Name: "Value",
				Type: "line",
				Data: data,
				Style: map[string]interface{}{
					"color":      "#4ECDC4",
					"line_width": 2,
				},
			},
		},
		Config: PlotConfig{
			XAxisLabel:  "Token",
			YAxisLabel:  "Value",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  false,
			ShowGrid:    true,
			Width:       1200,
			Height:      400,
			Interactive: true,
		},
	}
}

// PlotHistogram builds a bar plot from a computed histogram.
func PlotHistogram(title string, h Histogram) *PlotData {
	data := make([]DataPoint, len(h.Counts))
	for i, c := range h.Counts {
		data[i] = DataPoint{
			X:     (h.Edges[i] + h.Edges[i+1]) / 2,
			Y:     c,
			Label: fmt.Sprintf("[%.3g, %.3g)", h.Edges[i], h.Edges[i+1]),
		}
	}

	return &PlotData{
		PlotType:  DistributionHistogram,
		Title:     title,
		Timestamp: time.Now(),
		Series: []SeriesData{
			{
				Name: "Count",
				Type: "histogram",
				Data: data,
			},
		},
		Config: PlotConfig{
			XAxisLabel: "Value",
			YAxisLabel: "Count",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowGrid:   true,
			Width:      800,
			Height:     600,
		},
		Metrics: map[string]interface{}{
			"count": h.Count,
			"mean":  h.Mean,
			"std":   h.Std,
			"min":   h.Min,
			"max":   h.Max,
		},
	}
}

// ToJSON converts plot data to JSON string
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data to JSON: %w", err)
	}
	return string(jsonData), nil
}

func melBins(mel [][]float32) int {
	if len(mel) == 0 {
		return 0
	}
	return len(mel[0])
}
