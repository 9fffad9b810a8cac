package visualization

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ScalarPoint is one recorded scalar value.
type ScalarPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// AudioClip is one recorded waveform.
type AudioClip struct {
	Step       int       `json:"step"`
	SampleRate int       `json:"sample_rate"`
	Wave       []float32 `json:"wave"`
}

// VisualizationCollector keeps training metrics in memory for plotting. It
// satisfies the metrics writer contract, so it can be attached to a trainer
// directly or next to other writers.
type VisualizationCollector struct {
	modelName string
	enabled   bool

	scalars    map[string][]ScalarPoint
	histograms map[string]Histogram
	figures    map[string]*PlotData
	audio      map[string]AudioClip

	mutex sync.RWMutex
}

var seriesColors = []string{"#FF6B6B", "#4ECDC4", "#FF9F43", "#5F27CD", "#6C5CE7", "#10AC84"}

// NewVisualizationCollector creates a new visualization collector
func NewVisualizationCollector(modelName string) *VisualizationCollector {
	return &VisualizationCollector{
		modelName:  modelName,
		enabled:    false,
		scalars:    make(map[string][]ScalarPoint),
		histograms: make(map[string]Histogram),
		figures:    make(map[string]*PlotData),
		audio:      make(map[string]AudioClip),
	}
}

// Enable enables visualization data collection
func (vc *VisualizationCollector) Enable() {
	vc.enabled = true
}

// Disable disables visualization data collection
func (vc *VisualizationCollector) Disable() {
	vc.enabled = false
}

// IsEnabled returns whether visualization is enabled
func (vc *VisualizationCollector) IsEnabled() bool {
	return vc.enabled
}

// AddScalar records a scalar value for tag at step
func (vc *VisualizationCollector) AddScalar(tag string, value float64, step int) error {
	if !vc.enabled {
		return nil
	}
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.scalars[tag] = append(vc.scalars[tag], ScalarPoint{Step: step, Value: value})
	return nil
}

// AddHistogram keeps the most recent histogram of values for tag
func (vc *VisualizationCollector) AddHistogram(tag string, values []float32, step int) error {
	if !vc.enabled {
		return nil
	}
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.histograms[tag] = NewHistogram(values, DefaultHistogramBins)
	return nil
}

// AddFigure keeps the most recent figure for tag
func (vc *VisualizationCollector) AddFigure(tag string, fig *PlotData, step int) error {
	if !vc.enabled {
		return nil
	}
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.figures[tag] = fig
	return nil
}

// AddAudio keeps the most recent waveform for tag
func (vc *VisualizationCollector) AddAudio(tag string, wave []float32, step int, sampleRate int) error {
	if !vc.enabled {
		return nil
	}
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.audio[tag] = AudioClip{Step: step, SampleRate: sampleRate, Wave: wave}
	return nil
}

// Scalars returns a copy of the values recorded for tag
func (vc *VisualizationCollector) Scalars(tag string) []ScalarPoint {
	vc.mutex.RLock()
	defer vc.mutex.RUnlock()
	return append([]ScalarPoint(nil), vc.scalars[tag]...)
}

// Histogram returns the latest histogram recorded for tag
func (vc *VisualizationCollector) Histogram(tag string) (Histogram, bool) {
	vc.mutex.RLock()
	defer vc.mutex.RUnlock()
	h, ok := vc.histograms[tag]
	return h, ok
}

// Figure returns the latest figure recorded for tag
func (vc *VisualizationCollector) Figure(tag string) (*PlotData, bool) {
	vc.mutex.RLock()
	defer vc.mutex.RUnlock()
	f, ok := vc.figures[tag]
	return f, ok
}

// Audio returns the latest waveform recorded for tag
func (vc *VisualizationCollector) Audio(tag string) (AudioClip, bool) {
	vc.mutex.RLock()
	defer vc.mutex.RUnlock()
	a, ok := vc.audio[tag]
	return a, ok
}

// Tags returns the sorted scalar tags seen so far
func (vc *VisualizationCollector) Tags() []string {
	vc.mutex.RLock()
	defer vc.mutex.RUnlock()
	tags := make([]string, 0, len(vc.scalars))
	for tag := range vc.scalars {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// GenerateTrainingCurvesPlot generates one line series per scalar tag. With no
// tags given, every recorded tag is plotted.
func (vc *VisualizationCollector) GenerateTrainingCurvesPlot(tags ...string) PlotData {
	if len(tags) == 0 {
		tags = vc.Tags()
	}

	vc.mutex.RLock()
	defer vc.mutex.RUnlock()

	series := make([]SeriesData, 0, len(tags))
	for i, tag := range tags {
		points := vc.scalars[tag]
		data := make([]DataPoint, len(points))
		for j, p := range points {
			data[j] = DataPoint{X: p.Step, Y: p.Value}
		}
		series = append(series, SeriesData{
			Name: tag,
			Type: "line",
			Data: data,
			Style: map[string]interface{}{
				"color":      seriesColors[i%len(seriesColors)],
				"line_width": 2,
			},
		})
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Curves - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  "Step",
			YAxisLabel:  "Loss",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// Clear resets all collected data
func (vc *VisualizationCollector) Clear() {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.scalars = make(map[string][]ScalarPoint)
	vc.histograms = make(map[string]Histogram)
	vc.figures = make(map[string]*PlotData)
	vc.audio = make(map[string]AudioClip)
}
