package visualization

import (
	"testing"
)

func TestVisualizationCollectorDisabled(t *testing.T) {
	vc := NewVisualizationCollector("forward")

	if vc.IsEnabled() {
		t.Fatal("Collector should be disabled initially")
	}
	if err := vc.AddScalar("Mel_Loss/train", 1.0, 1); err != nil {
		t.Fatalf("AddScalar failed: %v", err)
	}
	if len(vc.Scalars("Mel_Loss/train")) != 0 {
		t.Error("Disabled collector should not record scalars")
	}
}

func TestVisualizationCollectorRecords(t *testing.T) {
	vc := NewVisualizationCollector("forward")
	vc.Enable()

	vc.AddScalar("Mel_Loss/train", 2.0, 1)
	vc.AddScalar("Mel_Loss/train", 1.5, 2)
	vc.AddScalar("Duration_Loss/train", 0.5, 2)
	vc.AddHistogram("Duration_Histo/train", []float32{1, 2, 3}, 2)
	vc.AddFigure("Pitch/target", PlotPitch("Pitch/target", []float32{1}), 2)
	vc.AddAudio("Generated/postnet_wav", []float32{0, 0.1}, 2, 22050)

	points := vc.Scalars("Mel_Loss/train")
	if len(points) != 2 || points[1].Step != 2 || points[1].Value != 1.5 {
		t.Errorf("Unexpected scalar points: %+v", points)
	}

	tags := vc.Tags()
	if len(tags) != 2 || tags[0] != "Duration_Loss/train" || tags[1] != "Mel_Loss/train" {
		t.Errorf("Unexpected tags: %v", tags)
	}

	if h, ok := vc.Histogram("Duration_Histo/train"); !ok || h.Count != 3 {
		t.Errorf("Expected histogram with 3 values, got %+v (found=%v)", h, ok)
	}
	if _, ok := vc.Figure("Pitch/target"); !ok {
		t.Error("Expected figure to be recorded")
	}
	if clip, ok := vc.Audio("Generated/postnet_wav"); !ok || clip.SampleRate != 22050 {
		t.Errorf("Expected audio clip at 22050 Hz, got %+v (found=%v)", clip, ok)
	}

	plot := vc.GenerateTrainingCurvesPlot()
	if plot.PlotType != TrainingCurves {
		t.Errorf("Expected plot type %s, got %s", TrainingCurves, plot.PlotType)
	}
	if len(plot.Series) != 2 {
		t.Fatalf("Expected 2 series, got %d", len(plot.Series))
	}
	if plot.Series[1].Name != "Mel_Loss/train" || len(plot.Series[1].Data) != 2 {
		t.Errorf("Unexpected series: %+v", plot.Series[1])
	}

	vc.Clear()
	if len(vc.Tags()) != 0 {
		t.Error("Clear should drop all scalars")
	}
}
