package visualization

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestDefaultPlottingServiceConfig tests the default configuration
func TestDefaultPlottingServiceConfig(t *testing.T) {
	config := DefaultPlottingServiceConfig()

	if config.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected BaseURL http://localhost:8080, got %s", config.BaseURL)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", config.Timeout)
	}
	if config.RetryAttempts != 3 {
		t.Errorf("Expected retry attempts 3, got %d", config.RetryAttempts)
	}
}

// TestPlottingServiceEnableDisable tests enable/disable functionality
func TestPlottingServiceEnableDisable(t *testing.T) {
	ps := NewPlottingService(DefaultPlottingServiceConfig())

	if ps.IsEnabled() {
		t.Error("Service should be disabled initially")
	}

	resp, err := ps.SendPlotData(PlotData{})
	if err != nil {
		t.Fatalf("Disabled service should not fail: %v", err)
	}
	if resp.Success {
		t.Error("Disabled service should not report success")
	}

	ps.Enable()
	if !ps.IsEnabled() {
		t.Error("Service should be enabled after Enable()")
	}
	ps.Disable()
	if ps.IsEnabled() {
		t.Error("Service should be disabled after Disable()")
	}
}

// mockSidecar records posted plots and answers like the sidecar does
type mockSidecar struct {
	mu    sync.Mutex
	plots []PlotData
	fail  int // Number of requests to reject before succeeding
}

func (m *mockSidecar) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/plot", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if m.fail > 0 {
			m.fail--
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(PlottingResponse{Success: false, Message: "busy"})
			return
		}

		body, _ := io.ReadAll(r.Body)
		var plot PlotData
		if err := json.Unmarshal(body, &plot); err != nil {
			t.Errorf("Sidecar received invalid JSON: %v", err)
		}
		m.plots = append(m.plots, plot)
		json.NewEncoder(w).Encode(PlottingResponse{Success: true, Message: "ok", PlotID: "p1"})
	})
	mux.HandleFunc("/api/batch-plot", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Plots []PlotData `json:"plots"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(BatchPlottingResponse{
			Success: true,
			Summary: BatchSummary{TotalPlots: len(payload.Plots), Successful: len(payload.Plots)},
		})
	})
	return mux
}

func newTestService(url string) *PlottingService {
	config := DefaultPlottingServiceConfig()
	config.BaseURL = url
	config.RetryDelay = time.Millisecond
	ps := NewPlottingService(config)
	ps.Enable()
	return ps
}

func TestPlottingServiceSendAndHealth(t *testing.T) {
	sidecar := &mockSidecar{}
	server := httptest.NewServer(sidecar.handler(t))
	defer server.Close()

	ps := newTestService(server.URL)

	if err := ps.CheckHealth(); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}

	resp, err := ps.SendPlotData(*PlotPitch("Pitch/target", []float32{1, 2}))
	if err != nil {
		t.Fatalf("SendPlotData failed: %v", err)
	}
	if !resp.Success || resp.PlotID != "p1" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	batch, err := ps.BatchSendPlots([]PlotData{{Title: "a"}, {Title: "b"}})
	if err != nil {
		t.Fatalf("BatchSendPlots failed: %v", err)
	}
	if batch.Summary.TotalPlots != 2 {
		t.Errorf("Expected 2 plots in batch summary, got %d", batch.Summary.TotalPlots)
	}
}

func TestPlottingServiceRetry(t *testing.T) {
	sidecar := &mockSidecar{fail: 2}
	server := httptest.NewServer(sidecar.handler(t))
	defer server.Close()

	ps := newTestService(server.URL)

	if _, err := ps.SendPlotDataWithRetry(PlotData{Title: "retry"}); err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if len(sidecar.plots) != 1 {
		t.Errorf("Expected exactly one accepted plot, got %d", len(sidecar.plots))
	}

	sidecar.fail = 5
	if _, err := ps.SendPlotDataWithRetry(PlotData{Title: "fail"}); err == nil {
		t.Error("Expected failure after exhausting retries")
	}
}

func TestPlottingServiceWriterMethods(t *testing.T) {
	sidecar := &mockSidecar{}
	server := httptest.NewServer(sidecar.handler(t))
	defer server.Close()

	ps := newTestService(server.URL)

	if err := ps.AddFigure("Generated/postnet", PlotMel("", [][]float32{{1, 2}}), 1000); err != nil {
		t.Fatalf("AddFigure failed: %v", err)
	}
	if err := ps.AddHistogram("Duration_Histo/val", []float32{1, 2, 3}, 1000); err != nil {
		t.Fatalf("AddHistogram failed: %v", err)
	}
	if err := ps.AddScalar("Mel_Loss/train", 1, 1000); err != nil {
		t.Errorf("AddScalar should be a no-op, got %v", err)
	}

	if len(sidecar.plots) != 2 {
		t.Fatalf("Expected 2 plots, got %d", len(sidecar.plots))
	}
	fig := sidecar.plots[0]
	if fig.Title != "Generated/postnet" || fig.ModelName != "forward_tacotron" {
		t.Errorf("Figure not stamped with tag and model: %+v", fig)
	}
	if step, ok := fig.Metrics["step"].(float64); !ok || step != 1000 {
		t.Errorf("Expected step 1000 in metrics, got %v", fig.Metrics["step"])
	}
	if sidecar.plots[1].PlotType != DistributionHistogram {
		t.Errorf("Expected histogram plot, got %s", sidecar.plots[1].PlotType)
	}

	if err := ps.AddFigure("nil", nil, 1); err == nil {
		t.Error("Expected error for nil figure")
	}
}
