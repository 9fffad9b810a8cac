package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PlottingService handles communication with the sidecar plotting application.
// It also satisfies the metrics writer contract so that diagnostics figures
// can be rendered by the sidecar while training runs.
type PlottingService struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
	config     PlottingServiceConfig
	enabled    bool
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	ModelName     string        `json:"model_name"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary,omitempty"`
}

// BatchPlotResult represents a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		ModelName:     "forward_tacotron",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a new plotting service client
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL:   config.BaseURL,
		modelName: config.ModelName,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:  config,
		enabled: false,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable disables the plotting service
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

// SendPlotData sends plot data to the sidecar plotting service
func (ps *PlottingService) SendPlotData(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	var plotResponse PlottingResponse
	if err := ps.post("/api/plot", plotData, &plotResponse); err != nil {
		if plotResponse.Message != "" {
			return &plotResponse, err
		}
		return nil, err
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry sends plot data, retrying with the configured attempts and delay
func (ps *PlottingService) SendPlotDataWithRetry(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	attempts := ps.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := ps.SendPlotData(plotData)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Wait before retry (except for the last attempt)
		if attempt < attempts-1 {
			time.Sleep(ps.config.RetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", attempts, lastErr)
}

// BatchSendPlots sends multiple plots in a single request
func (ps *PlottingService) BatchSendPlots(plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	batchPayload := map[string]interface{}{
		"plots": plotDataList,
		"batch": true,
	}

	var batchResponse BatchPlottingResponse
	if err := ps.post("/api/batch-plot", batchPayload, &batchResponse); err != nil {
		if batchResponse.Message != "" {
			return &batchResponse, err
		}
		return nil, err
	}
	return &batchResponse, nil
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth() error {
	if !ps.enabled {
		return fmt.Errorf("plotting service is disabled")
	}

	url := fmt.Sprintf("%s/health", ps.baseURL)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// AddFigure sends a diagnostics figure tagged with the training step
func (ps *PlottingService) AddFigure(tag string, fig *PlotData, step int) error {
	if fig == nil {
		return fmt.Errorf("nil figure for tag %s", tag)
	}
	plot := ps.stamp(*fig, tag, step)
	_, err := ps.SendPlotDataWithRetry(plot)
	return err
}

// AddHistogram bins values and sends them as a histogram plot
func (ps *PlottingService) AddHistogram(tag string, values []float32, step int) error {
	plot := PlotHistogram(tag, NewHistogram(values, DefaultHistogramBins))
	_, err := ps.SendPlotDataWithRetry(ps.stamp(*plot, tag, step))
	return err
}

// AddScalar is a no-op: the sidecar renders figures, not scalar streams.
func (ps *PlottingService) AddScalar(tag string, value float64, step int) error {
	return nil
}

// AddAudio is a no-op: the sidecar has no audio endpoint.
func (ps *PlottingService) AddAudio(tag string, wave []float32, step int, sampleRate int) error {
	return nil
}

func (ps *PlottingService) stamp(plot PlotData, tag string, step int) PlotData {
	plot.Title = tag
	plot.ModelName = ps.modelName
	metrics := make(map[string]interface{}, len(plot.Metrics)+1)
	for k, v := range plot.Metrics {
		metrics[k] = v
	}
	metrics["step"] = step
	plot.Metrics = metrics
	return plot
}

func (ps *PlottingService) post(path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal plot data: %w", err)
	}

	url := ps.baseURL + path
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-forward-training")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}
	return nil
}
