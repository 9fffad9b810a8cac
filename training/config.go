package training

import (
	"github.com/pkg/errors"
)

// Stage is one entry of the training curriculum.
type Stage struct {
	LearningRate float64 `json:"learning_rate"`
	MaxStep      int     `json:"max_step"` // Train until the global step reaches this value
	BatchSize    int     `json:"batch_size"`
}

// Config holds the hyperparameters consumed by ForwardTrainer
type Config struct {
	Schedule        []Stage `json:"schedule"`
	ClipGradNorm    float64 `json:"clip_grad_norm"`   // Non-positive disables clipping
	CheckpointEvery int     `json:"checkpoint_every"` // Named checkpoint period in steps
	PlotEvery       int     `json:"plot_every"`       // Diagnostics period in steps
	SampleRate      int     `json:"sample_rate"`      // Sample rate of emitted audio
}

// DefaultConfig returns the standard three-stage curriculum.
func DefaultConfig() Config {
	return Config{
		Schedule: []Stage{
			{LearningRate: 1e-4, MaxStep: 10_000, BatchSize: 32},
			{LearningRate: 5e-5, MaxStep: 300_000, BatchSize: 32},
			{LearningRate: 2e-5, MaxStep: 600_000, BatchSize: 32},
		},
		ClipGradNorm:    1.0,
		CheckpointEvery: 10_000,
		PlotEvery:       1_000,
		SampleRate:      22050,
	}
}

// Validate checks the configuration for values the trainer cannot run with.
func (c Config) Validate() error {
	if len(c.Schedule) == 0 {
		return errors.New("schedule must contain at least one stage")
	}
	for i, s := range c.Schedule {
		if s.LearningRate <= 0 {
			return errors.Errorf("stage %d: learning rate must be positive, got %g", i+1, s.LearningRate)
		}
		if s.BatchSize <= 0 {
			return errors.Errorf("stage %d: batch size must be positive, got %d", i+1, s.BatchSize)
		}
		if s.MaxStep < 0 {
			return errors.Errorf("stage %d: max step cannot be negative, got %d", i+1, s.MaxStep)
		}
	}
	if c.SampleRate <= 0 {
		return errors.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	return nil
}

// CheckpointDue reports whether a named checkpoint is saved at step.
func (c Config) CheckpointDue(step int) bool {
	return c.CheckpointEvery > 0 && step%c.CheckpointEvery == 0
}

// DiagnosticsDue reports whether diagnostics are generated at step.
func (c Config) DiagnosticsDue(step int) bool {
	return c.PlotEvery > 0 && step%c.PlotEvery == 0
}
