// Package dsp turns mel spectrograms back into audio for training
// diagnostics. Mels are natural-log magnitudes laid out as frames x bins.
package dsp

import "fmt"

// Config holds the audio analysis parameters shared by the mel filterbank
// and the Griffin-Lim vocoder.
type Config struct {
	SampleRate int     `json:"sample_rate"`
	NFFT       int     `json:"n_fft"`
	HopLength  int     `json:"hop_length"`
	WinLength  int     `json:"win_length"`
	NumMels    int     `json:"num_mels"`
	FMin       float64 `json:"fmin"`
	FMax       float64 `json:"fmax"`
	Iterations int     `json:"griffin_lim_iterations"`
	Seed       int64   `json:"seed"` // Seed for the initial phase estimate
}

// DefaultConfig returns parameters for 22.05 kHz speech with 80 mel bins.
func DefaultConfig() Config {
	return Config{
		SampleRate: 22050,
		NFFT:       2048,
		HopLength:  256,
		WinLength:  1024,
		NumMels:    80,
		FMin:       0,
		FMax:       8000,
		Iterations: 32,
		Seed:       42,
	}
}

// Validate checks that the parameters describe a usable analysis.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	case c.NFFT <= 0 || c.NFFT%2 != 0:
		return fmt.Errorf("n_fft must be a positive even number, got %d", c.NFFT)
	case c.HopLength <= 0:
		return fmt.Errorf("hop length must be positive, got %d", c.HopLength)
	case c.WinLength <= 0 || c.WinLength > c.NFFT:
		return fmt.Errorf("win length must be in (0, %d], got %d", c.NFFT, c.WinLength)
	case c.NumMels <= 0:
		return fmt.Errorf("num mels must be positive, got %d", c.NumMels)
	case c.FMin < 0 || c.FMax <= c.FMin || c.FMax > float64(c.SampleRate)/2:
		return fmt.Errorf("invalid frequency range [%g, %g] for sample rate %d", c.FMin, c.FMax, c.SampleRate)
	case c.Iterations < 0:
		return fmt.Errorf("griffin-lim iterations cannot be negative, got %d", c.Iterations)
	}
	return nil
}
