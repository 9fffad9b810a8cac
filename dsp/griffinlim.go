package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// GriffinLim reconstructs waveforms from mel spectrograms by iterative phase
// estimation. It is not safe for concurrent use.
type GriffinLim struct {
	cfg     Config
	inverse *mat.Dense // (NFFT/2+1) x NumMels
	fft     *fourier.FFT
	window  []float64 // Hann window of WinLength, zero-padded and centered in NFFT
	rng     *rand.Rand
}

// NewGriffinLim prepares the filterbank inverse and FFT plan for cfg.
func NewGriffinLim(cfg Config) (*GriffinLim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inverse, err := pseudoInverse(MelFilterbank(cfg))
	if err != nil {
		return nil, err
	}

	return &GriffinLim{
		cfg:     cfg,
		inverse: inverse,
		fft:     fourier.NewFFT(cfg.NFFT),
		window:  paddedHann(cfg.WinLength, cfg.NFFT),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Reconstruct converts a frames x NumMels log-mel spectrogram into a waveform
// of HopLength*(frames-1) samples.
func (g *GriffinLim) Reconstruct(mel [][]float32) ([]float32, error) {
	if len(mel) == 0 {
		return nil, fmt.Errorf("cannot reconstruct an empty spectrogram")
	}

	magnitude, err := melToLinear(g.inverse, mel, g.cfg.NumMels)
	if err != nil {
		return nil, err
	}

	nFreqs, frames := magnitude.Dims()
	spec := make([][]complex128, frames)
	for t := range spec {
		spec[t] = make([]complex128, nFreqs)
		for k := range spec[t] {
			phase := 2 * math.Pi * g.rng.Float64()
			spec[t][k] = cmplx.Rect(magnitude.At(k, t), phase)
		}
	}

	length := g.cfg.HopLength * (frames - 1)
	wave := g.istft(spec, length)
	for i := 0; i < g.cfg.Iterations; i++ {
		rebuilt := g.stft(wave, frames)
		for t := range spec {
			for k := range spec[t] {
				c := rebuilt[t][k]
				mag := magnitude.At(k, t)
				if abs := cmplx.Abs(c); abs > 1e-16 {
					spec[t][k] = c * complex(mag/abs, 0)
				} else {
					spec[t][k] = complex(mag, 0)
				}
			}
		}
		wave = g.istft(spec, length)
	}

	out := make([]float32, len(wave))
	for i, v := range wave {
		out[i] = float32(v)
	}
	return out, nil
}

// stft analyses a centered, reflect-padded signal into frames spectra.
func (g *GriffinLim) stft(wave []float64, frames int) [][]complex128 {
	pad := g.cfg.NFFT / 2
	padded := reflectPad(wave, pad)

	spec := make([][]complex128, frames)
	buf := make([]float64, g.cfg.NFFT)
	for t := range spec {
		start := t * g.cfg.HopLength
		for i := range buf {
			idx := start + i
			if idx < len(padded) {
				buf[i] = padded[idx] * g.window[i]
			} else {
				buf[i] = 0
			}
		}
		spec[t] = g.fft.Coefficients(nil, buf)
	}
	return spec
}

// istft overlap-adds windowed inverse transforms and removes the centering pad.
func (g *GriffinLim) istft(spec [][]complex128, length int) []float64 {
	n := g.cfg.NFFT
	total := n + g.cfg.HopLength*(len(spec)-1)
	out := make([]float64, total)
	norm := make([]float64, total)

	frame := make([]float64, n)
	for t, coeffs := range spec {
		g.fft.Sequence(frame, coeffs)
		start := t * g.cfg.HopLength
		for i, v := range frame {
			// gonum's inverse transform is unnormalized
			out[start+i] += v / float64(n) * g.window[i]
			norm[start+i] += g.window[i] * g.window[i]
		}
	}

	for i := range out {
		if norm[i] > 1e-11 {
			out[i] /= norm[i]
		}
	}

	pad := n / 2
	end := pad + length
	if end > total {
		end = total
	}
	return out[pad:end]
}

func paddedHann(winLength, nfft int) []float64 {
	window := make([]float64, nfft)
	offset := (nfft - winLength) / 2
	for i := 0; i < winLength; i++ {
		// periodic Hann
		window[offset+i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(winLength))
	}
	return window
}

func reflectPad(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	copy(out[pad:], x)
	if n < 2 {
		return out
	}
	for i := 1; i <= pad; i++ {
		out[pad-i] = x[reflectIndex(i, n)]
		out[pad+n-1+i] = x[reflectIndex(n-1-i, n)]
	}
	return out
}

// reflectIndex folds i into [0, n) by mirroring at both ends.
func reflectIndex(i, n int) int {
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
