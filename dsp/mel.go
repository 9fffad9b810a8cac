package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// MelFilterbank builds the NumMels x (NFFT/2+1) matrix of triangular filters
// mapping linear magnitudes to mel magnitudes.
func MelFilterbank(cfg Config) *mat.Dense {
	nFreqs := cfg.NFFT/2 + 1
	fb := mat.NewDense(cfg.NumMels, nFreqs, nil)

	melMin, melMax := hzToMel(cfg.FMin), hzToMel(cfg.FMax)
	points := make([]float64, cfg.NumMels+2)
	for i := range points {
		points[i] = melToHz(melMin + (melMax-melMin)*float64(i)/float64(cfg.NumMels+1))
	}

	binHz := float64(cfg.SampleRate) / float64(cfg.NFFT)
	for m := 0; m < cfg.NumMels; m++ {
		lower, center, upper := points[m], points[m+1], points[m+2]
		for k := 0; k < nFreqs; k++ {
			f := float64(k) * binHz
			var w float64
			switch {
			case f > lower && f <= center:
				w = (f - lower) / (center - lower)
			case f > center && f < upper:
				w = (upper - f) / (upper - center)
			}
			fb.Set(m, k, w)
		}
	}
	return fb
}

// pseudoInverse returns the Moore-Penrose inverse of a via its SVD.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization of mel filterbank failed")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	tol := 1e-10
	if len(values) > 0 {
		r, c := a.Dims()
		tol = float64(max(r, c)) * values[0] * 1e-15
	}

	inv := make([]float64, len(values))
	for i, s := range values {
		if s > tol {
			inv[i] = 1 / s
		}
	}

	// pinv = V * diag(1/s) * U^T
	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))
	var pinv mat.Dense
	pinv.Mul(&vs, u.T())
	return &pinv, nil
}

// melToLinear maps natural-log mel frames to non-negative linear magnitudes,
// returned as (NFFT/2+1) x frames.
func melToLinear(inverse *mat.Dense, mel [][]float32, nMels int) (*mat.Dense, error) {
	frames := len(mel)
	amp := mat.NewDense(nMels, frames, nil)
	for t, frame := range mel {
		if len(frame) != nMels {
			return nil, fmt.Errorf("frame %d has %d mel bins, expected %d", t, len(frame), nMels)
		}
		for m, v := range frame {
			amp.Set(m, t, math.Exp(float64(v)))
		}
	}

	var linear mat.Dense
	linear.Mul(inverse, amp)
	linear.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, &linear)
	return &linear, nil
}
