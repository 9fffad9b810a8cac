package training

import (
	"math"

	"github.com/tsawler/go-forward/tensor"
)

// ClipGradNorm rescales the gradients of params in place so that their
// combined L2 norm does not exceed maxNorm. It returns the norm measured
// before clipping. A non-positive maxNorm disables clipping.
//
//	if ||g||_2 > max_norm:  g = g * max_norm / (||g||_2 + 1e-6)
func ClipGradNorm(params []*tensor.Tensor, maxNorm float64) float64 {
	var sumSq float64
	for _, p := range params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		for _, g := range grad.Data.([]float32) {
			sumSq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sumSq)

	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := float32(maxNorm / (norm + 1e-6))
	for _, p := range params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := grad.Data.([]float32)
		for i := range data {
			data[i] *= scale
		}
	}
	return norm
}
