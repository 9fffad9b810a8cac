package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
)

// EvalResult holds validation losses and the flattened duration predictions
// and targets of every validation batch.
type EvalResult struct {
	MelLoss      float64 // Mel plus postnet mel loss
	DurationLoss float64
	PitchLoss    float64
	SilenceLoss  float64

	DurationPredictions *tensor.Tensor
	DurationTargets     *tensor.Tensor
}

// Evaluate runs the model over the validation set without updating it. Each
// loss is the sum over batches divided by valSet.Len(). The model is in
// evaluation mode for the pass and returned to its previous mode afterwards.
func Evaluate(model Model, valSet DataSource) (*EvalResult, error) {
	wasTraining := model.IsTraining()
	model.Eval()
	defer func() {
		if wasTraining {
			model.Train()
		}
	}()

	l1 := NewMaskedL1()
	device := modelDevice(model)

	var melLoss, durLoss, pitchLoss, silLoss float64
	var durHats, durTargets []*tensor.Tensor

	valSet.Reset()
	for i := 1; ; i++ {
		batch, err := valSet.Next()
		if err != nil {
			return nil, errors.WithMessagef(err, "validation batch %d", i)
		}
		if batch == nil {
			break
		}

		batch, err = batch.ToDevice(device)
		if err != nil {
			return nil, err
		}

		pred, err := model.Forward(batch.forwardInput())
		if err != nil {
			return nil, errors.WithMessagef(err, "validation forward pass %d", i)
		}

		terms, err := computeLosses(l1, pred, batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "validation batch %d", i)
		}
		melLoss += terms.mel()
		durLoss += terms.duration
		pitchLoss += terms.pitch
		silLoss += terms.silence

		durHats = append(durHats, pred.Duration)
		durTargets = append(durTargets, batch.Durations)
	}

	if len(durHats) == 0 {
		return nil, errors.New("validation set produced no batches")
	}

	n := float64(valSet.Len())
	result := &EvalResult{
		MelLoss:      melLoss / n,
		DurationLoss: durLoss / n,
		PitchLoss:    pitchLoss / n,
		SilenceLoss:  silLoss / n,
	}

	var err error
	if result.DurationPredictions, err = tensor.Concat(durHats); err != nil {
		return nil, errors.WithMessage(err, "failed to join duration predictions")
	}
	if result.DurationTargets, err = tensor.Concat(durTargets); err != nil {
		return nil, errors.WithMessage(err, "failed to join duration targets")
	}
	return result, nil
}
