package training

import (
	"context"

	"github.com/pkg/errors"
)

// Train runs every stage of the schedule whose max step the model has not
// reached yet. Stages are checked in order against the live step, so a model
// restored mid-curriculum resumes at the right stage. Skipped stages build no
// datasets.
func (ft *ForwardTrainer) Train(ctx context.Context, model Model, opt Optimizer) error {
	for i, stage := range ft.Config.Schedule {
		index := i + 1
		if model.GlobalStep().Value() >= stage.MaxStep {
			continue
		}

		trainSet, valSet, err := ft.Datasets(stage.BatchSize)
		if err != nil {
			return errors.WithMessagef(err, "session %d: failed to build datasets", index)
		}

		session, err := NewSession(index, stage, trainSet, valSet)
		if err != nil {
			return err
		}

		if err := ft.TrainSession(ctx, model, opt, session); err != nil {
			return errors.WithMessagef(err, "session %d", index)
		}
	}
	return nil
}
