package training

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/metrics"
	"github.com/tsawler/go-forward/tensor"
)

// CheckpointTag names the checkpoints written by ForwardTrainer.
const CheckpointTag = "forward"

// SaveOptions controls a single checkpoint save.
type SaveOptions struct {
	Name   string // Also write a named checkpoint when set
	Silent bool   // Suppress progress messages
}

// CheckpointSink persists the model and optimizer. Every save refreshes the
// latest checkpoint for tag.
type CheckpointSink interface {
	Save(tag string, model Model, opt Optimizer, opts SaveOptions) error
}

// ForwardTrainer drives the staged training of a ForwardTacotron-style model.
type ForwardTrainer struct {
	Config      Config
	Datasets    DatasetFunc
	Checkpoints CheckpointSink
	Writer      metrics.Writer
	Diagnostics *DiagnosticsEmitter
	Out         io.Writer

	l1 MaskedLoss
}

// NewForwardTrainer creates a trainer. Diagnostics are emitted to writer
// without audio until a vocoder is attached through the Diagnostics field.
func NewForwardTrainer(config Config, datasets DatasetFunc, sink CheckpointSink, writer metrics.Writer) (*ForwardTrainer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid training config")
	}
	if datasets == nil {
		return nil, errors.New("dataset constructor is required")
	}
	if sink == nil {
		return nil, errors.New("checkpoint sink is required")
	}
	if writer == nil {
		writer = metrics.Discard
	}

	return &ForwardTrainer{
		Config:      config,
		Datasets:    datasets,
		Checkpoints: sink,
		Writer:      writer,
		Diagnostics: NewDiagnosticsEmitter(writer, nil, config.SampleRate),
		Out:         os.Stdout,
		l1:          NewMaskedL1(),
	}, nil
}

// Loss weights of the combined objective.
const (
	melWeight      = 1.0
	durationWeight = 0.1
	pitchWeight    = 0.1
	silenceWeight  = 0.1
)

// lossTerms holds the five per-batch loss components.
type lossTerms struct {
	melPre, melPost, duration, pitch, silence float64
}

func (l lossTerms) mel() float64 {
	return l.melPre + l.melPost
}

// total is the weighted training objective.
func (l lossTerms) total() float64 {
	return melWeight*(l.melPre+l.melPost) +
		durationWeight*l.duration + pitchWeight*l.pitch + silenceWeight*l.silence
}

func (ft *ForwardTrainer) loss() MaskedLoss {
	if ft.l1 == nil {
		ft.l1 = NewMaskedL1()
	}
	return ft.l1
}

// computeLosses evaluates the five masked L1 terms of a prediction.
func computeLosses(l1 MaskedLoss, pred *Prediction, batch *Batch) (lossTerms, error) {
	var terms lossTerms
	items := []struct {
		name    string
		pred    *tensor.Tensor
		target  *tensor.Tensor
		lengths *tensor.Tensor
		dst     *float64
	}{
		{"mel", pred.MelPre, batch.Mel, batch.MelLens, &terms.melPre},
		{"mel postnet", pred.MelPost, batch.Mel, batch.MelLens, &terms.melPost},
		{"duration", pred.Duration, batch.Durations, batch.TokenLens, &terms.duration},
		{"pitch", pred.Pitch, batch.Pitch, batch.TokenLens, &terms.pitch},
		{"silence", pred.Silence, batch.Silence, batch.TokenLens, &terms.silence},
	}
	for _, it := range items {
		loss, err := l1.Forward(it.pred, it.target, it.lengths)
		if err != nil {
			return terms, errors.WithMessagef(err, "%s loss", it.name)
		}
		v, err := loss.Item()
		if err != nil {
			return terms, errors.WithMessagef(err, "%s loss", it.name)
		}
		*it.dst = v
	}
	return terms, nil
}

// lossGradients returns the gradient of the weighted objective with respect
// to each output head.
func lossGradients(l1 MaskedLoss, pred *Prediction, batch *Batch) (*Prediction, error) {
	grad := &Prediction{}
	items := []struct {
		name    string
		pred    *tensor.Tensor
		target  *tensor.Tensor
		lengths *tensor.Tensor
		weight  float64
		dst     **tensor.Tensor
	}{
		{"mel", pred.MelPre, batch.Mel, batch.MelLens, melWeight, &grad.MelPre},
		{"mel postnet", pred.MelPost, batch.Mel, batch.MelLens, melWeight, &grad.MelPost},
		{"duration", pred.Duration, batch.Durations, batch.TokenLens, durationWeight, &grad.Duration},
		{"pitch", pred.Pitch, batch.Pitch, batch.TokenLens, pitchWeight, &grad.Pitch},
		{"silence", pred.Silence, batch.Silence, batch.TokenLens, silenceWeight, &grad.Silence},
	}
	for _, it := range items {
		g, err := l1.Backward(it.pred, it.target, it.lengths)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s gradient", it.name)
		}
		if it.weight != 1 {
			g, err = tensor.Mul(g, tensor.FromScalar(it.weight, tensor.Float32, g.Device))
			if err != nil {
				return nil, errors.WithMessagef(err, "%s gradient", it.name)
			}
		}
		*it.dst = g
	}
	return grad, nil
}

// TrainSession trains until the model's step reaches the session's max step.
// The epoch count is rounded up, so the final step may overshoot the target
// by up to one epoch.
func (ft *ForwardTrainer) TrainSession(ctx context.Context, model Model, opt Optimizer, session *Session) error {
	step := model.GlobalStep()
	remaining := session.MaxStep() - step.Value()
	if remaining <= 0 {
		return nil
	}

	trainSet := session.TrainSet()
	totalIters := trainSet.Len()
	if totalIters == 0 {
		return errors.Errorf("session %d: training set has no batches", session.Index())
	}
	epochs := remaining/totalIters + 1

	out := ft.out()
	SimpleTable(out, []TableColumn{
		{Heading: "Steps", Value: fmt.Sprintf("%dk Steps", remaining/1000)},
		{Heading: "Batch Size", Value: fmt.Sprintf("%d", session.BatchSize())},
		{Heading: "Learning Rate", Value: fmt.Sprintf("%g", session.LR())},
	})

	device := modelDevice(model)
	var melAvg, durAvg, silAvg, pitchAvg, durationAvg Averager

	for e := 1; e <= epochs; e++ {
		opt.SetLR(session.LR())
		trainSet.Reset()

		var durHats, durTargets []*tensor.Tensor
		for i := 1; ; i++ {
			if err := ctx.Err(); err != nil {
				if saveErr := ft.Checkpoints.Save(CheckpointTag, model, opt, SaveOptions{Silent: true}); saveErr != nil {
					return errors.WithMessagef(saveErr, "failed to save checkpoint after interruption at step %d", step.Value())
				}
				return errors.Wrapf(err, "training interrupted at step %d", step.Value())
			}

			batch, err := trainSet.Next()
			if err != nil {
				return errors.WithMessagef(err, "epoch %d batch %d", e, i)
			}
			if batch == nil {
				break
			}

			start := time.Now()
			model.Train()
			batch, err = batch.ToDevice(device)
			if err != nil {
				return err
			}

			pred, err := model.Forward(batch.forwardInput())
			if err != nil {
				return errors.WithMessagef(err, "forward pass failed at step %d", step.Value())
			}

			terms, err := computeLosses(ft.loss(), pred, batch)
			if err != nil {
				return errors.WithMessagef(err, "step %d", step.Value())
			}
			durHats = append(durHats, pred.Duration)
			durTargets = append(durTargets, batch.Durations)

			grad, err := lossGradients(ft.loss(), pred, batch)
			if err != nil {
				return errors.WithMessagef(err, "step %d", step.Value())
			}

			opt.ZeroGrad()
			if err := model.Backward(grad); err != nil {
				return errors.WithMessagef(err, "backward pass failed at step %d", step.Value())
			}
			ClipGradNorm(model.Parameters(), ft.Config.ClipGradNorm)
			if err := opt.Step(); err != nil {
				return errors.WithMessagef(err, "optimizer step failed at step %d", step.Value())
			}
			current := step.advance()
			k := current / 1000

			melAvg.Add(terms.mel())
			durAvg.Add(terms.duration)
			silAvg.Add(terms.silence)
			pitchAvg.Add(terms.pitch)
			durationAvg.Add(time.Since(start).Seconds())
			speed := 1 / durationAvg.Get()

			msg := fmt.Sprintf("| Epoch: %d/%d (%d/%d) | Mel Loss: %#.4g | Dur Loss: %#.4g| Sil Loss: %#.4g | Pitch Loss: %#.4g | %#.2g steps/s | Step: %dk | ",
				e, epochs, i, totalIters, melAvg.Get(), durAvg.Get(), silAvg.Get(), pitchAvg.Get(), speed, k)

			if ft.Config.CheckpointDue(current) {
				name := fmt.Sprintf("forward_step%dK", k)
				if err := ft.Checkpoints.Save(CheckpointTag, model, opt, SaveOptions{Name: name, Silent: true}); err != nil {
					return errors.WithMessagef(err, "failed to save checkpoint %s", name)
				}
			}

			if ft.Config.DiagnosticsDue(current) && ft.Diagnostics != nil {
				result := ft.Diagnostics.Emit(model, session.ValSample(), current)
				if result.Err != nil {
					fmt.Fprintf(out, "\nWarning: diagnostics at step %d failed: %v\n", current, result.Err)
				}
			}

			if err := ft.recordTrainScalars(terms, session, current); err != nil {
				return err
			}

			Stream(out, msg)
		}

		if err := ft.endEpoch(model, opt, session, durHats, durTargets); err != nil {
			return errors.WithMessagef(err, "epoch %d", e)
		}

		melAvg.Reset()
		durationAvg.Reset()
		pitchAvg.Reset()
		durAvg.Reset()
		silAvg.Reset()
		fmt.Fprintln(out, " ")
	}

	return nil
}

func (ft *ForwardTrainer) recordTrainScalars(terms lossTerms, session *Session, step int) error {
	scalars := []struct {
		tag   string
		value float64
	}{
		{"Mel_Loss/train", terms.mel()},
		{"Pitch_Loss/train", terms.pitch},
		{"Duration_Loss/train", terms.duration},
		{"Silence_Loss/train", terms.silence},
		{"Params/batch_size", float64(session.BatchSize())},
		{"Params/learning_rate", session.LR()},
	}
	for _, s := range scalars {
		if err := ft.Writer.AddScalar(s.tag, s.value, step); err != nil {
			return errors.WithMessagef(err, "failed to record %s", s.tag)
		}
	}
	return nil
}

// endEpoch validates, records epoch metrics and refreshes the latest checkpoint.
func (ft *ForwardTrainer) endEpoch(model Model, opt Optimizer, session *Session, durHats, durTargets []*tensor.Tensor) error {
	step := model.GlobalStep().Value()

	val, err := Evaluate(model, session.ValSet())
	if err != nil {
		return errors.WithMessage(err, "validation failed")
	}

	scalars := []struct {
		tag   string
		value float64
	}{
		{"Mel_Loss/val", val.MelLoss},
		{"Duration_Loss/val", val.DurationLoss},
		{"Silence_Loss/val", val.SilenceLoss},
		{"Pitch_Loss/val", val.PitchLoss},
	}
	for _, s := range scalars {
		if err := ft.Writer.AddScalar(s.tag, s.value, step); err != nil {
			return errors.WithMessagef(err, "failed to record %s", s.tag)
		}
	}

	histograms := []struct {
		tag     string
		tensors []*tensor.Tensor
	}{
		{"Duration_Histo/train", durHats},
		{"Duration_Histo/train_target", durTargets},
	}
	for _, h := range histograms {
		values, err := concatValues(h.tensors)
		if err != nil {
			return errors.WithMessagef(err, "failed to build %s", h.tag)
		}
		if err := ft.Writer.AddHistogram(h.tag, values, step); err != nil {
			return errors.WithMessagef(err, "failed to record %s", h.tag)
		}
	}
	for _, h := range []struct {
		tag string
		t   *tensor.Tensor
	}{
		{"Duration_Histo/val", val.DurationPredictions},
		{"Duration_Histo/val_target", val.DurationTargets},
	} {
		values, err := h.t.GetFloat32Data()
		if err != nil {
			return errors.WithMessagef(err, "failed to build %s", h.tag)
		}
		if err := ft.Writer.AddHistogram(h.tag, values, step); err != nil {
			return errors.WithMessagef(err, "failed to record %s", h.tag)
		}
	}

	if err := ft.Checkpoints.Save(CheckpointTag, model, opt, SaveOptions{Silent: true}); err != nil {
		return errors.WithMessage(err, "failed to save latest checkpoint")
	}
	return nil
}

// concatValues flattens and joins the given tensors into one slice.
func concatValues(tensors []*tensor.Tensor) ([]float32, error) {
	if len(tensors) == 0 {
		return nil, nil
	}
	joined, err := tensor.Concat(tensors)
	if err != nil {
		return nil, err
	}
	return joined.GetFloat32Data()
}

func (ft *ForwardTrainer) out() io.Writer {
	if ft.Out == nil {
		return io.Discard
	}
	return ft.Out
}
