package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/metrics"
	"github.com/tsawler/go-forward/tensor"
	"github.com/tsawler/go-forward/visualization"
)

// DiagnosticsMaxFrames limits the mel frames plotted and vocoded for the
// teacher-forced sample.
const DiagnosticsMaxFrames = 600

// Vocoder turns a frames x mel bins spectrogram into a waveform.
type Vocoder interface {
	Reconstruct(mel [][]float32) ([]float32, error)
}

// DiagnosticsResult reports what an Emit call produced. Err holds the failure
// that stopped it, including recovered panics; records written before the
// failure stay written.
type DiagnosticsResult struct {
	Step    int
	Figures int
	Audio   int
	Err     error
}

// DiagnosticsEmitter writes figures and audio for a fixed validation sample.
type DiagnosticsEmitter struct {
	writer     metrics.Writer
	vocoder    Vocoder
	sampleRate int
}

// NewDiagnosticsEmitter creates an emitter. With a nil vocoder only figures
// are written.
func NewDiagnosticsEmitter(writer metrics.Writer, vocoder Vocoder, sampleRate int) *DiagnosticsEmitter {
	if writer == nil {
		writer = metrics.Discard
	}
	return &DiagnosticsEmitter{
		writer:     writer,
		vocoder:    vocoder,
		sampleRate: sampleRate,
	}
}

// SetVocoder attaches the vocoder used for audio diagnostics.
func (d *DiagnosticsEmitter) SetVocoder(v Vocoder) {
	d.vocoder = v
}

// Emit runs a teacher-forced pass and a free generation on the first example
// of sample and records the results at step. It never fails the caller: any
// error or panic is reported in the result.
func (d *DiagnosticsEmitter) Emit(model Model, sample *Batch, step int) (result DiagnosticsResult) {
	result.Step = step
	defer func() {
		if r := recover(); r != nil {
			result.Err = errors.Errorf("panic: %v", r)
		}
	}()

	wasTraining := model.IsTraining()
	model.Eval()
	defer func() {
		if wasTraining {
			model.Train()
		}
	}()

	result.Err = d.emit(model, sample, step, &result)
	return result
}

func (d *DiagnosticsEmitter) emit(model Model, sample *Batch, step int, result *DiagnosticsResult) error {
	if sample == nil {
		return errors.New("no validation sample")
	}

	batch, err := sample.ToDevice(modelDevice(model))
	if err != nil {
		return err
	}

	pred, err := model.Forward(batch.forwardInput())
	if err != nil {
		return errors.WithMessage(err, "teacher-forced pass failed")
	}

	m1Hat, err := pred.MelPre.Rows(0, DiagnosticsMaxFrames)
	if err != nil {
		return errors.WithMessage(err, "mel prediction")
	}
	m2Hat, err := pred.MelPost.Rows(0, DiagnosticsMaxFrames)
	if err != nil {
		return errors.WithMessage(err, "postnet mel prediction")
	}
	target, err := batch.Mel.Rows(0, DiagnosticsMaxFrames)
	if err != nil {
		return errors.WithMessage(err, "target mel")
	}

	curves := []struct {
		tag string
		t   *tensor.Tensor
	}{
		{"Silence/target", batch.Silence},
		{"Silence/ground_truth_aligned", pred.Silence},
		{"Pitch/target", batch.Pitch},
		{"Pitch/ground_truth_aligned", pred.Pitch},
	}
	for _, c := range curves {
		values, err := floatRow(c.t)
		if err != nil {
			return errors.WithMessage(err, c.tag)
		}
		if err := d.figure(result, c.tag, visualization.PlotPitch(c.tag, values), step); err != nil {
			return err
		}
	}

	targetFig := visualization.PlotMel("Ground_Truth_Aligned/target", target)
	mels := []struct {
		tag string
		fig *visualization.PlotData
	}{
		{"Ground_Truth_Aligned/target", targetFig},
		{"Ground_Truth_Aligned/linear", visualization.PlotMel("Ground_Truth_Aligned/linear", m1Hat)},
		{"Ground_Truth_Aligned/postnet", visualization.PlotMel("Ground_Truth_Aligned/postnet", m2Hat)},
	}
	for _, m := range mels {
		if err := d.figure(result, m.tag, m.fig, step); err != nil {
			return err
		}
	}

	var targetWav []float32
	if d.vocoder != nil {
		postnetWav, err := d.vocoder.Reconstruct(m2Hat)
		if err != nil {
			return errors.WithMessage(err, "failed to vocode postnet mel")
		}
		targetWav, err = d.vocoder.Reconstruct(target)
		if err != nil {
			return errors.WithMessage(err, "failed to vocode target mel")
		}
		if err := d.audio(result, "Ground_Truth_Aligned/target_wav", targetWav, step); err != nil {
			return err
		}
		if err := d.audio(result, "Ground_Truth_Aligned/postnet_wav", postnetWav, step); err != nil {
			return err
		}
	}

	tokenLens, err := batch.TokenLens.GetInt32Data()
	if err != nil {
		return errors.WithMessage(err, "token lengths")
	}
	if tokenLens[0] <= 0 {
		return errors.Errorf("first sample has no tokens to generate from (length %d)", tokenLens[0])
	}
	row, err := batch.Tokens.Row(0, int(tokenLens[0]))
	if err != nil {
		return errors.WithMessage(err, "tokens")
	}
	tokens, ok := row.([]int32)
	if !ok {
		return errors.Errorf("tokens must be Int32, got %T", row)
	}

	gen, err := model.Generate(append([]int32(nil), tokens...))
	if err != nil {
		return errors.WithMessage(err, "generation failed")
	}

	genPitch, err := floatRow(gen.Pitch)
	if err != nil {
		return errors.WithMessage(err, "generated pitch")
	}
	genSilence, err := floatRow(gen.Silence)
	if err != nil {
		return errors.WithMessage(err, "generated silence")
	}
	genM1, err := gen.MelPre.Rows(0, 0)
	if err != nil {
		return errors.WithMessage(err, "generated mel")
	}
	genM2, err := gen.MelPost.Rows(0, 0)
	if err != nil {
		return errors.WithMessage(err, "generated postnet mel")
	}

	generated := []struct {
		tag string
		fig *visualization.PlotData
	}{
		{"Pitch/generated", visualization.PlotPitch("Pitch/generated", genPitch)},
		{"Silence/generated", visualization.PlotPitch("Silence/generated", genSilence)},
		{"Generated/target", targetFig},
		{"Generated/linear", visualization.PlotMel("Generated/linear", genM1)},
		{"Generated/postnet", visualization.PlotMel("Generated/postnet", genM2)},
	}
	for _, g := range generated {
		if err := d.figure(result, g.tag, g.fig, step); err != nil {
			return err
		}
	}

	if d.vocoder != nil {
		genWav, err := d.vocoder.Reconstruct(genM2)
		if err != nil {
			return errors.WithMessage(err, "failed to vocode generated mel")
		}
		if err := d.audio(result, "Generated/target_wav", targetWav, step); err != nil {
			return err
		}
		if err := d.audio(result, "Generated/postnet_wav", genWav, step); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiagnosticsEmitter) figure(result *DiagnosticsResult, tag string, fig *visualization.PlotData, step int) error {
	if err := d.writer.AddFigure(tag, fig, step); err != nil {
		return errors.WithMessagef(err, "failed to record %s", tag)
	}
	result.Figures++
	return nil
}

func (d *DiagnosticsEmitter) audio(result *DiagnosticsResult, tag string, wave []float32, step int) error {
	if err := d.writer.AddAudio(tag, wave, step, d.sampleRate); err != nil {
		return errors.WithMessagef(err, "failed to record %s", tag)
	}
	result.Audio++
	return nil
}

// floatRow returns the first row of a [B, T] Float32 tensor.
func floatRow(t *tensor.Tensor) ([]float32, error) {
	if t == nil {
		return nil, errors.New("missing tensor")
	}
	row, err := t.Row(0, 0)
	if err != nil {
		return nil, err
	}
	values, ok := row.([]float32)
	if !ok {
		return nil, errors.Errorf("expected Float32 values, got %T", row)
	}
	return values, nil
}
