package training

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
)

// stubModel echoes its teacher-forcing inputs, shifted by offset, on all five
// output heads.
type stubModel struct {
	offset float32
	nMels  int
	bias   *tensor.Tensor
	step   *GlobalStep
	train  bool

	forwardCalls  int
	backwardCalls int
	generateCalls int

	generateErr  error
	forwardPanic bool
	gradScale    float32 // Multiplies the bias gradient when non-zero
}

func newStubModel(t *testing.T, step int) *stubModel {
	t.Helper()
	bias, err := tensor.Zeros([]int{1}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("Failed to create bias: %v", err)
	}
	bias.SetRequiresGrad(true)
	return &stubModel{
		nMels: 3,
		bias:  bias,
		step:  NewGlobalStep(step),
		train: true,
	}
}

func (m *stubModel) shift(t *tensor.Tensor) (*tensor.Tensor, error) {
	if m.offset == 0 {
		return t, nil
	}
	return tensor.Add(t, tensor.FromScalar(float64(m.offset), tensor.Float32, t.Device))
}

func (m *stubModel) Forward(in *ForwardInput) (*Prediction, error) {
	m.forwardCalls++
	if m.forwardPanic {
		panic("forward exploded")
	}

	pred := &Prediction{}
	outputs := []struct {
		src *tensor.Tensor
		dst **tensor.Tensor
	}{
		{in.Mel, &pred.MelPre},
		{in.Mel, &pred.MelPost},
		{in.Durations, &pred.Duration},
		{in.Pitch, &pred.Pitch},
		{in.Silence, &pred.Silence},
	}
	for _, o := range outputs {
		t, err := m.shift(o.src)
		if err != nil {
			return nil, err
		}
		*o.dst = t
	}
	return pred, nil
}

func (m *stubModel) Backward(grad *Prediction) error {
	m.backwardCalls++
	var sum float32
	for _, g := range []*tensor.Tensor{grad.MelPre, grad.MelPost, grad.Duration, grad.Pitch, grad.Silence} {
		for _, v := range g.Data.([]float32) {
			sum += v
		}
	}
	if m.gradScale != 0 {
		sum *= m.gradScale
	}
	return m.bias.AccumulateGrad([]float32{sum})
}

func (m *stubModel) Generate(tokens []int32) (*Prediction, error) {
	m.generateCalls++
	if m.generateErr != nil {
		return nil, m.generateErr
	}

	n := len(tokens)
	pred := &Prediction{}
	var err error
	if pred.MelPre, err = tensor.Zeros([]int{1, 2 * n, m.nMels}, tensor.Float32, tensor.CPU); err != nil {
		return nil, err
	}
	if pred.MelPost, err = tensor.Zeros([]int{1, 2 * n, m.nMels}, tensor.Float32, tensor.CPU); err != nil {
		return nil, err
	}
	for _, dst := range []**tensor.Tensor{&pred.Duration, &pred.Pitch, &pred.Silence} {
		if *dst, err = tensor.Full([]int{1, n}, float32(2), tensor.Float32, tensor.CPU); err != nil {
			return nil, err
		}
	}
	return pred, nil
}

func (m *stubModel) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{m.bias}
}

func (m *stubModel) GlobalStep() *GlobalStep {
	return m.step
}

func (m *stubModel) Train() {
	m.train = true
}

func (m *stubModel) Eval() {
	m.train = false
}

func (m *stubModel) IsTraining() bool {
	return m.train
}

// countingOptimizer records calls without updating parameters. When params
// is set it zeroes their gradients and records the gradient norm at each step.
type countingOptimizer struct {
	lr        float64
	steps     int
	zeroGrads int
	lrHistory []float64
	params    []*tensor.Tensor
	gradNorms []float64
}

func (o *countingOptimizer) Step() error {
	o.steps++
	if o.params != nil {
		o.gradNorms = append(o.gradNorms, ClipGradNorm(o.params, 0))
	}
	return nil
}

func (o *countingOptimizer) ZeroGrad() {
	o.zeroGrads++
	tensor.ZeroGrad(o.params)
}

func (o *countingOptimizer) GetLR() float64 {
	return o.lr
}

func (o *countingOptimizer) SetLR(lr float64) {
	o.lr = lr
	o.lrHistory = append(o.lrHistory, lr)
}

// sliceSource serves a fixed list of batches.
type sliceSource struct {
	batches     []*Batch
	pos         int
	resets      int
	reportedLen int // Overrides Len when positive
}

func (s *sliceSource) Len() int {
	if s.reportedLen > 0 {
		return s.reportedLen
	}
	return len(s.batches)
}

func (s *sliceSource) NumSamples() int {
	n := 0
	for _, b := range s.batches {
		n += b.Size()
	}
	return n
}

func (s *sliceSource) Reset() {
	s.pos = 0
	s.resets++
}

func (s *sliceSource) Next() (*Batch, error) {
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

// recordingSink remembers every checkpoint save.
type recordingSink struct {
	saves []SaveOptions
	steps []int
	err   error
}

func (r *recordingSink) Save(tag string, model Model, opt Optimizer, opts SaveOptions) error {
	if r.err != nil {
		return r.err
	}
	r.saves = append(r.saves, opts)
	r.steps = append(r.steps, model.GlobalStep().Value())
	return nil
}

func (r *recordingSink) named() []string {
	var names []string
	for _, s := range r.saves {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// makeSample builds a sample whose targets are all value.
func makeSample(id string, tokens, frames, mels int, value float32) *Sample {
	s := &Sample{ID: id}
	for i := 0; i < tokens; i++ {
		s.Tokens = append(s.Tokens, int32(i+1))
		s.Durations = append(s.Durations, value)
		s.Pitch = append(s.Pitch, value)
		s.Silence = append(s.Silence, value)
	}
	for t := 0; t < frames; t++ {
		frame := make([]float32, mels)
		for f := range frame {
			frame[f] = value
		}
		s.Mel = append(s.Mel, frame)
	}
	return s
}

// makeBatches builds n two-sample batches of ragged length.
func makeBatches(t *testing.T, n int, value float32) []*Batch {
	t.Helper()
	batches := make([]*Batch, n)
	for i := range batches {
		b, err := CollateSamples([]*Sample{
			makeSample("a", 4, 6, 3, value),
			makeSample("b", 2, 3, 3, value),
		}, 0, tensor.CPU)
		if err != nil {
			t.Fatalf("CollateSamples failed: %v", err)
		}
		batches[i] = b
	}
	return batches
}

func newTestSession(t *testing.T, maxStep, trainBatches int) *Session {
	t.Helper()
	session, err := NewSession(1, Stage{LearningRate: 1e-3, MaxStep: maxStep, BatchSize: 2},
		&sliceSource{batches: makeBatches(t, trainBatches, 0.5)},
		&sliceSource{batches: makeBatches(t, 2, 0.5)})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session
}

var errGenerate = errors.New("generation unavailable")
