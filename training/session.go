package training

import (
	"github.com/pkg/errors"
)

// Session describes one stage of the curriculum as it is being trained.
// It is immutable once built.
type Session struct {
	index     int
	r         int
	lr        float64
	maxStep   int
	batchSize int
	trainSet  DataSource
	valSet    DataSource
	valSample *Batch
}

// NewSession builds the descriptor for stage index (1-based). The first
// validation batch is kept as the fixed diagnostics sample.
func NewSession(index int, stage Stage, trainSet, valSet DataSource) (*Session, error) {
	if trainSet == nil || valSet == nil {
		return nil, errors.New("train and validation sources are required")
	}
	if trainSet.Len() == 0 {
		return nil, errors.Errorf("session %d: training set has no batches", index)
	}

	valSet.Reset()
	sample, err := valSet.Next()
	if err != nil {
		return nil, errors.WithMessagef(err, "session %d: failed to load validation sample", index)
	}
	if sample == nil {
		return nil, errors.Errorf("session %d: validation set has no batches", index)
	}

	return &Session{
		index:     index,
		r:         1,
		lr:        stage.LearningRate,
		maxStep:   stage.MaxStep,
		batchSize: stage.BatchSize,
		trainSet:  trainSet,
		valSet:    valSet,
		valSample: sample,
	}, nil
}

// Index returns the 1-based position of the stage in the schedule.
func (s *Session) Index() int {
	return s.index
}

// R returns the reduction factor, which is always 1 for this model.
func (s *Session) R() int {
	return s.r
}

func (s *Session) LR() float64 {
	return s.lr
}

func (s *Session) MaxStep() int {
	return s.maxStep
}

func (s *Session) BatchSize() int {
	return s.batchSize
}

func (s *Session) TrainSet() DataSource {
	return s.trainSet
}

func (s *Session) ValSet() DataSource {
	return s.valSet
}

// ValSample returns the fixed batch used for diagnostics.
func (s *Session) ValSample() *Batch {
	return s.valSample
}
