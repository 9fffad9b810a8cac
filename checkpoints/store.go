package checkpoints

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/training"
)

// Config configures where and how checkpoints are written
type Config struct {
	Directory string           `json:"directory"` // Root directory, one subdirectory per model tag
	Format    CheckpointFormat `json:"format"`    // JSON or Proto
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Directory: "./checkpoints",
		Format:    FormatJSON,
	}
}

// Store keeps a "latest" checkpoint per model tag plus any number of named
// ones. Every checkpoint is a pair of files: weights and optimizer state.
type Store struct {
	config Config
	saver  *CheckpointSaver
	out    io.Writer
}

// NewStore creates a store. Progress messages of non-silent saves go to out,
// or to stdout when out is nil.
func NewStore(config Config, out io.Writer) *Store {
	if out == nil {
		out = os.Stdout
	}
	return &Store{
		config: config,
		saver:  NewCheckpointSaver(config.Format),
		out:    out,
	}
}

// Paths returns the weights and optimizer files of the named checkpoint, or
// of the latest one when name is empty.
func (s *Store) Paths(tag, name string) (weights, optim string) {
	if name == "" {
		name = "latest"
	}
	dir := filepath.Join(s.config.Directory, tag)
	ext := s.config.Format.Extension()
	return filepath.Join(dir, fmt.Sprintf("%s_weights.%s", name, ext)),
		filepath.Join(dir, fmt.Sprintf("%s_optim.%s", name, ext))
}

// Exists reports whether both files of the checkpoint are present.
func (s *Store) Exists(tag, name string) bool {
	weights, optim := s.Paths(tag, name)
	return fileExists(weights) && fileExists(optim)
}

// Save writes the latest checkpoint and, when opts.Name is set, a named
// checkpoint with the same contents.
func (s *Store) Save(tag string, model training.Model, opt training.Optimizer, opts training.SaveOptions) error {
	weights, optim, err := s.snapshot(model, opt)
	if err != nil {
		return err
	}

	if err := s.savePair(tag, "", weights, optim, opts.Silent); err != nil {
		return err
	}
	if opts.Name != "" {
		if err := s.savePair(tag, opts.Name, weights, optim, opts.Silent); err != nil {
			return err
		}
	}
	return nil
}

// Restore loads the named checkpoint (latest when name is empty) into the
// model parameters and the optimizer. The returned checkpoint carries the
// saved training state; the caller seeds the model's step counter from it.
func (s *Store) Restore(tag, name string, model training.Model, opt training.Optimizer) (*Checkpoint, error) {
	weightsPath, optimPath := s.Paths(tag, name)

	weights, err := s.saver.LoadCheckpoint(weightsPath)
	if err != nil {
		return nil, err
	}
	if err := LoadWeightsIntoTensors(weights.Weights, model.Parameters()); err != nil {
		return nil, errors.WithMessagef(err, "failed to restore weights from %s", weightsPath)
	}

	if opt == nil {
		return weights, nil
	}

	optim, err := s.saver.LoadCheckpoint(optimPath)
	if err != nil {
		return nil, err
	}
	if stateful, ok := opt.(training.StatefulOptimizer); ok && optim.OptimizerState != nil {
		if err := stateful.LoadState(optim.OptimizerState); err != nil {
			return nil, errors.WithMessagef(err, "failed to restore optimizer from %s", optimPath)
		}
	} else {
		opt.SetLR(optim.TrainingState.LearningRate)
	}
	return weights, nil
}

func (s *Store) snapshot(model training.Model, opt training.Optimizer) (*Checkpoint, *Checkpoint, error) {
	state := TrainingState{
		Step:         model.GlobalStep().Value(),
		LearningRate: opt.GetLR(),
	}

	params, err := ExtractWeights(model.Parameters())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to extract weights")
	}

	weights := &Checkpoint{Weights: params, TrainingState: state}
	optim := &Checkpoint{TrainingState: state}
	if stateful, ok := opt.(training.StatefulOptimizer); ok {
		optim.OptimizerState = stateful.State()
	}
	return weights, optim, nil
}

func (s *Store) savePair(tag, name string, weights, optim *Checkpoint, silent bool) error {
	kind := "latest"
	if name != "" {
		kind = "named"
	}
	weightsPath, optimPath := s.Paths(tag, name)

	switch existing := countExisting(weightsPath, optimPath); existing {
	case 0:
		if !silent {
			fmt.Fprintf(s.out, "Creating %s checkpoint...\n", kind)
		}
		if err := os.MkdirAll(filepath.Dir(weightsPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create checkpoint directory")
		}
	case 2:
		if !silent {
			fmt.Fprintf(s.out, "Saving to existing %s checkpoint...\n", kind)
		}
	default:
		return errors.Errorf("expected either both or no files in the %s checkpoint to exist, but found exactly one", kind)
	}

	if !silent {
		fmt.Fprintf(s.out, "Saving %s weights: %s\n", kind, weightsPath)
	}
	if err := s.saver.SaveCheckpoint(weights, weightsPath); err != nil {
		return errors.WithMessagef(err, "failed to save %s weights", kind)
	}

	if !silent {
		fmt.Fprintf(s.out, "Saving %s optimizer state: %s\n", kind, optimPath)
	}
	if err := s.saver.SaveCheckpoint(optim, optimPath); err != nil {
		return errors.WithMessagef(err, "failed to save %s optimizer state", kind)
	}
	return nil
}

func countExisting(paths ...string) int {
	n := 0
	for _, p := range paths {
		if fileExists(p) {
			n++
		}
	}
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
