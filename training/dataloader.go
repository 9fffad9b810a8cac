package training

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
)

// Sample is one utterance with its aligned per-token targets.
type Sample struct {
	ID        string
	Tokens    []int32
	Mel       [][]float32 // frames x mel bins
	Durations []float32   // per token
	Pitch     []float32   // per token
	Silence   []float32   // per token
}

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                     // Total number of samples
	Get(idx int) (*Sample, error) // Returns a single sample
}

// MemoryDataset keeps samples in memory.
type MemoryDataset struct {
	samples []*Sample
}

// NewMemoryDataset validates and wraps samples.
func NewMemoryDataset(samples []*Sample) (*MemoryDataset, error) {
	for i, s := range samples {
		if err := validateSample(s); err != nil {
			return nil, errors.WithMessagef(err, "sample %d", i)
		}
	}
	return &MemoryDataset{samples: samples}, nil
}

// Len returns the number of samples in the dataset
func (ds *MemoryDataset) Len() int {
	return len(ds.samples)
}

// Get returns a sample at the given index
func (ds *MemoryDataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= len(ds.samples) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(ds.samples))
	}
	return ds.samples[idx], nil
}

// SubsetDataset exposes the window [offset, offset+limit) of another dataset.
type SubsetDataset struct {
	originalDataset Dataset
	offset          int
	limit           int
}

// NewSubsetDataset creates a new SubsetDataset that wraps an existing dataset.
// The window is clipped to the original dataset's length.
func NewSubsetDataset(original Dataset, offset, limit int) (*SubsetDataset, error) {
	if offset < 0 || limit < 0 {
		return nil, errors.Errorf("offset and limit cannot be negative")
	}
	if offset > original.Len() {
		offset = original.Len()
	}
	if offset+limit > original.Len() {
		limit = original.Len() - offset
	}
	return &SubsetDataset{
		originalDataset: original,
		offset:          offset,
		limit:           limit,
	}, nil
}

// Len returns the number of samples in the subset.
func (sd *SubsetDataset) Len() int {
	return sd.limit
}

// Get returns a sample at the given index from the original dataset.
func (sd *SubsetDataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= sd.limit {
		return nil, errors.Errorf("index out of bounds for subset: %d (limit: %d)", idx, sd.limit)
	}
	return sd.originalDataset.Get(sd.offset + idx)
}

// DataLoaderConfig holds configuration for the data loader
type DataLoaderConfig struct {
	BatchSize int
	Shuffle   bool              // Reshuffle sample order every epoch
	Binned    bool              // Group similar mel lengths, shuffling inside bins of 3 batches
	Seed      int64             // Seed for the shuffling source
	Device    tensor.DeviceType // Device label of produced batches
	MelPad    float32           // Value used for padded mel frames
}

// DataLoader provides batching, shuffling, and padding of variable-length samples
type DataLoader struct {
	dataset  Dataset
	config   DataLoaderConfig
	rng      *rand.Rand
	indices  []int
	position int
	mutex    sync.Mutex
}

// NewDataLoader creates a new DataLoader
func NewDataLoader(dataset Dataset, config DataLoaderConfig) (*DataLoader, error) {
	if dataset == nil {
		return nil, errors.New("dataset cannot be nil")
	}
	if config.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if dataset.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	dl := &DataLoader{
		dataset: dataset,
		config:  config,
		rng:     rand.New(rand.NewSource(config.Seed)),
		indices: indices,
	}
	if config.Binned {
		if err := dl.sortByLength(); err != nil {
			return nil, err
		}
	}
	return dl, nil
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.config.BatchSize - 1) / dl.config.BatchSize
}

// NumSamples returns the number of samples behind the loader.
func (dl *DataLoader) NumSamples() int {
	return dl.dataset.Len()
}

// Reset resets the data loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	switch {
	case dl.config.Binned:
		dl.shuffleBins()
	case dl.config.Shuffle:
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.config.BatchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	samples := make([]*Sample, len(batchIndices))
	for i, idx := range batchIndices {
		s, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}
		samples[i] = s
	}

	batch, err := CollateSamples(samples, dl.config.MelPad, dl.config.Device)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load batch")
	}
	return batch, nil
}

// sortByLength orders indices by mel length once; bins are reshuffled per epoch.
func (dl *DataLoader) sortByLength() error {
	lengths := make([]int, len(dl.indices))
	for _, idx := range dl.indices {
		s, err := dl.dataset.Get(idx)
		if err != nil {
			return errors.Wrapf(err, "failed to load sample %d", idx)
		}
		lengths[idx] = len(s.Mel)
	}
	sort.SliceStable(dl.indices, func(i, j int) bool {
		return lengths[dl.indices[i]] < lengths[dl.indices[j]]
	})
	return nil
}

func (dl *DataLoader) shuffleBins() {
	binSize := dl.config.BatchSize * 3
	for start := 0; start < len(dl.indices); start += binSize {
		end := start + binSize
		if end > len(dl.indices) {
			end = len(dl.indices)
		}
		bin := dl.indices[start:end]
		dl.rng.Shuffle(len(bin), func(i, j int) {
			bin[i], bin[j] = bin[j], bin[i]
		})
	}
}

// CollateSamples pads samples to the longest token and mel sequence and packs
// them into a Batch.
func CollateSamples(samples []*Sample, melPad float32, device tensor.DeviceType) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("empty batch")
	}

	bs := len(samples)
	maxTokens, maxFrames := 0, 0
	nMels := len(samples[0].Mel[0])
	for i, s := range samples {
		if len(s.Tokens) > maxTokens {
			maxTokens = len(s.Tokens)
		}
		if len(s.Mel) > maxFrames {
			maxFrames = len(s.Mel)
		}
		if len(s.Mel[0]) != nMels {
			return nil, errors.Errorf("sample %d has %d mel bins, expected %d", i, len(s.Mel[0]), nMels)
		}
	}

	tokens := make([]int32, bs*maxTokens)
	durations := make([]float32, bs*maxTokens)
	pitch := make([]float32, bs*maxTokens)
	silence := make([]float32, bs*maxTokens)
	mel := make([]float32, bs*maxFrames*nMels)
	tokenLens := make([]int32, bs)
	melLens := make([]int32, bs)
	ids := make([]string, bs)

	for b, s := range samples {
		ids[b] = s.ID
		tokenLens[b] = int32(len(s.Tokens))
		melLens[b] = int32(len(s.Mel))

		row := b * maxTokens
		copy(tokens[row:], s.Tokens)
		copy(durations[row:], s.Durations)
		copy(pitch[row:], s.Pitch)
		copy(silence[row:], s.Silence)

		for t := 0; t < maxFrames; t++ {
			offset := (b*maxFrames + t) * nMels
			if t < len(s.Mel) {
				copy(mel[offset:offset+nMels], s.Mel[t])
				continue
			}
			for f := 0; f < nMels; f++ {
				mel[offset+f] = melPad
			}
		}
	}

	batch := &Batch{IDs: ids}
	var err error
	if batch.Tokens, err = tensor.NewTensor([]int{bs, maxTokens}, tensor.Int32, device, tokens); err != nil {
		return nil, err
	}
	if batch.Mel, err = tensor.NewTensor([]int{bs, maxFrames, nMels}, tensor.Float32, device, mel); err != nil {
		return nil, err
	}
	if batch.TokenLens, err = tensor.NewTensor([]int{bs}, tensor.Int32, device, tokenLens); err != nil {
		return nil, err
	}
	if batch.MelLens, err = tensor.NewTensor([]int{bs}, tensor.Int32, device, melLens); err != nil {
		return nil, err
	}
	if batch.Durations, err = tensor.NewTensor([]int{bs, maxTokens}, tensor.Float32, device, durations); err != nil {
		return nil, err
	}
	if batch.Pitch, err = tensor.NewTensor([]int{bs, maxTokens}, tensor.Float32, device, pitch); err != nil {
		return nil, err
	}
	if batch.Silence, err = tensor.NewTensor([]int{bs, maxTokens}, tensor.Float32, device, silence); err != nil {
		return nil, err
	}
	return batch, nil
}

func validateSample(s *Sample) error {
	if s == nil {
		return errors.New("nil sample")
	}
	if len(s.Tokens) == 0 || len(s.Mel) == 0 || len(s.Mel[0]) == 0 {
		return errors.Errorf("sample %q has no tokens or mel frames", s.ID)
	}
	n := len(s.Tokens)
	if len(s.Durations) != n || len(s.Pitch) != n || len(s.Silence) != n {
		return errors.Errorf("sample %q: per-token targets must have %d entries (durations=%d pitch=%d silence=%d)",
			s.ID, n, len(s.Durations), len(s.Pitch), len(s.Silence))
	}
	return nil
}
