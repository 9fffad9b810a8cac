package training

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// prefetched is one result of the background producer.
type prefetched struct {
	batch *Batch
	err   error
}

// PrefetchSource collates the batches of another DataSource in a background
// goroutine, keeping up to depth batches ready. Batch order is preserved. The
// producer for an epoch starts on Reset and stops at the end of the epoch, on
// the next Reset, or on Close.
type PrefetchSource struct {
	source DataSource
	depth  int

	batches chan prefetched
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mutex   sync.Mutex
}

// NewPrefetchSource wraps source. A non-positive depth defaults to 3.
func NewPrefetchSource(source DataSource, depth int) (*PrefetchSource, error) {
	if source == nil {
		return nil, errors.New("data source cannot be nil")
	}
	if depth <= 0 {
		depth = 3
	}
	return &PrefetchSource{source: source, depth: depth}, nil
}

func (p *PrefetchSource) Len() int {
	return p.source.Len()
}

func (p *PrefetchSource) NumSamples() int {
	return p.source.NumSamples()
}

// Reset stops any running producer, rewinds the wrapped source and starts
// prefetching the new epoch.
func (p *PrefetchSource) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.stop()
	p.source.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan prefetched, p.depth)
	p.batches = ch
	p.cancel = cancel

	p.wg.Add(1)
	go p.worker(ctx, ch)
}

// Next returns the next prefetched batch, or nil at the end of the epoch.
func (p *PrefetchSource) Next() (*Batch, error) {
	p.mutex.Lock()
	ch := p.batches
	p.mutex.Unlock()

	if ch == nil {
		return nil, errors.New("prefetch source must be Reset before use")
	}
	item, ok := <-ch
	if !ok {
		return nil, nil
	}
	return item.batch, item.err
}

// Close stops the background producer.
func (p *PrefetchSource) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.stop()
}

func (p *PrefetchSource) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	p.batches = nil
}

func (p *PrefetchSource) worker(ctx context.Context, ch chan<- prefetched) {
	defer p.wg.Done()
	defer close(ch)

	for {
		batch, err := p.source.Next()
		if batch == nil && err == nil {
			return
		}
		select {
		case ch <- prefetched{batch: batch, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
