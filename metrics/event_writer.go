package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/dsp"
	"github.com/tsawler/go-forward/visualization"
)

// EventsFile is the name of the event log inside the log directory.
const EventsFile = "events.jsonl"

// EventWriter appends events to a JSON-lines log. Figures are stored as plot
// JSON under figures/ and audio as WAV files under audio/.
type EventWriter struct {
	dir  string
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
}

// NewEventWriter creates dir if needed and opens its event log for appending.
func NewEventWriter(dir string) (*EventWriter, error) {
	for _, sub := range []string{"", "figures", "audio"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory %s", dir)
		}
	}

	file, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event log")
	}

	return &EventWriter{
		dir:  dir,
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Dir returns the log directory.
func (w *EventWriter) Dir() string {
	return w.dir
}

func (w *EventWriter) AddScalar(tag string, value float64, step int) error {
	return w.append(scalarEvent(tag, value, step))
}

func (w *EventWriter) AddHistogram(tag string, values []float32, step int) error {
	h := visualization.NewHistogram(values, visualization.DefaultHistogramBins)
	return w.append(Event{Kind: KindHistogram, Tag: tag, Step: step, Histogram: &h})
}

func (w *EventWriter) AddFigure(tag string, fig *visualization.PlotData, step int) error {
	if fig == nil {
		return errors.Errorf("nil figure for tag %s", tag)
	}

	data, err := json.Marshal(fig)
	if err != nil {
		return errors.Wrapf(err, "failed to encode figure %s", tag)
	}

	rel := filepath.Join("figures", artifactName(tag, step, ".json"))
	if err := os.WriteFile(filepath.Join(w.dir, rel), data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write figure %s", tag)
	}
	return w.append(Event{Kind: KindFigure, Tag: tag, Step: step, File: rel})
}

func (w *EventWriter) AddAudio(tag string, wave []float32, step int, sampleRate int) error {
	rel := filepath.Join("audio", artifactName(tag, step, ".wav"))
	f, err := os.Create(filepath.Join(w.dir, rel))
	if err != nil {
		return errors.Wrapf(err, "failed to create audio file for %s", tag)
	}
	if err := dsp.WriteWAV(f, wave, sampleRate); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode audio %s", tag)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close audio file for %s", tag)
	}
	return w.append(Event{Kind: KindAudio, Tag: tag, Step: step, File: rel, Samples: len(wave), Rate: sampleRate})
}

// Flush writes buffered events to disk.
func (w *EventWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.buf.Flush(), "failed to flush event log")
}

// Close flushes and closes the event log.
func (w *EventWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return errors.Wrap(w.file.Close(), "failed to close event log")
}

func (w *EventWriter) append(e Event) error {
	e.WallTime = time.Now()
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "failed to encode event %s", e.Tag)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(err, "failed to write event %s", e.Tag)
	}
	return nil
}

// ReadEvents loads every event from the log in dir.
func ReadEvents(dir string) ([]Event, error) {
	f, err := os.Open(filepath.Join(dir, EventsFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event log")
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, errors.Wrapf(err, "invalid event on line %d", line)
		}
		events = append(events, e)
	}
	return events, errors.Wrap(scanner.Err(), "failed to read event log")
}

// artifactName turns "Generated/postnet" at step 3000 into "Generated_postnet_3000.json".
func artifactName(tag string, step int, ext string) string {
	return fmt.Sprintf("%s_%d%s", strings.ReplaceAll(tag, "/", "_"), step, ext)
}
