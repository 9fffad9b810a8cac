package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/websocket"

	"github.com/tsawler/go-forward/visualization"
)

// streamClient is one connected dashboard.
type streamClient struct {
	id   int
	conn *websocket.Conn
	mu   sync.Mutex
}

// StreamWriter broadcasts events to dashboards connected over websocket.
// Audio is announced by length only. Writes never fail because of a slow or
// disconnected client; such clients are dropped.
type StreamWriter struct {
	mu      sync.Mutex
	clients map[int]*streamClient
	nextID  int
	out     io.Writer
}

// NewStreamWriter creates a writer with no connected clients. Connection
// notices go to out when it is not nil.
func NewStreamWriter(out io.Writer) *StreamWriter {
	return &StreamWriter{
		clients: make(map[int]*streamClient),
		out:     out,
	}
}

// Handler returns the websocket endpoint dashboards connect to.
func (s *StreamWriter) Handler() websocket.Handler {
	return websocket.Handler(s.handleClient)
}

// Clients returns the number of connected dashboards.
func (s *StreamWriter) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *StreamWriter) handleClient(ws *websocket.Conn) {
	s.mu.Lock()
	s.nextID++
	client := &streamClient{id: s.nextID, conn: ws}
	s.clients[client.id] = client
	s.mu.Unlock()

	defer func() {
		ws.Close()
		s.remove(client.id)
		s.logf("Dashboard %d disconnected\n", client.id)
	}()

	s.logf("Dashboard %d connected\n", client.id)
	if err := s.send(client, Event{Kind: "hello", WallTime: time.Now()}); err != nil {
		return
	}

	// Dashboards only listen; reading detects the disconnect.
	for {
		var data string
		if err := websocket.Message.Receive(ws, &data); err != nil {
			return
		}
	}
}

func (s *StreamWriter) AddScalar(tag string, value float64, step int) error {
	return s.broadcast(scalarEvent(tag, value, step))
}

func (s *StreamWriter) AddHistogram(tag string, values []float32, step int) error {
	h := visualization.NewHistogram(values, visualization.DefaultHistogramBins)
	return s.broadcast(Event{Kind: KindHistogram, Tag: tag, Step: step, Histogram: &h})
}

func (s *StreamWriter) AddFigure(tag string, fig *visualization.PlotData, step int) error {
	return s.broadcast(Event{Kind: KindFigure, Tag: tag, Step: step, Figure: fig})
}

func (s *StreamWriter) AddAudio(tag string, wave []float32, step int, sampleRate int) error {
	return s.broadcast(Event{Kind: KindAudio, Tag: tag, Step: step, Samples: len(wave), Rate: sampleRate})
}

func (s *StreamWriter) broadcast(e Event) error {
	e.WallTime = time.Now()

	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := s.send(c, e); err != nil {
			s.logf("Dropping dashboard %d: %v\n", c.id, err)
			c.conn.Close()
			s.remove(c.id)
		}
	}
	return nil
}

func (s *StreamWriter) send(c *streamClient, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "failed to encode event %s", e.Tag)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.Message.Send(c.conn, string(data))
}

func (s *StreamWriter) remove(id int) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *StreamWriter) logf(format string, args ...interface{}) {
	if s.out != nil {
		fmt.Fprintf(s.out, format, args...)
	}
}
