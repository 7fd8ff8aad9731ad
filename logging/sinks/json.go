package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"raise-and-raze/editor/logging"
)

// JSON emits newline-delimited structured events. Writes are buffered; the
// flush interval bounds how long an event can sit in the buffer.
type JSON struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	encoder *json.Encoder
	eager   bool
	stop    chan struct{}
	once    sync.Once
}

type jsonEvent struct {
	Type     logging.EventType `json:"type"`
	Time     string            `json:"time"`
	Severity string            `json:"severity"`
	Category string            `json:"category,omitempty"`
	Gesture  string            `json:"gesture,omitempty"`
	Intent   string            `json:"intent,omitempty"`
	Targets  []string          `json:"targets,omitempty"`
	Payload  any               `json:"payload,omitempty"`
	Extra    map[string]any    `json:"extra,omitempty"`
}

// NewJSON writes NDJSON to w, flushing every flushInterval. A non-positive
// interval flushes after every event instead.
func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{
		writer:  buf,
		encoder: json.NewEncoder(buf),
		eager:   flushInterval <= 0,
		stop:    make(chan struct{}),
	}
	if !sink.eager {
		go sink.flushLoop(flushInterval)
	}
	return sink
}

// Write satisfies logging.Sink.
func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wire := jsonEvent{
		Type:     event.Type,
		Time:     event.Time.Format(time.RFC3339Nano),
		Severity: event.Severity.String(),
		Category: event.Category,
		Gesture:  event.Gesture,
		Intent:   event.Intent,
		Targets:  event.Targets,
		Payload:  event.Payload,
		Extra:    event.Extra,
	}
	if err := s.encoder.Encode(wire); err != nil {
		return err
	}
	if s.eager {
		return s.writer.Flush()
	}
	return nil
}

// Close stops the flusher and drains the buffer.
func (s *JSON) Close(context.Context) error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Flush()
}

func (s *JSON) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}
