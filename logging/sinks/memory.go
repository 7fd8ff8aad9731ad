package sinks

import (
	"context"
	"maps"
	"slices"
	"sync"

	"raise-and-raze/editor/logging"
)

// MemorySink captures events for test assertions.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	cloned := event
	cloned.Targets = slices.Clone(event.Targets)
	cloned.Extra = maps.Clone(event.Extra)
	s.mu.Lock()
	s.events = append(s.events, cloned)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything captured so far.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// EventsOfType filters the captured events by type.
func (s *MemorySink) EventsOfType(t logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []logging.Event
	for _, event := range s.events {
		if event.Type == t {
			matched = append(matched, event)
		}
	}
	return matched
}

// Reset clears the captured events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = s.events[:0]
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
