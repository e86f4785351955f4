package coverage

import (
	"sync"
	"time"
)

type EventType string

const (
	EventIterationStart EventType = "iteration_start"
	EventStepComplete   EventType = "step_complete"
	EventStepError      EventType = "step_error"
	EventIterationEnd   EventType = "iteration_end"
	EventFinal          EventType = "final"
)

// Steps inside one iteration.
const (
	StepAnalyze  = "analyze"
	StepTabulate = "tabulate"
	StepVerify   = "verify"
)

// Event is one progress update.
type Event struct {
	Type      EventType `json:"type"`
	Iteration int       `json:"iteration"`
	Step      string    `json:"step,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Score     float64   `json:"score,omitempty"`
	TimingMs  int64     `json:"timing_ms"`
	At        time.Time `json:"at"`
}

// Stream is a bounded event buffer. Publish never blocks: when the buffer is
// full the oldest event is discarded. A nil *Stream drops everything.
type Stream struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped int
}

func NewStream(size int) *Stream {
	if size < 1 {
		size = 1
	}
	return &Stream{ch: make(chan Event, size)}
}

// Events is closed by Close.
func (s *Stream) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Stream) Publish(e Event) {
	if s == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// Dropped counts events discarded on overflow.
func (s *Stream) Dropped() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
