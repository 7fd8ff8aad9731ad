package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies event timestamps; tests pin it to a fixed instant.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sink consumes routed events. A Write error puts the sink into backoff
// without affecting the other sinks.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultQueueSize   = 512
	minWorkerBacklog   = 32
	maxWorkerBacklog   = 1024
	defaultDropWarnGap = 5 * time.Second
)

// Router fans events out to sinks through a bounded queue. Publishing never
// blocks; when the queue or a sink backlog is full the event is dropped and
// counted.
type Router struct {
	cfg      Config
	clock    Clock
	queue    chan Event
	stop     chan struct{}
	workers  []*sinkWorker
	fields   map[string]any
	fallback *log.Logger
	wg       sync.WaitGroup
	closed   atomic.Bool

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	nextDropLog  atomic.Int64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	Sinks        map[string]SinkStats
}

type SinkStats struct {
	Dropped  uint64
	Failures uint64
}

func NewRouter(clock Clock, cfg Config, sinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Router{
		cfg:      cfg,
		clock:    clock,
		queue:    make(chan Event, queueSize),
		stop:     make(chan struct{}),
		fields:   cfg.CloneFields(),
		fallback: log.New(os.Stderr, "[logging] ", log.LstdFlags),
	}

	backlog := max(min(queueSize, maxWorkerBacklog), minWorkerBacklog)
	for _, named := range sinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, newSinkWorker(named.Name, named.Sink, backlog, r.fallback))
	}

	r.wg.Add(1)
	go r.dispatch()
	for _, w := range r.workers {
		r.wg.Add(1)
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	return r, nil
}

// Publish enqueues the event for delivery. It never blocks: a full queue
// drops the event and counts it instead.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.noteDrop(event)
	}
}

// Close stops intake, waits for the queue and every sink backlog to drain
// within ctx, then closes the sinks.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.stop)
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
	if len(r.workers) > 0 {
		stats.Sinks = make(map[string]SinkStats, len(r.workers))
		for _, w := range r.workers {
			stats.Sinks[w.name] = SinkStats{
				Dropped:  w.dropped.Load(),
				Failures: w.failed.Load(),
			}
		}
	}
	return stats
}

// dispatch owns stamping and fanout so sinks always observe a fully formed
// event. On stop it drains whatever is queued before closing the workers.
func (r *Router) dispatch() {
	defer func() {
		for _, w := range r.workers {
			close(w.backlog)
		}
		r.wg.Done()
	}()
	for {
		select {
		case event := <-r.queue:
			r.deliver(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) deliver(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeExtra(event, r.fields)
	r.eventsTotal.Add(1)
	for _, w := range r.workers {
		w.offer(event)
	}
}

// noteDrop counts the loss and logs it at most once per warn interval, so a
// saturated queue does not also saturate stderr.
func (r *Router) noteDrop(event Event) {
	r.droppedTotal.Add(1)
	gap := r.cfg.DropWarnInterval
	if gap <= 0 {
		gap = defaultDropWarnGap
	}
	now := time.Now().UnixNano()
	due := r.nextDropLog.Load()
	if due != 0 && now < due {
		return
	}
	if r.nextDropLog.CompareAndSwap(due, now+gap.Nanoseconds()) {
		r.fallback.Printf("dropping event type=%s gesture=%s", event.Type, event.Gesture)
	}
}

type sinkWorker struct {
	name     string
	sink     Sink
	backlog  chan Event
	fallback *log.Logger
	failures int
	retryAt  time.Time
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

func newSinkWorker(name string, sink Sink, backlog int, fallback *log.Logger) *sinkWorker {
	if backlog <= 0 {
		backlog = minWorkerBacklog
	}
	return &sinkWorker{
		name:     name,
		sink:     sink,
		backlog:  make(chan Event, backlog),
		fallback: fallback,
	}
}

// offer hands the worker its own copy of the event; a full backlog drops the
// event for this sink only.
func (w *sinkWorker) offer(event Event) {
	select {
	case w.backlog <- cloneForFields(event):
	default:
		w.dropped.Add(1)
		w.fallback.Printf("sink %s backlog full dropping event type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.backlog {
		if wait := time.Until(w.retryAt); w.failures > 0 && wait > 0 {
			time.Sleep(wait)
		}
		if err := w.sink.Write(event); err != nil {
			w.failures++
			w.failed.Add(1)
			delay := time.Duration(1<<min(w.failures, 5)) * time.Second
			w.retryAt = time.Now().Add(delay)
			w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, delay)
		} else {
			w.failures = 0
			w.retryAt = time.Time{}
		}
	}
}
