package action

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"raise-and-raze/editor/internal/intents"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingdispatch "raise-and-raze/editor/logging/dispatch"
)

// DefaultThrottle spaces submissions when the config does not set an interval.
const DefaultThrottle = 100 * time.Millisecond

const (
	metricSubmitted      = "dispatch_submits_total"
	metricSubmitFailures = "dispatch_submit_failures_total"
	metricCoalesced      = "dispatch_coalesced_total"
	metricUndoRequests   = "dispatch_undo_requests_total"
	metricUndoFailures   = "dispatch_undo_failures_total"
)

// Client is the slice of the network layer a dispatcher needs: submissions
// tagged by a correlation id, and exact undo of everything tagged with one id.
// Repeated submissions under one id must amend the same server-side undo unit.
type Client interface {
	SubmitIntent(ctx context.Context, kind intents.Kind, payload any, correlationID string, onApplied func()) error
	UndoExact(ctx context.Context, correlationID string) error
}

// Config tunes one dispatcher instance.
type Config struct {
	Kind      intents.Kind
	Throttle  time.Duration
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// envelope pairs one pushed value with the gesture id that owns it. A zero
// envelope is a reset marker and never submits.
type envelope[T any] struct {
	id    string
	value T
}

// Dispatcher converts a rapid stream of local edit values into throttled
// network submissions correlated by a stable gesture id. One instance serves
// one gesture kind; pushes coalesce through a latest-value slot, so at most
// one submission leaves per throttle window and it carries the newest value.
//
// PushIntent, Confirm, Cancel and Close are called from UI-bound code and
// never block or touch the network; all network traffic happens on the
// consumer goroutine spawned by New and on short-lived undo goroutines.
type Dispatcher[T any] struct {
	kind     intents.Kind
	throttle time.Duration
	client   Client
	pub      logging.Publisher
	metrics  telemetry.Metrics

	pending *slot[envelope[T]]
	flush   chan string
	done    chan struct{}

	mu     sync.Mutex
	id     string
	closed bool

	mint  func() string
	after func(time.Duration) <-chan time.Time
}

// New constructs the dispatcher and starts its consumer goroutine. The
// goroutine runs until Close drops the slot's producer side.
func New[T any](cfg Config, client Client) *Dispatcher[T] {
	return newDispatcher[T](cfg, client, uuid.NewString, func(wait time.Duration) <-chan time.Time {
		return time.After(wait)
	})
}

// newDispatcher lets tests pin the id source and the throttle clock.
func newDispatcher[T any](cfg Config, client Client, mint func() string, after func(time.Duration) <-chan time.Time) *Dispatcher[T] {
	throttle := cfg.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	d := &Dispatcher[T]{
		kind:     cfg.Kind,
		throttle: throttle,
		client:   client,
		pub:      pub,
		metrics:  cfg.Metrics,
		pending:  newSlot[envelope[T]](),
		flush:    make(chan string, 1),
		done:     make(chan struct{}),
		mint:     mint,
		after:    after,
	}
	// Seed the slot so the first push of a fresh dispatcher is gated by one
	// throttle window instead of submitting immediately.
	d.pending.Send(envelope[T]{})
	go d.consume()
	return d
}

// PushIntent records value as the newest state of the current gesture,
// minting a correlation id if none is outstanding. Pushes into a window that
// already holds a value overwrite it.
func (d *Dispatcher[T]) PushIntent(value T) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.id == "" {
		d.id = d.mint()
	}
	id := d.id
	d.mu.Unlock()
	if d.pending.Send(envelope[T]{id: id, value: value}) {
		d.count(metricCoalesced)
	}
}

// Confirm accepts the gesture's last submitted value as final and retires the
// correlation id; no undo remains possible through this dispatcher. A value
// still sitting in the slot is flushed promptly under the retired id rather
// than waiting out the window.
func (d *Dispatcher[T]) Confirm() {
	if d == nil {
		return
	}
	d.mu.Lock()
	id := d.id
	d.id = ""
	d.mu.Unlock()
	if id == "" {
		return
	}
	if d.pending.HasPending() {
		select {
		case d.flush <- id:
		default:
		}
	}
	loggingdispatch.GestureConfirmed(context.Background(), d.pub, id, string(d.kind), nil)
}

// Cancel abandons the gesture: the pending slot is cleared and an undo for
// the outstanding correlation id is requested without waiting for it.
func (d *Dispatcher[T]) Cancel() {
	if d == nil {
		return
	}
	d.mu.Lock()
	id := d.id
	d.id = ""
	d.mu.Unlock()
	if id == "" {
		return
	}
	d.abort(id)
}

// Close releases the dispatcher and stops its consumer. An unconfirmed
// gesture is treated as abandoned and cancelled, so teardown mid-drag never
// leaves a half-applied, un-undoable edit. Idempotent.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	id := d.id
	d.id = ""
	d.mu.Unlock()
	if id != "" {
		d.abort(id)
	}
	d.pending.Close()
}

// Done is closed once the consumer goroutine has exited.
func (d *Dispatcher[T]) Done() <-chan struct{} {
	if d == nil {
		return nil
	}
	return d.done
}

// abort drops whatever is still pending for the gesture and fires the undo.
// A failed undo leaves the server ahead of the editor; it is surfaced as an
// error event and the process keeps running.
func (d *Dispatcher[T]) abort(id string) {
	d.pending.Send(envelope[T]{})
	loggingdispatch.GestureCancelled(context.Background(), d.pub, id, string(d.kind), nil)
	d.count(metricUndoRequests)
	go func() {
		if err := d.client.UndoExact(context.Background(), id); err != nil {
			d.count(metricUndoFailures)
			loggingdispatch.UndoFailed(context.Background(), d.pub, id, string(d.kind), loggingdispatch.FailurePayload{Reason: err.Error()}, nil)
		}
	}()
}

func (d *Dispatcher[T]) consume() {
	defer close(d.done)
	for {
		env, ok := d.pending.Recv()
		if !ok {
			return
		}
		if env.id != "" {
			d.deliver(env)
		}
		d.gate()
	}
}

// gate enforces the minimum spacing between submissions. Confirm can cut it
// short so the confirmed gesture's tail value lands promptly; flush tokens
// for any other gesture are drained and ignored.
func (d *Dispatcher[T]) gate() {
	wait := d.after(d.throttle)
	for {
		select {
		case <-d.pending.Done():
			return
		case <-wait:
			return
		case confirmed := <-d.flush:
			if env, ok := d.pending.Peek(); ok && env.id == confirmed {
				return
			}
		}
	}
}

// deliver hands one envelope to the network layer. Failures are logged and
// the value is dropped, not retried; the next window resubmits the current
// state while the gesture continues.
func (d *Dispatcher[T]) deliver(env envelope[T]) {
	ctx := context.Background()
	if err := d.client.SubmitIntent(ctx, d.kind, env.value, env.id, nil); err != nil {
		d.count(metricSubmitFailures)
		loggingdispatch.SubmitFailed(ctx, d.pub, env.id, string(d.kind), loggingdispatch.FailurePayload{Reason: err.Error()}, nil)
		return
	}
	d.count(metricSubmitted)
	loggingdispatch.IntentSubmitted(ctx, d.pub, env.id, string(d.kind), nil)
}

func (d *Dispatcher[T]) count(key string) {
	if d.metrics != nil {
		d.metrics.Add(key, 1)
	}
}
