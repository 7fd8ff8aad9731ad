package targets

import (
	"context"
	"sync"
	"time"

	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/selection"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingresolution "raise-and-raze/editor/logging/resolution"
)

// DefaultInterval is the resolution cadence when the config does not set one.
// Existence is owned by the mirror, whose update cadence the editor does not
// control; a bounded-frequency poll bounds worst-case staleness without
// coupling to the replication feed.
const DefaultInterval = 2 * time.Second

const (
	metricResolvePasses  = "resolution_passes_total"
	metricResolveChanges = "resolution_changes_total"
	metricResolvedCount  = "resolution_targets"
)

// LoopConfig tunes the resolution loop.
type LoopConfig struct {
	Interval  time.Duration
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Hooks are optional observers invoked from the loop goroutine.
type Hooks struct {
	// OnChange receives the new resolved target list after every published
	// resolution. Called outside every lock; it may call back into the loop,
	// the selection cell or the mirror.
	OnChange func(resolved []entity.UID)
}

// Loop periodically re-derives the live target set from the selection and
// republishes it only when it differs from the previous pass.
type Loop struct {
	cell    *selection.Cell
	world   *mirror.Mirror
	config  LoopConfig
	hooks   Hooks
	pub     logging.Publisher
	metrics telemetry.Metrics

	kick chan struct{}

	mu      sync.Mutex
	current []entity.UID
	missing map[entity.UID]struct{}
}

// NewLoop wires the resolver to a selection cell and a world mirror.
func NewLoop(cell *selection.Cell, world *mirror.Mirror, cfg LoopConfig, hooks Hooks) *Loop {
	if cell == nil || world == nil {
		return nil
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Loop{
		cell:    cell,
		world:   world,
		config:  cfg,
		hooks:   hooks,
		pub:     pub,
		metrics: cfg.Metrics,
		kick:    make(chan struct{}, 1),
		missing: make(map[entity.UID]struct{}),
	}
}

// Run drives resolution until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	interval := l.config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.ResolveOnce()
		case <-l.kick:
			l.ResolveOnce()
		}
	}
}

// Kick schedules an immediate resolution pass, typically on selection change.
// Non-blocking; kicks arriving while one is already queued collapse.
func (l *Loop) Kick() {
	if l == nil {
		return
	}
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Targets returns the last published resolution.
func (l *Loop) Targets() []entity.UID {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.current) == 0 {
		return nil
	}
	return append([]entity.UID(nil), l.current...)
}

// ResolveOnce executes a single resolution pass and reports whether a change
// was published. The selection is snapshotted first, resolved under one
// mirror read lock, and compared and published with all locks released.
func (l *Loop) ResolveOnce() bool {
	if l == nil {
		return false
	}
	l.count(metricResolvePasses)
	selected, _ := l.cell.Snapshot()
	var resolved, missing []entity.UID
	l.world.Read(func(view mirror.View) {
		resolved, missing = Resolve(selected, view)
	})

	l.mu.Lock()
	changed := !uidsEqual(l.current, resolved)
	if changed {
		l.current = resolved
	}
	newlyMissing := l.retainMissingLocked(missing)
	l.mu.Unlock()

	ctx := context.Background()
	for _, uid := range newlyMissing {
		loggingresolution.EntryUnresolved(ctx, l.pub, string(uid), nil)
	}
	if !changed {
		return false
	}
	l.count(metricResolveChanges)
	l.store(metricResolvedCount, uint64(len(resolved)))
	loggingresolution.TargetsChanged(ctx, l.pub, entity.Strings(resolved), loggingresolution.ChangePayload{
		Selected: len(selected),
		Resolved: len(resolved),
	}, nil)
	if l.hooks.OnChange != nil {
		l.hooks.OnChange(append([]entity.UID(nil), resolved...))
	}
	return true
}

// retainMissingLocked replaces the tracked missing set and reports which uids
// are newly missing this pass, so repeat polls do not re-log the same entry.
func (l *Loop) retainMissingLocked(missing []entity.UID) []entity.UID {
	var newly []entity.UID
	next := make(map[entity.UID]struct{}, len(missing))
	for _, uid := range missing {
		next[uid] = struct{}{}
		if _, known := l.missing[uid]; !known {
			newly = append(newly, uid)
		}
	}
	l.missing = next
	return newly
}

func uidsEqual(a, b []entity.UID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (l *Loop) count(key string) {
	if l.metrics != nil {
		l.metrics.Add(key, 1)
	}
}

func (l *Loop) store(key string, value uint64) {
	if l.metrics != nil {
		l.metrics.Store(key, value)
	}
}
