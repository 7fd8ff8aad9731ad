package editor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"raise-and-raze/editor/internal/action"
	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/intents"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/selection"
	"raise-and-raze/editor/internal/targets"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingsession "raise-and-raze/editor/logging/session"
)

// ErrClosed is returned by session operations after Close.
var ErrClosed = errors.New("editor session closed")

// ErrNothingSelected is returned by one-shot operations that need targets.
var ErrNothingSelected = errors.New("nothing selected")

// TransformMode names the active gesture tool. The zero value means no
// transform is active.
type TransformMode string

const (
	ModeNone      TransformMode = ""
	ModeTranslate TransformMode = "translate"
	ModeRotate    TransformMode = "rotate"
	ModeScale     TransformMode = "scale"
	ModePlace     TransformMode = "place"
)

func (m TransformMode) op() (string, bool) {
	switch m {
	case ModeTranslate:
		return intents.OpTranslate, true
	case ModeRotate:
		return intents.OpRotate, true
	case ModeScale:
		return intents.OpScale, true
	case ModePlace:
		return intents.OpPlace, true
	default:
		return "", false
	}
}

// ModifierKey identifies a tracked modifier.
type ModifierKey string

const (
	ModifierShift   ModifierKey = "shift"
	ModifierControl ModifierKey = "control"
)

// Prefs holds editing preferences applied before payloads are built.
// SnapSize zero disables grid snapping.
type Prefs struct {
	SnapSize          float64
	GlobalCoordinates bool
}

// Config tunes one editor session.
type Config struct {
	// Throttle paces gesture submissions; zero uses the dispatcher default.
	Throttle time.Duration
	// ResolveInterval paces target resolution; zero uses the loop default.
	ResolveInterval time.Duration
	Publisher       logging.Publisher
	Metrics         telemetry.Metrics
	// OnTargetsChanged, if set, observes every resolved-target publication.
	// Called outside all session locks.
	OnTargetsChanged func(resolved []entity.UID)
}

// Session is the editing surface: it owns the selection, the resolution
// loop, modifier and preference state, and the per-mode gesture dispatcher.
// Entering a transform mode creates a dispatcher; leaving it, or switching
// modes mid-gesture, closes the old one, which cancels an unconfirmed
// gesture.
type Session struct {
	client   action.Client
	world    *mirror.Mirror
	cell     *selection.Cell
	loop     *targets.Loop
	pub      logging.Publisher
	metrics  telemetry.Metrics
	throttle time.Duration

	mu         sync.Mutex
	mode       TransformMode
	dispatcher *action.Dispatcher[intents.TransformPayload]
	prefs      Prefs
	shift      bool
	control    bool
	closed     bool
}

// NewSession wires a session over an established client and world mirror.
// Returns nil when either dependency is missing.
func NewSession(client action.Client, world *mirror.Mirror, cfg Config) *Session {
	if client == nil || world == nil {
		return nil
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	cell := selection.NewCell()
	loop := targets.NewLoop(cell, world, targets.LoopConfig{
		Interval:  cfg.ResolveInterval,
		Publisher: pub,
		Metrics:   cfg.Metrics,
	}, targets.Hooks{OnChange: cfg.OnTargetsChanged})
	return &Session{
		client:   client,
		world:    world,
		cell:     cell,
		loop:     loop,
		pub:      pub,
		metrics:  cfg.Metrics,
		throttle: cfg.Throttle,
	}
}

// Run drives target resolution until ctx ends.
func (s *Session) Run(ctx context.Context) {
	if s == nil {
		return
	}
	s.loop.Run(ctx.Done())
}

// Close retires the active dispatcher, cancelling any unconfirmed gesture,
// and waits for its tail submission to drain. Idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	retired := s.dispatcher
	s.dispatcher = nil
	s.mode = ModeNone
	s.mu.Unlock()
	if retired != nil {
		retired.Close()
		<-retired.Done()
	}
	return nil
}

// Mode reports the active transform mode.
func (s *Session) Mode() TransformMode {
	if s == nil {
		return ModeNone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetTransformMode switches the gesture tool. The previous dispatcher is
// closed, which cancels its unconfirmed gesture; a fresh one is created for
// any mode that maps to a transform operation. Re-entering the active mode
// restarts the gesture under a new correlation id.
func (s *Session) SetTransformMode(mode TransformMode) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed || (s.mode == mode && s.dispatcher == nil) {
		s.mu.Unlock()
		return
	}
	previous := s.mode
	retired := s.dispatcher
	s.mode = mode
	s.dispatcher = nil
	if _, ok := mode.op(); ok {
		s.dispatcher = action.New[intents.TransformPayload](action.Config{
			Kind:      intents.KindTransform,
			Throttle:  s.throttle,
			Publisher: s.pub,
			Metrics:   s.metrics,
		}, s.client)
	}
	s.mu.Unlock()
	if retired != nil {
		retired.Close()
	}
	loggingsession.ModeChanged(context.Background(), s.pub, loggingsession.ModePayload{
		Previous: string(previous),
		Next:     string(mode),
	}, nil)
}

// ExitTransform leaves the current transform mode. An unconfirmed gesture is
// cancelled.
func (s *Session) ExitTransform() {
	s.SetTransformMode(ModeNone)
}

// PushTransform feeds the current gesture one fresher value set. Snapping
// and the coordinate-space flag are applied here so the payload carries
// final numbers. No-op outside a transform mode or with nothing resolved.
func (s *Session) PushTransform(values [3]float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	dispatcher := s.dispatcher
	mode := s.mode
	prefs := s.prefs
	s.mu.Unlock()
	if dispatcher == nil {
		return
	}
	op, ok := mode.op()
	if !ok {
		return
	}
	resolved := s.loop.Targets()
	if len(resolved) == 0 {
		return
	}
	if prefs.SnapSize > 0 {
		values = snapValues(values, prefs.SnapSize)
	}
	dispatcher.PushIntent(intents.TransformPayload{
		Targets: resolved,
		Op:      op,
		Values:  values,
		Global:  prefs.GlobalCoordinates,
	})
}

// ConfirmGesture commits the active gesture.
func (s *Session) ConfirmGesture() {
	if d := s.activeDispatcher(); d != nil {
		d.Confirm()
	}
}

// CancelGesture reverts the active gesture.
func (s *Session) CancelGesture() {
	if d := s.activeDispatcher(); d != nil {
		d.Cancel()
	}
}

func (s *Session) activeDispatcher() *action.Dispatcher[intents.TransformPayload] {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

// SpawnObject submits a one-shot spawn for the asset under a pre-minted uid.
// Once the server applies it the new entity becomes the selection and the
// session enters Place mode; resolution picks the uid up as soon as the
// spawn replicates back.
func (s *Session) SpawnObject(assetURL string, pos [3]float64) (entity.UID, error) {
	if s == nil {
		return "", ErrClosed
	}
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	uid := entity.NewUID()
	payload := intents.SpawnPayload{AssetURL: assetURL, UID: uid, Position: pos}
	err := s.client.SubmitIntent(context.Background(), intents.KindSpawn, payload, "", func() {
		s.replaceSelection(selection.Selection{uid})
		s.SetTransformMode(ModePlace)
	})
	if err != nil {
		return "", fmt.Errorf("spawn %s: %w", assetURL, err)
	}
	return uid, nil
}

// DuplicateTargets submits a one-shot clone of the current resolved targets.
// On apply the clones become the selection and the session enters Translate
// mode so they can be dragged apart immediately.
func (s *Session) DuplicateTargets() ([]entity.UID, error) {
	if s == nil {
		return nil, ErrClosed
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sources := s.loop.Targets()
	if len(sources) == 0 {
		return nil, ErrNothingSelected
	}
	clones := entity.NewUIDs(len(sources))
	payload := intents.DuplicatePayload{Sources: sources, Clones: clones}
	err := s.client.SubmitIntent(context.Background(), intents.KindDuplicate, payload, "", func() {
		s.replaceSelection(selection.Selection(clones))
		s.SetTransformMode(ModeTranslate)
	})
	if err != nil {
		return nil, fmt.Errorf("duplicate %d targets: %w", len(sources), err)
	}
	return clones, nil
}

// DeleteTargets submits a one-shot removal of the current resolved targets
// and clears the selection.
func (s *Session) DeleteTargets() error {
	if s == nil {
		return ErrClosed
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	resolved := s.loop.Targets()
	if len(resolved) == 0 {
		return ErrNothingSelected
	}
	payload := intents.DeletePayload{Targets: resolved}
	if err := s.client.SubmitIntent(context.Background(), intents.KindDelete, payload, "", nil); err != nil {
		return fmt.Errorf("delete %d targets: %w", len(resolved), err)
	}
	s.replaceSelection(nil)
	return nil
}

// ClickEntity folds a click into the selection using the accumulation mode
// derived from the held modifiers and kicks resolution so the change lands
// before the next poll.
func (s *Session) ClickEntity(uid entity.UID) {
	if s == nil || uid == "" {
		return
	}
	s.mu.Lock()
	mode := selection.ModeForModifiers(s.shift, s.control)
	current, _ := s.cell.Snapshot()
	s.cell.Replace(current.Apply(mode, uid))
	s.mu.Unlock()
	s.loop.Kick()
}

// SetModifier tracks modifier-key state for click accumulation.
func (s *Session) SetModifier(key ModifierKey, down bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	switch key {
	case ModifierShift:
		s.shift = down
	case ModifierControl:
		s.control = down
	}
	s.mu.Unlock()
}

// SetSnap sets the grid increment. Zero or negative disables snapping.
func (s *Session) SetSnap(size float64) {
	if s == nil {
		return
	}
	if size < 0 {
		size = 0
	}
	s.mu.Lock()
	s.prefs.SnapSize = size
	s.mu.Unlock()
}

// SetGlobalCoordinates switches between world-space and local-space values.
func (s *Session) SetGlobalCoordinates(global bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.prefs.GlobalCoordinates = global
	s.mu.Unlock()
}

// Prefs reports the current preferences.
func (s *Session) Prefs() Prefs {
	if s == nil {
		return Prefs{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Selection reports the raw ordered selection, unresolved entries included.
func (s *Session) Selection() selection.Selection {
	if s == nil {
		return nil
	}
	snapshot, _ := s.cell.Snapshot()
	return snapshot
}

// Targets reports the latest resolved target list.
func (s *Session) Targets() []entity.UID {
	if s == nil {
		return nil
	}
	return s.loop.Targets()
}

// ResolveNow runs one resolution pass synchronously. Reports whether the
// resolved targets changed.
func (s *Session) ResolveNow() bool {
	if s == nil {
		return false
	}
	return s.loop.ResolveOnce()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) replaceSelection(next selection.Selection) {
	s.mu.Lock()
	s.cell.Replace(next)
	s.mu.Unlock()
	s.loop.Kick()
}

func snapValues(values [3]float64, size float64) [3]float64 {
	for i, v := range values {
		values[i] = math.Round(v/size) * size
	}
	return values
}
