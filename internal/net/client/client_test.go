package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/intents"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingsession "raise-and-raze/editor/logging/session"
)

// fakeGameServer accepts one websocket connection and relays every frame the
// client writes so tests can assert shapes and script replies.
type fakeGameServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	ready  chan struct{}
	frames chan map[string]any
}

func newFakeGameServer(t *testing.T) *fakeGameServer {
	t.Helper()
	fake := &fakeGameServer{
		ready:  make(chan struct{}),
		frames: make(chan map[string]any, 32),
	}
	fake.srv = httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(fake.srv.Close)
	return fake
}

func (f *fakeGameServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	close(f.ready)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame := map[string]any{}
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		f.frames <- frame
	}
}

func (f *fakeGameServer) url(t *testing.T) string {
	t.Helper()
	parsed, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	return parsed.String()
}

func (f *fakeGameServer) connection(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case <-f.ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("fake server never accepted a connection")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeGameServer) send(t *testing.T, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("failed to encode server frame: %v", err)
	}
	if err := f.connection(t).WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write server frame: %v", err)
	}
}

func (f *fakeGameServer) sendRaw(t *testing.T, payload string) {
	t.Helper()
	if err := f.connection(t).WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to write raw server frame: %v", err)
	}
}

func (f *fakeGameServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a client frame")
		return nil
	}
}

func (f *fakeGameServer) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-f.frames:
		t.Fatalf("expected no client frame, got %v", frame)
	case <-time.After(wait):
	}
}

func (f *fakeGameServer) dropConnection(t *testing.T) {
	t.Helper()
	f.connection(t).Close()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *eventRecorder) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, evt logging.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, evt)
	})
}

func (r *eventRecorder) ofType(eventType logging.EventType) []logging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]logging.Event, 0, len(r.events))
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func waitForEvent(t *testing.T, rec *eventRecorder, eventType logging.EventType) logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := rec.ofType(eventType); len(events) > 0 {
			return events[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", eventType)
	return logging.Event{}
}

func dialTestClient(t *testing.T, fake *fakeGameServer, cfg Config) (*Client, *mirror.Mirror) {
	t.Helper()
	cfg.URL = fake.url(t)
	if cfg.HeartbeatInterval <= 0 {
		// Keep heartbeats out of frame assertions.
		cfg.HeartbeatInterval = time.Hour
	}
	world := mirror.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, cfg, world)
	if err != nil {
		t.Fatalf("failed to dial fake server: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, world
}

func waitForState(t *testing.T, world *mirror.Mirror, uid entity.UID, want func(mirror.EntityState) bool) mirror.EntityState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var state mirror.EntityState
		found := false
		world.Read(func(v mirror.View) {
			if h, ok := v.Lookup(uid); ok {
				if s, ok := v.State(h); ok {
					state, found = s, true
				}
			}
		})
		if found && want(state) {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entity %s never reached the expected state", uid)
	return mirror.EntityState{}
}

func waitForAbsence(t *testing.T, world *mirror.Mirror, uid entity.UID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		present := false
		world.Read(func(v mirror.View) {
			_, present = v.Lookup(uid)
		})
		if !present {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entity %s never left the mirror", uid)
}

func TestSubmitIntentCarriesCorrelationAndAcksCallback(t *testing.T) {
	fake := newFakeGameServer(t)
	c, _ := dialTestClient(t, fake, Config{})

	applied := make(chan struct{})
	err := c.SubmitIntent(context.Background(), intents.KindTransform, map[string]any{"op": "translate"}, "gesture-1", func() {
		close(applied)
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	frame := fake.next(t)
	if frame["type"] != "intent" {
		t.Fatalf("expected intent frame, got %v", frame["type"])
	}
	if ver, ok := frame["ver"].(float64); !ok || ver != 1 {
		t.Fatalf("expected protocol version 1, got %v", frame["ver"])
	}
	seq, ok := frame["seq"].(float64)
	if !ok || seq != 1 {
		t.Fatalf("expected first submission to carry seq 1, got %v", frame["seq"])
	}
	if frame["kind"] != string(intents.KindTransform) {
		t.Fatalf("expected kind %q, got %v", intents.KindTransform, frame["kind"])
	}
	if frame["correlationId"] != "gesture-1" {
		t.Fatalf("expected correlation id to travel with the frame, got %v", frame["correlationId"])
	}
	payload, ok := frame["payload"].(map[string]any)
	if !ok || payload["op"] != "translate" {
		t.Fatalf("expected payload to pass through, got %v", frame["payload"])
	}

	fake.send(t, map[string]any{"type": "intentAck", "seq": 1})
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatalf("acknowledgement never reached the callback")
	}
}

func TestIntentRejectDropsCallbackAndLogs(t *testing.T) {
	fake := newFakeGameServer(t)
	rec := &eventRecorder{}
	c, _ := dialTestClient(t, fake, Config{Publisher: rec.publisher()})

	applied := make(chan struct{}, 1)
	if err := c.SubmitIntent(context.Background(), intents.KindDelete, nil, "", func() {
		applied <- struct{}{}
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	fake.next(t)

	fake.send(t, map[string]any{"type": "intentReject", "seq": 1, "kind": string(intents.KindDelete), "reason": "target locked"})

	evt := waitForEvent(t, rec, loggingsession.EventIntentRejected)
	if evt.Intent != string(intents.KindDelete) {
		t.Fatalf("expected reject event for %q, got %q", intents.KindDelete, evt.Intent)
	}
	payload, ok := evt.Payload.(loggingsession.RejectPayload)
	if !ok || payload.Reason != "target locked" {
		t.Fatalf("expected reject payload with reason, got %+v", evt.Payload)
	}

	// A late duplicate ack must find the callback already dropped.
	fake.send(t, map[string]any{"type": "intentAck", "seq": 1})
	time.Sleep(20 * time.Millisecond)
	select {
	case <-applied:
		t.Fatalf("callback fired for a rejected submission")
	default:
	}
}

func TestUndoExactResolvedByAck(t *testing.T) {
	fake := newFakeGameServer(t)
	c, _ := dialTestClient(t, fake, Config{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.UndoExact(context.Background(), "gesture-9")
	}()

	frame := fake.next(t)
	if frame["type"] != "undo" {
		t.Fatalf("expected undo frame, got %v", frame["type"])
	}
	if frame["correlationId"] != "gesture-9" {
		t.Fatalf("expected undo to target gesture-9, got %v", frame["correlationId"])
	}
	seq, ok := frame["seq"].(float64)
	if !ok {
		t.Fatalf("expected undo frame to carry a sequence, got %v", frame["seq"])
	}

	fake.send(t, map[string]any{"type": "undoAck", "seq": seq})
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected acknowledged undo to succeed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("undo never resolved")
	}
}

func TestUndoExactRejectSurfacesReason(t *testing.T) {
	fake := newFakeGameServer(t)
	c, _ := dialTestClient(t, fake, Config{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.UndoExact(context.Background(), "gesture-2")
	}()

	frame := fake.next(t)
	seq := frame["seq"].(float64)
	fake.send(t, map[string]any{"type": "undoReject", "seq": seq, "reason": "unknown correlation id"})

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "unknown correlation id") {
			t.Fatalf("expected rejection reason in error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("undo never resolved")
	}
}

func TestUndoExactTimesOutWithoutAck(t *testing.T) {
	fake := newFakeGameServer(t)
	c, _ := dialTestClient(t, fake, Config{RPCTimeout: 50 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.UndoExact(context.Background(), "gesture-3")
	}()
	fake.next(t)

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "no acknowledgement") {
			t.Fatalf("expected timeout error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("undo never timed out")
	}
}

func TestReplicationFramesMutateWorldMirror(t *testing.T) {
	fake := newFakeGameServer(t)
	_, world := dialTestClient(t, fake, Config{})

	fake.send(t, map[string]any{"type": "spawned", "uid": "uid-a", "kind": "prop", "position": []float64{1, 2, 3}})
	state := waitForState(t, world, "uid-a", func(s mirror.EntityState) bool {
		return s.Position == [3]float64{1, 2, 3}
	})
	if state.Kind != "prop" {
		t.Fatalf("expected spawned kind prop, got %q", state.Kind)
	}

	fake.send(t, map[string]any{"type": "updated", "uid": "uid-a", "position": []float64{4, 5, 6}, "revision": state.Revision + 1})
	waitForState(t, world, "uid-a", func(s mirror.EntityState) bool {
		return s.Position == [3]float64{4, 5, 6}
	})

	fake.send(t, map[string]any{"type": "despawned", "uid": "uid-a"})
	waitForAbsence(t, world, "uid-a")
}

func TestRepeatedAnomaliesRequestSnapshot(t *testing.T) {
	fake := newFakeGameServer(t)
	rec := &eventRecorder{}
	_, world := dialTestClient(t, fake, Config{Publisher: rec.publisher()})

	// Despawns for a uid the mirror never saw count as replication anomalies.
	for i := 0; i < 3; i++ {
		fake.send(t, map[string]any{"type": "despawned", "uid": "uid-ghost"})
	}

	frame := fake.next(t)
	if frame["type"] != "snapshotRequest" {
		t.Fatalf("expected snapshot request after repeated anomalies, got %v", frame["type"])
	}
	reason, _ := frame["reason"].(string)
	if !strings.Contains(reason, "unknownDespawn") {
		t.Fatalf("expected anomaly kinds in the request reason, got %q", reason)
	}

	evt := waitForEvent(t, rec, loggingsession.EventSnapshotRequested)
	payload, ok := evt.Payload.(loggingsession.SnapshotPayload)
	if !ok || payload.Anomalies != 3 {
		t.Fatalf("expected snapshot event to carry 3 anomalies, got %+v", evt.Payload)
	}

	fake.send(t, map[string]any{"type": "snapshot", "entities": []map[string]any{
		{"uid": "uid-a", "kind": "prop", "position": []float64{0, 0, 0}, "revision": 1},
	}})
	waitForState(t, world, "uid-a", func(mirror.EntityState) bool { return true })

	// The snapshot resets the anomaly count, so two more stay below the bar.
	fake.send(t, map[string]any{"type": "despawned", "uid": "uid-ghost"})
	fake.send(t, map[string]any{"type": "despawned", "uid": "uid-ghost"})
	fake.expectNoFrame(t, 50*time.Millisecond)
}

func TestMalformedFrameDoesNotKillReadLoop(t *testing.T) {
	fake := newFakeGameServer(t)
	metrics := &logging.Metrics{}
	_, world := dialTestClient(t, fake, Config{Metrics: telemetry.WrapMetrics(metrics)})

	fake.sendRaw(t, "{not json")
	fake.send(t, map[string]any{"type": "spawned", "uid": "uid-a", "kind": "prop", "position": []float64{0, 0, 0}})

	waitForState(t, world, "uid-a", func(mirror.EntityState) bool { return true })
	if got := metrics.TelemetryValue(metricMalformedFrames); got != 1 {
		t.Fatalf("expected 1 malformed frame counted, got %d", got)
	}
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	fake := newFakeGameServer(t)
	c, _ := dialTestClient(t, fake, Config{})

	c.Close()
	select {
	case <-c.Done():
	default:
		t.Fatalf("expected read loop to finish before Close returns")
	}

	if err := c.SubmitIntent(context.Background(), intents.KindDelete, nil, "", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from submit, got %v", err)
	}
	if err := c.UndoExact(context.Background(), "gesture-1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from undo, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("expected repeated close to be a no-op, got %v", err)
	}
}

func TestServerDisconnectFailsPendingUndo(t *testing.T) {
	fake := newFakeGameServer(t)
	rec := &eventRecorder{}
	c, _ := dialTestClient(t, fake, Config{Publisher: rec.publisher()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.UndoExact(context.Background(), "gesture-5")
	}()
	fake.next(t)

	fake.dropConnection(t)

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "connection lost") {
			t.Fatalf("expected connection-lost error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("undo never failed over")
	}

	evt := waitForEvent(t, rec, loggingsession.EventDisconnected)
	payload, ok := evt.Payload.(loggingsession.ConnectionPayload)
	if !ok || payload.Reason == "" {
		t.Fatalf("expected disconnect payload with a reason, got %+v", evt.Payload)
	}
}

func TestHeartbeatFramesFlow(t *testing.T) {
	fake := newFakeGameServer(t)
	metrics := &logging.Metrics{}
	dialTestClient(t, fake, Config{
		HeartbeatInterval: 20 * time.Millisecond,
		Metrics:           telemetry.WrapMetrics(metrics),
	})

	frame := fake.next(t)
	if frame["type"] != "heartbeat" {
		t.Fatalf("expected heartbeat frame, got %v", frame["type"])
	}
	sentAt, ok := frame["sentAt"].(float64)
	if !ok || sentAt <= 0 {
		t.Fatalf("expected heartbeat to carry a send timestamp, got %v", frame["sentAt"])
	}

	fake.send(t, map[string]any{"type": "heartbeat", "sentAt": sentAt, "serverTime": time.Now().UnixMilli()})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := metrics.Snapshot()[metricHeartbeatRTT]; ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("heartbeat round trip never recorded")
}
