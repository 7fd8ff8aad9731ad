package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"raise-and-raze/editor/internal/action"
	"raise-and-raze/editor/internal/entity"
	"raise-and-raze/editor/internal/intents"
	"raise-and-raze/editor/internal/mirror"
	"raise-and-raze/editor/internal/net/proto"
	"raise-and-raze/editor/internal/telemetry"
	"raise-and-raze/editor/logging"
	loggingsession "raise-and-raze/editor/logging/session"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("editor client closed")

const (
	// DefaultRPCTimeout bounds the wait for an undo acknowledgement.
	DefaultRPCTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds a single websocket write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultHeartbeatInterval paces client heartbeats.
	DefaultHeartbeatInterval = 10 * time.Second
)

const (
	metricIntentsSent      = "client_intents_sent_total"
	metricIntentAcks       = "client_intent_acks_total"
	metricIntentRejects    = "client_intent_rejects_total"
	metricUndosSent        = "client_undos_sent_total"
	metricSnapshotRequests = "client_snapshot_requests_total"
	metricSnapshotsApplied = "client_snapshots_applied_total"
	metricMalformedFrames  = "client_malformed_frames_total"
	metricHeartbeatRTT     = "client_heartbeat_rtt_ms"
)

// Config tunes one editor-channel client.
type Config struct {
	URL               string
	RPCTimeout        time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	Publisher         logging.Publisher
	Metrics           telemetry.Metrics
}

type undoResult struct {
	rejected bool
	reason   string
}

// Client speaks the editor channel over one websocket: intent submissions
// with acknowledgement callbacks, awaited undo requests, and a replication
// feed applied to the world mirror. The read loop is the mirror's only
// writer and owns the desync policy.
type Client struct {
	config  Config
	world   *mirror.Mirror
	pub     logging.Publisher
	metrics telemetry.Metrics

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	applied map[uint64]func()
	undos   map[uint64]chan undoResult
	closed  bool

	desync *desyncPolicy
	done   chan struct{}
}

var _ action.Client = (*Client)(nil)

// Dial connects to the editor channel and starts the read and heartbeat
// loops. The mirror is mutated only by frames arriving on this connection.
func Dial(ctx context.Context, cfg Config, world *mirror.Mirror) (*Client, error) {
	if world == nil {
		return nil, errors.New("nil world mirror")
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = DefaultRPCTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial editor channel: %w", err)
	}
	c := &Client{
		config:  cfg,
		world:   world,
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		conn:    conn,
		applied: make(map[uint64]func()),
		undos:   make(map[uint64]chan undoResult),
		desync:  newDesyncPolicy(),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.heartbeatLoop()
	loggingsession.Connected(ctx, c.pub, loggingsession.ConnectionPayload{URL: cfg.URL}, nil)
	return c, nil
}

// SubmitIntent writes one intent frame. The transport error is returned
// synchronously; onApplied, if set, fires when the server acknowledges this
// submission and is dropped on reject or disconnect.
func (c *Client) SubmitIntent(ctx context.Context, kind intents.Kind, payload any, correlationID string, onApplied func()) error {
	if c == nil {
		return ErrClosed
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	if onApplied != nil {
		c.applied[seq] = onApplied
	}
	c.mu.Unlock()

	data, err := proto.EncodeIntent(proto.IntentFrame{
		Seq:           seq,
		Kind:          string(kind),
		CorrelationID: correlationID,
		Payload:       payload,
	})
	if err != nil {
		c.dropApplied(seq)
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := c.write(ctx, data); err != nil {
		c.dropApplied(seq)
		return err
	}
	c.count(metricIntentsSent)
	return nil
}

// UndoExact writes an undo frame for the correlation id and waits for the
// matching acknowledgement, bounded by the RPC timeout. Unknown or
// already-undone ids surface as errors.
func (c *Client) UndoExact(ctx context.Context, correlationID string) error {
	if c == nil {
		return ErrClosed
	}
	if correlationID == "" {
		return errors.New("empty correlation id")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	waiter := make(chan undoResult, 1)
	c.undos[seq] = waiter
	c.mu.Unlock()

	data, err := proto.EncodeUndo(proto.UndoFrame{Seq: seq, CorrelationID: correlationID})
	if err != nil {
		c.dropUndoWaiter(seq)
		return fmt.Errorf("encode undo: %w", err)
	}
	if err := c.write(ctx, data); err != nil {
		c.dropUndoWaiter(seq)
		return err
	}
	c.count(metricUndosSent)

	timer := time.NewTimer(c.config.RPCTimeout)
	defer timer.Stop()
	select {
	case result := <-waiter:
		if result.rejected {
			return fmt.Errorf("undo %s rejected: %s", correlationID, result.reason)
		}
		return nil
	case <-ctx.Done():
		c.dropUndoWaiter(seq)
		return ctx.Err()
	case <-timer.C:
		c.dropUndoWaiter(seq)
		return fmt.Errorf("undo %s: no acknowledgement within %s", correlationID, c.config.RPCTimeout)
	case <-c.done:
		return ErrClosed
	}
}

// Close sends a close frame, tears the connection down and waits for the
// read loop to exit. Idempotent; outstanding undo waits fail over to errors.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "editor shutdown")
	_ = c.conn.WriteMessage(websocket.CloseMessage, message)
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed once the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}

func (c *Client) write(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write editor frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		msg, err := proto.DecodeServerMessage(payload)
		if err != nil {
			c.count(metricMalformedFrames)
			c.desync.noteAnomaly("malformed", "")
			c.maybeRequestSnapshot()
			continue
		}
		c.route(msg)
	}
}

func (c *Client) route(msg proto.ServerMessage) {
	ctx := context.Background()
	switch msg.Type {
	case proto.TypeIntentAck:
		c.count(metricIntentAcks)
		if cb := c.takeApplied(msg.Seq); cb != nil {
			cb()
		}
	case proto.TypeIntentReject:
		c.count(metricIntentRejects)
		c.dropApplied(msg.Seq)
		loggingsession.IntentRejected(ctx, c.pub, msg.Kind, loggingsession.RejectPayload{Seq: msg.Seq, Reason: msg.Reason}, nil)
		c.desync.noteAnomaly("reject", "")
		c.maybeRequestSnapshot()
	case proto.TypeUndoAck:
		c.resolveUndo(msg.Seq, undoResult{})
	case proto.TypeUndoReject:
		c.resolveUndo(msg.Seq, undoResult{rejected: true, reason: msg.Reason})
	case proto.TypeSpawned:
		c.desync.noteFrame()
		c.world.ApplySpawn(entity.UID(msg.UID), msg.Kind, msg.Position)
	case proto.TypeUpdated:
		c.desync.noteFrame()
		uid := entity.UID(msg.UID)
		if !c.world.ApplyUpdate(uid, msg.Position, msg.Revision) {
			known := false
			c.world.Read(func(v mirror.View) { _, known = v.Lookup(uid) })
			// A stale revision on a known uid is benign re-delivery; an
			// update for an unknown uid means replication skipped a spawn.
			if !known {
				c.desync.noteAnomaly("unknownUpdate", msg.UID)
				c.maybeRequestSnapshot()
			}
		}
	case proto.TypeDespawned:
		c.desync.noteFrame()
		if !c.world.ApplyDespawn(entity.UID(msg.UID)) {
			c.desync.noteAnomaly("unknownDespawn", msg.UID)
			c.maybeRequestSnapshot()
		}
	case proto.TypeSnapshot:
		c.world.ApplySnapshot(msg.Entities)
		c.desync.reset()
		c.count(metricSnapshotsApplied)
	case proto.TypeHeartbeat:
		rtt := time.Now().UnixMilli() - msg.SentAt
		if rtt >= 0 {
			c.store(metricHeartbeatRTT, uint64(rtt))
		}
	default:
		c.count(metricMalformedFrames)
	}
}

// maybeRequestSnapshot fires at most one snapshot request per armed signal.
func (c *Client) maybeRequestSnapshot() {
	signal, ok := c.desync.consume()
	if !ok {
		return
	}
	c.count(metricSnapshotRequests)
	loggingsession.SnapshotRequested(context.Background(), c.pub, loggingsession.SnapshotPayload{Anomalies: int(signal.Anomalies)}, nil)
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	data, err := proto.EncodeSnapshotRequest(proto.SnapshotRequest{Seq: seq, Reason: signal.summary()})
	if err != nil {
		return
	}
	_ = c.write(context.Background(), data)
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			data, err := proto.EncodeHeartbeat(proto.HeartbeatFrame{SentAt: time.Now().UnixMilli()})
			if err != nil {
				continue
			}
			if err := c.write(context.Background(), data); err != nil {
				return
			}
		}
	}
}

// handleDisconnect flips the client closed and fails every waiter so no undo
// blocks on a dead socket.
func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	orderly := c.closed
	c.closed = true
	waiters := c.undos
	c.undos = make(map[uint64]chan undoResult)
	c.applied = make(map[uint64]func())
	c.mu.Unlock()
	for _, waiter := range waiters {
		waiter <- undoResult{rejected: true, reason: "connection lost"}
	}
	if !orderly {
		loggingsession.Disconnected(context.Background(), c.pub, loggingsession.ConnectionPayload{
			URL:    c.config.URL,
			Reason: err.Error(),
		}, nil)
	}
}

func (c *Client) takeApplied(seq uint64) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.applied[seq]
	if !ok {
		return nil
	}
	delete(c.applied, seq)
	return cb
}

func (c *Client) dropApplied(seq uint64) {
	c.mu.Lock()
	delete(c.applied, seq)
	c.mu.Unlock()
}

func (c *Client) dropUndoWaiter(seq uint64) {
	c.mu.Lock()
	delete(c.undos, seq)
	c.mu.Unlock()
}

func (c *Client) resolveUndo(seq uint64, result undoResult) {
	c.mu.Lock()
	waiter, ok := c.undos[seq]
	if ok {
		delete(c.undos, seq)
	}
	c.mu.Unlock()
	if ok {
		waiter <- result
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) count(key string) {
	if c.metrics != nil {
		c.metrics.Add(key, 1)
	}
}

func (c *Client) store(key string, value uint64) {
	if c.metrics != nil {
		c.metrics.Store(key, value)
	}
}
