package session

import (
	"context"

	"raise-and-raze/editor/logging"
)

const (
	// EventConnected is emitted when the editor channel is established.
	EventConnected logging.EventType = "session.connected"
	// EventDisconnected is emitted when the editor channel closes.
	EventDisconnected logging.EventType = "session.disconnected"
	// EventModeChanged is emitted when the active transform mode changes.
	EventModeChanged logging.EventType = "session.mode_changed"
	// EventIntentRejected is emitted when the server refuses a submission.
	EventIntentRejected logging.EventType = "session.intent_rejected"
	// EventSnapshotRequested is emitted when the desync policy asks the server
	// for a fresh world snapshot.
	EventSnapshotRequested logging.EventType = "session.snapshot_requested"
)

// ConnectionPayload carries endpoint details.
type ConnectionPayload struct {
	URL    string `json:"url,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ModePayload carries the previous and next transform mode.
type ModePayload struct {
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next"`
}

// RejectPayload carries the server's refusal details.
type RejectPayload struct {
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
}

// SnapshotPayload carries the anomaly run that armed the request.
type SnapshotPayload struct {
	Anomalies int `json:"anomalies"`
}

// Connected publishes an info event for an established connection.
func Connected(ctx context.Context, pub logging.Publisher, payload ConnectionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventConnected,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
	})
}

// Disconnected publishes a warning event for a closed connection.
func Disconnected(ctx context.Context, pub logging.Publisher, payload ConnectionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDisconnected,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
	})
}

// ModeChanged publishes a debug event for a transform-mode transition.
func ModeChanged(ctx context.Context, pub logging.Publisher, payload ModePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventModeChanged,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
	})
}

// IntentRejected publishes a warning event for a server-side refusal.
func IntentRejected(ctx context.Context, pub logging.Publisher, kind string, payload RejectPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventIntentRejected,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySession,
		Intent:   kind,
		Payload:  payload,
		Extra:    extra,
	})
}

// SnapshotRequested publishes a warning event when the desync policy fires.
func SnapshotRequested(ctx context.Context, pub logging.Publisher, payload SnapshotPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSnapshotRequested,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
	})
}
