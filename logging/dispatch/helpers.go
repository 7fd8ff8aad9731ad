package dispatch

import (
	"context"

	"raise-and-raze/editor/logging"
)

const (
	// EventIntentSubmitted is emitted when a throttle window closes and the
	// pending value is handed to the network layer.
	EventIntentSubmitted logging.EventType = "dispatch.intent_submitted"
	// EventSubmitFailed is emitted when the network layer reports a failed
	// submission; the value is dropped, not retried.
	EventSubmitFailed logging.EventType = "dispatch.submit_failed"
	// EventGestureConfirmed is emitted when a gesture's edits are accepted as final.
	EventGestureConfirmed logging.EventType = "dispatch.gesture_confirmed"
	// EventGestureCancelled is emitted when a gesture is abandoned and its undo requested.
	EventGestureCancelled logging.EventType = "dispatch.gesture_cancelled"
	// EventUndoFailed is emitted when the undo request for a cancelled gesture fails.
	EventUndoFailed logging.EventType = "dispatch.undo_failed"
)

// FailurePayload carries the reason reported by the network layer.
type FailurePayload struct {
	Reason string `json:"reason"`
}

// IntentSubmitted publishes a debug event for one throttled submission.
func IntentSubmitted(ctx context.Context, pub logging.Publisher, gesture string, kind string, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventIntentSubmitted,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryDispatch,
		Gesture:  gesture,
		Intent:   kind,
		Extra:    extra,
	})
}

// SubmitFailed publishes a warning event when a throttled submission is dropped.
func SubmitFailed(ctx context.Context, pub logging.Publisher, gesture string, kind string, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubmitFailed,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryDispatch,
		Gesture:  gesture,
		Intent:   kind,
		Payload:  payload,
		Extra:    extra,
	})
}

// GestureConfirmed publishes a debug event when a gesture is confirmed.
func GestureConfirmed(ctx context.Context, pub logging.Publisher, gesture string, kind string, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGestureConfirmed,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryDispatch,
		Gesture:  gesture,
		Intent:   kind,
		Extra:    extra,
	})
}

// GestureCancelled publishes a debug event when a gesture is cancelled or
// implicitly abandoned on dispatcher teardown.
func GestureCancelled(ctx context.Context, pub logging.Publisher, gesture string, kind string, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGestureCancelled,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryDispatch,
		Gesture:  gesture,
		Intent:   kind,
		Extra:    extra,
	})
}

// UndoFailed publishes an error event when undoing a cancelled gesture fails.
// The failure is surfaced here and the process continues; the edit may remain
// applied server-side.
func UndoFailed(ctx context.Context, pub logging.Publisher, gesture string, kind string, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUndoFailed,
		Severity: logging.SeverityError,
		Category: logging.CategoryDispatch,
		Gesture:  gesture,
		Intent:   kind,
		Payload:  payload,
		Extra:    extra,
	})
}
