package resolution

import (
	"context"

	"raise-and-raze/editor/logging"
)

const (
	// EventTargetsChanged is emitted when the resolved target set differs from
	// the previous resolution.
	EventTargetsChanged logging.EventType = "resolution.targets_changed"
	// EventEntryUnresolved is emitted per selection entry that no longer maps
	// to a live entity. Diagnostic only; the entry is filtered, not an error.
	EventEntryUnresolved logging.EventType = "resolution.entry_unresolved"
)

// ChangePayload summarizes one published resolution.
type ChangePayload struct {
	Selected int `json:"selected"`
	Resolved int `json:"resolved"`
}

// TargetsChanged publishes the new resolved target list.
func TargetsChanged(ctx context.Context, pub logging.Publisher, targets []string, payload ChangePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTargetsChanged,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryResolution,
		Targets:  targets,
		Payload:  payload,
		Extra:    extra,
	})
}

// EntryUnresolved publishes a diagnostic for a selection entry that is gone
// or not yet replicated.
func EntryUnresolved(ctx context.Context, pub logging.Publisher, uid string, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntryUnresolved,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryResolution,
		Targets:  []string{uid},
		Extra:    extra,
	})
}
