package entity

import "github.com/google/uuid"

// UID is the persistent identifier of a world entity. It survives entity
// recreation and network round-trips, unlike the transient handles the
// mirror hands out for a single read view.
type UID string

// NewUID mints a process-unique persistent identifier.
func NewUID() UID {
	return UID(uuid.NewString())
}

// NewUIDs mints n fresh identifiers.
func NewUIDs(n int) []UID {
	if n <= 0 {
		return nil
	}
	uids := make([]UID, n)
	for i := range uids {
		uids[i] = NewUID()
	}
	return uids
}

// Strings converts a uid slice for wire payloads and log events.
func Strings(uids []UID) []string {
	if len(uids) == 0 {
		return nil
	}
	out := make([]string, len(uids))
	for i, uid := range uids {
		out[i] = string(uid)
	}
	return out
}
