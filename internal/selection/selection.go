package selection

import "raise-and-raze/editor/internal/entity"

// Mode controls how a click combines with the existing selection.
type Mode string

const (
	ModeSet    Mode = "set"
	ModeAdd    Mode = "add"
	ModeRemove Mode = "remove"
)

// ModeForModifiers derives the accumulation mode from modifier-key state.
// Shift wins when both modifiers are held.
func ModeForModifiers(shift, control bool) Mode {
	switch {
	case shift:
		return ModeAdd
	case control:
		return ModeRemove
	default:
		return ModeSet
	}
}

// Selection is an ordered set of persistent entity uids. Entries may refer to
// entities that no longer exist or have not replicated yet; resolution filters
// them later. Methods return new slices and never mutate the receiver.
type Selection []entity.UID

func (s Selection) Contains(uid entity.UID) bool {
	for _, existing := range s {
		if existing == uid {
			return true
		}
	}
	return false
}

// Add appends uid unless it is already present.
func (s Selection) Add(uid entity.UID) Selection {
	if s.Contains(uid) {
		return s.Clone()
	}
	next := make(Selection, 0, len(s)+1)
	next = append(next, s...)
	return append(next, uid)
}

// Remove deletes uid preserving the order of the remaining entries.
func (s Selection) Remove(uid entity.UID) Selection {
	next := make(Selection, 0, len(s))
	for _, existing := range s {
		if existing != uid {
			next = append(next, existing)
		}
	}
	return next
}

func (s Selection) Toggle(uid entity.UID) Selection {
	if s.Contains(uid) {
		return s.Remove(uid)
	}
	return s.Add(uid)
}

// Apply implements click semantics for the given accumulation mode.
func (s Selection) Apply(mode Mode, clicked entity.UID) Selection {
	switch mode {
	case ModeAdd:
		return s.Add(clicked)
	case ModeRemove:
		return s.Remove(clicked)
	default:
		return Selection{clicked}
	}
}

func (s Selection) Equal(other Selection) bool {
	if len(s) != len(other) {
		return false
	}
	for i, uid := range s {
		if other[i] != uid {
			return false
		}
	}
	return true
}

func (s Selection) Clone() Selection {
	if len(s) == 0 {
		return nil
	}
	return append(Selection(nil), s...)
}
