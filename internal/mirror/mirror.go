package mirror

import (
	"sort"
	"sync"

	"raise-and-raze/editor/internal/entity"
)

// Handle is the transient in-process reference to a live entity. Handles are
// allocated monotonically and never reused within a process run; zero is
// never a valid handle. A handle is only meaningful inside the read view it
// was looked up in.
type Handle uint64

// EntityState is one replicated entity record.
type EntityState struct {
	UID      entity.UID `json:"uid"`
	Kind     string     `json:"kind"`
	Position [3]float64 `json:"position"`
	Revision uint64     `json:"revision"`
}

// Mirror is the local replica of authoritative entity state. It is
// read-mostly; only the replication feed mutates it. Readers go through Read
// so the lock is held exactly for the lookup phase and released before any
// downstream publishing.
type Mirror struct {
	mu       sync.RWMutex
	byHandle map[Handle]EntityState
	byUID    map[entity.UID]Handle
	next     Handle
}

func New() *Mirror {
	return &Mirror{
		byHandle: make(map[Handle]EntityState),
		byUID:    make(map[entity.UID]Handle),
	}
}

// View is the read-locked view passed to Read callbacks. It must not escape
// the callback.
type View struct {
	m *Mirror
}

// Lookup resolves a persistent uid to its live handle.
func (v View) Lookup(uid entity.UID) (Handle, bool) {
	if v.m == nil {
		return 0, false
	}
	h, ok := v.m.byUID[uid]
	return h, ok
}

// Exists reports whether the handle still refers to a live entity.
func (v View) Exists(h Handle) bool {
	if v.m == nil {
		return false
	}
	_, ok := v.m.byHandle[h]
	return ok
}

// State reads the full record behind a handle.
func (v View) State(h Handle) (EntityState, bool) {
	if v.m == nil {
		return EntityState{}, false
	}
	state, ok := v.m.byHandle[h]
	return state, ok
}

// Read runs fn while holding the read lock.
func (m *Mirror) Read(fn func(View)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(View{m: m})
}

// ApplySpawn installs or overwrites the entity for uid. An existing uid keeps
// its handle. Reports whether the table changed.
func (m *Mirror) ApplySpawn(uid entity.UID, kind string, pos [3]float64) bool {
	if m == nil || uid == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byUID[uid]
	if !ok {
		m.next++
		h = m.next
		m.byUID[uid] = h
	}
	m.byHandle[h] = EntityState{UID: uid, Kind: kind, Position: pos}
	return true
}

// ApplyUpdate overwrites position and revision for a known uid. Updates with
// a stale revision, or for an unknown uid, change nothing and return false.
func (m *Mirror) ApplyUpdate(uid entity.UID, pos [3]float64, revision uint64) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byUID[uid]
	if !ok {
		return false
	}
	state := m.byHandle[h]
	if revision != 0 && revision <= state.Revision {
		return false
	}
	state.Position = pos
	state.Revision = revision
	m.byHandle[h] = state
	return true
}

// ApplyDespawn removes the entity for uid. Reports whether it was present.
func (m *Mirror) ApplyDespawn(uid entity.UID) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byUID[uid]
	if !ok {
		return false
	}
	delete(m.byUID, uid)
	delete(m.byHandle, h)
	return true
}

// ApplySnapshot replaces the whole table with the authoritative entity list.
// Surviving uids keep their handles so resolved target sequences stay stable
// across a resync.
func (m *Mirror) ApplySnapshot(entities []EntityState) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	nextByHandle := make(map[Handle]EntityState, len(entities))
	nextByUID := make(map[entity.UID]Handle, len(entities))
	for _, state := range entities {
		if state.UID == "" {
			continue
		}
		h, ok := m.byUID[state.UID]
		if !ok {
			m.next++
			h = m.next
		}
		nextByUID[state.UID] = h
		nextByHandle[h] = state
	}
	m.byHandle = nextByHandle
	m.byUID = nextByUID
}

// Len reports the number of live entities.
func (m *Mirror) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHandle)
}

// SnapshotState copies the table, sorted by uid, for diagnostics.
func (m *Mirror) SnapshotState() []EntityState {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	states := make([]EntityState, 0, len(m.byHandle))
	for _, state := range m.byHandle {
		states = append(states, state)
	}
	m.mu.RUnlock()
	sort.Slice(states, func(i, j int) bool { return states[i].UID < states[j].UID })
	return states
}
