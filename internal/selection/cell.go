package selection

import "sync"

// Cell is the current-value holder for the active selection. Readers poll it;
// there is no push interface. The version counter lets pollers detect writes
// without comparing contents.
type Cell struct {
	mu      sync.RWMutex
	current Selection
	version uint64
}

func NewCell() *Cell {
	return &Cell{}
}

// Snapshot returns a copy of the current selection and its version.
func (c *Cell) Snapshot() (Selection, uint64) {
	if c == nil {
		return nil, 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone(), c.version
}

// Replace installs a new selection and returns the new version.
func (c *Cell) Replace(s Selection) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s.Clone()
	c.version++
	return c.version
}

// Version reports the write counter without copying the selection.
func (c *Cell) Version() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
