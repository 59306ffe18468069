package pvbridge

import "sync"

// Driver publishes PV values to clients.
//
// SetParam stores a value without notifying clients. UpdatePVs notifies clients of every value
// set since the previous call.
type Driver interface {
	SetParam(name string, value any)
	GetParam(name string) any
	UpdatePVs()
}

// MemDriver is an in-process Driver. It keeps the values in a map and counts updates.
type MemDriver struct {
	mu      sync.RWMutex
	params  map[string]any
	dirty   map[string]struct{}
	updates int
	posted  int
}

var _ Driver = (*MemDriver)(nil)

// NewMemDriver creates an empty MemDriver.
func NewMemDriver() *MemDriver {
	return &MemDriver{
		params: make(map[string]any),
		dirty:  make(map[string]struct{}),
	}
}

func (d *MemDriver) SetParam(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.params[name] = value
	d.dirty[name] = struct{}{}
}

func (d *MemDriver) GetParam(name string) any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.params[name]
}

func (d *MemDriver) UpdatePVs() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updates++
	d.posted += len(d.dirty)
	clear(d.dirty)
}

// Updates returns the number of UpdatePVs calls.
func (d *MemDriver) Updates() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.updates
}

// Posted returns the number of values posted to clients by UpdatePVs.
func (d *MemDriver) Posted() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.posted
}
