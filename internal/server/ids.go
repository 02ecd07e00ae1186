package server

import (
	"errors"
	"sync"
)

// ErrRegistryFull is returned when every player id is in use.
var ErrRegistryFull = errors.New("no free player id")

const idSpace = 256

// IDAllocator hands out single-byte player ids. It scans forward from a
// cursor so a just-released id is the last one to come back.
type IDAllocator struct {
	mu     sync.Mutex
	used   [idSpace]bool
	live   int
	limit  int
	cursor int
}

// NewIDAllocator caps concurrent ids at limit (at most 256).
func NewIDAllocator(limit int) *IDAllocator {
	if limit <= 0 || limit > idSpace {
		limit = idSpace
	}
	return &IDAllocator{limit: limit}
}

func (a *IDAllocator) Acquire() (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.live >= a.limit {
		return 0, ErrRegistryFull
	}
	for i := 0; i < idSpace; i++ {
		id := (a.cursor + i) % idSpace
		if !a.used[id] {
			a.used[id] = true
			a.live++
			a.cursor = (id + 1) % idSpace
			return uint8(id), nil
		}
	}
	return 0, ErrRegistryFull
}

// Release returns id to the pool. Releasing a free id is a no-op.
func (a *IDAllocator) Release(id uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used[id] {
		a.used[id] = false
		a.live--
	}
}

func (a *IDAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
