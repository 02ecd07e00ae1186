package game

import (
	"sync"
	"sync/atomic"
	"time"
)

// PlayerSnapshot is an immutable copy of player state for observers.
type PlayerSnapshot struct {
	ID         uint8   `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
	Moving     bool    `json:"moving"`
	ChunksSent int     `json:"chunksSent"`
}

// AnimalSnapshot is an immutable copy of animal state.
type AnimalSnapshot struct {
	ID     uint32  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	State  string  `json:"state"`
	Health int     `json:"health"`
}

// Snapshot is the complete observable state after one tick.
type Snapshot struct {
	Sequence     uint64        `json:"sequence"`
	Timestamp    time.Time     `json:"timestamp"`
	Tick         uint64        `json:"tick"`
	TickDuration time.Duration `json:"tickDurationNs"`

	Players []PlayerSnapshot `json:"players"`
	Animals []AnimalSnapshot `json:"animals"`

	PlayerCount    int    `json:"playerCount"`
	AnimalCount    int    `json:"animalCount"`
	Contacts       int    `json:"contacts"`
	ChunksSent     int    `json:"chunksSent"`
	IntentsApplied uint64 `json:"intentsApplied"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() Snapshot {
	c := *s
	c.Players = append([]PlayerSnapshot(nil), s.Players...)
	c.Animals = append([]AnimalSnapshot(nil), s.Animals...)
	return c
}

type snapshotSlot struct {
	mu   sync.RWMutex
	snap Snapshot
}

// SnapshotPool triple-buffers snapshots between the tick (single producer)
// and any number of readers. The producer writes the slot after the
// published one, so readers only contend with it when they lag two ticks.
type SnapshotPool struct {
	slots     [3]snapshotSlot
	writeIdx  atomic.Uint32
	readIdx   atomic.Uint32
	sequence  atomic.Uint64
	published atomic.Bool
}

// NewSnapshotPool creates a pool with preallocated slices.
func NewSnapshotPool(maxPlayers, maxAnimals int) *SnapshotPool {
	p := &SnapshotPool{}
	for i := range p.slots {
		p.slots[i].snap = Snapshot{
			Players: make([]PlayerSnapshot, 0, maxPlayers),
			Animals: make([]AnimalSnapshot, 0, maxAnimals),
		}
	}
	return p
}

// AcquireWrite locks and resets the next slot. Producer only; must be
// followed by PublishWrite.
func (p *SnapshotPool) AcquireWrite() *Snapshot {
	idx := (p.readIdx.Load() + 1) % 3
	p.writeIdx.Store(idx)
	slot := &p.slots[idx]
	slot.mu.Lock()

	snap := &slot.snap
	snap.Players = snap.Players[:0]
	snap.Animals = snap.Animals[:0]
	snap.Sequence = p.sequence.Add(1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite unlocks the written slot and makes it the latest.
func (p *SnapshotPool) PublishWrite() {
	idx := p.writeIdx.Load()
	p.slots[idx].mu.Unlock()
	p.readIdx.Store(idx)
	p.published.Store(true)
}

// Read calls fn with the latest snapshot, which must not be retained.
// It returns false when nothing has been published yet.
func (p *SnapshotPool) Read(fn func(*Snapshot)) bool {
	if !p.published.Load() {
		return false
	}
	slot := &p.slots[p.readIdx.Load()%3]
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	fn(&slot.snap)
	return true
}

// Latest returns a deep copy of the latest snapshot.
func (p *SnapshotPool) Latest() (Snapshot, bool) {
	var out Snapshot
	ok := p.Read(func(s *Snapshot) { out = s.Clone() })
	return out, ok
}
