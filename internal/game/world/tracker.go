package world

// Tracker records which chunks one player has been sent. It only grows and
// is dropped with the player. Owned by the tick goroutine.
type Tracker struct {
	sent map[ChunkKey]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{sent: make(map[ChunkKey]struct{})}
}

func (t *Tracker) Has(k ChunkKey) bool {
	_, ok := t.sent[k]
	return ok
}

func (t *Tracker) Mark(k ChunkKey) { t.sent[k] = struct{}{} }

func (t *Tracker) Len() int { return len(t.sent) }
