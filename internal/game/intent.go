package game

import (
	"context"
)

// Intent is a request from a connection task to the simulation. The set is
// closed: AddPlayer, MovePlayer and Disconnect.
type Intent interface {
	kind() string
}

// AddPlayer spawns the sender's player.
type AddPlayer struct {
	Name string
}

// MovePlayer sets or clears the sender's heading.
type MovePlayer struct {
	Dir  float64 // radians
	Stop bool    // clear the heading; friction applies
}

// Disconnect removes the sender's player, if any, and retires its id.
type Disconnect struct {
	Reason string
}

func (AddPlayer) kind() string  { return "add_player" }
func (MovePlayer) kind() string { return "move" }
func (Disconnect) kind() string { return "disconnect" }

// Envelope tags an intent with the id of the connection that produced it.
type Envelope struct {
	PlayerID uint8
	Intent   Intent
}

// Bus is the bounded multi-producer, single-consumer queue between
// connection tasks and the tick. Per-producer order is preserved.
type Bus struct {
	ch chan Envelope
}

// NewBus creates a bus holding at most size pending intents.
func NewBus(size int) *Bus {
	return &Bus{ch: make(chan Envelope, size)}
}

// Publish enqueues env, waiting for space until ctx is done.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues env only if there is space.
func (b *Bus) TryPublish(env Envelope) bool {
	select {
	case b.ch <- env:
		return true
	default:
		return false
	}
}

// Drain hands every intent queued at call time to fn without blocking.
// Intents published while draining wait for the next call.
func (b *Bus) Drain(fn func(Envelope)) int {
	n := len(b.ch)
	for i := 0; i < n; i++ {
		select {
		case env := <-b.ch:
			fn(env)
		default:
			return i
		}
	}
	return n
}

// Len is the number of queued intents.
func (b *Bus) Len() int { return len(b.ch) }
