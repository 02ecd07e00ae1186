package server

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nx0ly/moomoo2/internal/metrics"
)

// Registry maps player ids to live peers and owns the id pool. It is the
// engine's Outbound: sends never block the tick.
type Registry struct {
	peers sync.Map // uint8 -> *Peer
	ids   *IDAllocator
	count atomic.Int32
}

func NewRegistry(maxConnections int) *Registry {
	return &Registry{ids: NewIDAllocator(maxConnections)}
}

// Reserve takes an id for a connection that finished its handshake. The id
// returns to the pool through Retire.
func (r *Registry) Reserve() (uint8, error) { return r.ids.Acquire() }

func (r *Registry) Register(p *Peer) {
	r.peers.Store(p.ID, p)
	metrics.SetConnections(int(r.count.Add(1)))
}

// Deregister removes p if it is still the peer registered under its id.
func (r *Registry) Deregister(p *Peer) bool {
	if !r.peers.CompareAndDelete(p.ID, p) {
		return false
	}
	metrics.SetConnections(int(r.count.Add(-1)))
	return true
}

func (r *Registry) Get(id uint8) (*Peer, bool) {
	v, ok := r.peers.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Peer), true
}

func (r *Registry) Len() int { return int(r.count.Load()) }

// LiveIDs counts reserved ids, including ones whose Disconnect is pending.
func (r *Registry) LiveIDs() int { return r.ids.Live() }

func (r *Registry) Send(id uint8, plaintext []byte) bool {
	p, ok := r.Get(id)
	if !ok {
		return false
	}
	return p.Enqueue(plaintext)
}

func (r *Registry) Broadcast(plaintext []byte) {
	r.peers.Range(func(_, v any) bool {
		v.(*Peer).Enqueue(plaintext)
		return true
	})
}

func (r *Registry) BroadcastExcept(id uint8, plaintext []byte) {
	r.peers.Range(func(k, v any) bool {
		if k.(uint8) != id {
			v.(*Peer).Enqueue(plaintext)
		}
		return true
	})
}

// Retire frees id once the engine has applied its Disconnect.
func (r *Registry) Retire(id uint8) { r.ids.Release(id) }

// CloseAll closes every registered peer; their connection tasks deregister
// themselves.
func (r *Registry) CloseAll(reason CloseReason) {
	r.peers.Range(func(_, v any) bool {
		v.(*Peer).Close(reason)
		return true
	})
}

// PeerInfo describes a connection for the debug API.
type PeerInfo struct {
	ID      uint8         `json:"id"`
	Trace   string        `json:"trace"`
	Remote  string        `json:"remote"`
	Queued  int           `json:"queued"`
	Elapsed time.Duration `json:"connected_ns"`
}

// Peers lists live connections ordered by id.
func (r *Registry) Peers() []PeerInfo {
	out := make([]PeerInfo, 0, r.Len())
	now := time.Now()
	r.peers.Range(func(_, v any) bool {
		p := v.(*Peer)
		out = append(out, PeerInfo{ID: p.ID, Trace: p.Trace, Remote: p.Remote, Queued: p.Queued(), Elapsed: now.Sub(p.Since)})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
