package server

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/game"
	"github.com/nx0ly/moomoo2/internal/metrics"
)

var disconnectPublishTimeout = 2 * time.Second

// guard is armed once a peer is registered. Its finish method runs on every
// exit of the connection task, panics included.
type guard struct {
	reg  *Registry
	bus  *game.Bus
	peer *Peer
	log  *zap.SugaredLogger
}

// finish must be deferred directly so recover sees the task's panic.
func (g *guard) finish(reason *CloseReason) {
	if r := recover(); r != nil {
		g.log.Errorw("💥 connection task panicked", "panic", r, "stack", string(debug.Stack()))
		*reason = ReasonInternal
	}

	g.reg.Deregister(g.peer)
	g.peer.Close(*reason)
	// A close triggered elsewhere (slow consumer, write failure) wins.
	*reason = g.peer.Reason()

	ctx, cancel := context.WithTimeout(context.Background(), disconnectPublishTimeout)
	defer cancel()
	env := game.Envelope{PlayerID: g.peer.ID, Intent: game.Disconnect{Reason: reason.Label()}}
	if err := g.bus.Publish(ctx, env); err != nil {
		// Nothing will apply a Disconnect, so free the id here.
		g.log.Errorw("disconnect intent dropped", "err", err)
		g.reg.Retire(g.peer.ID)
	}

	metrics.ConnectionClosed(reason.Label())
	g.log.Infow("🔌 Connection closed", "reason", reason.Message)
}
