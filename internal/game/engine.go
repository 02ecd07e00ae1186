package game

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game/physics"
	"github.com/nx0ly/moomoo2/internal/game/spatial"
	"github.com/nx0ly/moomoo2/internal/game/world"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/protocol"
)

// Outbound delivers encoded plaintexts to connected peers. Implementations
// must not block the caller.
type Outbound interface {
	// Send queues a message for one peer and reports whether it was accepted.
	Send(id uint8, plaintext []byte) bool
	Broadcast(plaintext []byte)
	BroadcastExcept(id uint8, plaintext []byte)
	// Retire is called once a Disconnect for id has been applied; the id may
	// be handed to a new connection afterwards.
	Retire(id uint8)
}

// Options wires an Engine to its collaborators.
type Options struct {
	Config   config.AppConfig
	Bus      *Bus
	Out      Outbound
	Streamer *world.Streamer // nil disables chunk streaming
	Seed     int64           // 0 picks a time-based seed
}

// Engine is the fixed-rate simulation. All world state is owned by the tick
// goroutine; connection tasks reach it only through the Bus.
type Engine struct {
	mu  deadlock.RWMutex
	cfg config.AppConfig
	log *zap.SugaredLogger

	bus      *Bus
	out      Outbound
	streamer *world.Streamer

	players map[uint8]*Player
	order   []*Player // players sorted by id; rebuilt on spawn/remove
	animals []*Animal
	walls   []Wall

	nextAnimalID uint32

	resolver *physics.Resolver
	dynamic  []physics.Body
	static   []physics.Body
	grid     *spatial.Grid
	nearby   []int

	rng *rand.Rand

	tickCount      uint64
	intentsApplied uint64
	lastContacts   int
	lastChunksSent int

	snapshots *SnapshotPool

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}

	ticks atomic.Uint64
}

// NewEngine creates an engine with its boundary walls in place.
func NewEngine(opts Options) *Engine {
	cfg := opts.Config
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	size := cfg.Map.Size

	e := &Engine{
		cfg:       cfg,
		log:       logging.Named("game"),
		bus:       opts.Bus,
		out:       opts.Out,
		streamer:  opts.Streamer,
		players:   make(map[uint8]*Player),
		walls:     boundaryWalls(size, cfg.Map.WallThickness),
		resolver:  physics.NewResolver(spatial.Rect{MinX: 0, MinY: 0, MaxX: size, MaxY: size}, cfg.Collision),
		grid:      spatial.NewGrid(size, size, cfg.Animals.GridCellSize, cfg.Server.MaxConnections),
		rng:       rand.New(rand.NewSource(seed)),
		snapshots: NewSnapshotPool(cfg.Server.MaxConnections, cfg.Animals.MaxFish+cfg.Animals.MaxWolves),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, w := range e.walls {
		e.static = append(e.static, physics.Body{Pos: physics.Vec{X: w.X, Y: w.Y}, Collider: w.Collider})
	}
	return e
}

// Start begins the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(e.cfg.Tick.Period)
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		for {
			select {
			case <-e.ticker.C:
				e.tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	e.log.Infof("🎮 Game engine started, tick every %v", e.cfg.Tick.Period)
}

// Stop halts the tick loop and waits for the current tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	<-e.done
	e.log.Info("🛑 Game engine stopped")
}

// tick runs one simulation step: intents, movement, AI, collision, chunk
// streaming, broadcast, snapshot.
func (e *Engine) tick() {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.tickCount++

	if e.streamer != nil {
		e.streamer.Merge()
	}

	e.bus.Drain(e.apply)

	e.movePlayers()
	e.updateAnimals()
	e.populateAnimals()
	e.resolveCollisions()
	e.streamChunks()
	e.broadcastState()

	elapsed := time.Since(start)
	e.produceSnapshot(elapsed)
	e.ticks.Store(e.tickCount)

	metrics.RecordTick(elapsed, e.cfg.Tick.Period)
	metrics.SetPlayerCount(len(e.players))
	metrics.SetAnimalCount(len(e.animals))
}

// apply executes one intent. Intents for unknown players are dropped.
func (e *Engine) apply(env Envelope) {
	e.intentsApplied++
	switch in := env.Intent.(type) {
	case AddPlayer:
		e.spawnPlayer(env.PlayerID, in.Name)
	case MovePlayer:
		p, ok := e.players[env.PlayerID]
		if !ok {
			return
		}
		if in.Stop || !finite(in.Dir) {
			p.Moving = false
		} else {
			p.MoveDir = in.Dir
			p.Moving = true
		}
	case Disconnect:
		e.removePlayer(env.PlayerID)
		if e.out != nil {
			e.out.Retire(env.PlayerID)
		}
	default:
		e.log.Warnw("unknown intent", "player", env.PlayerID, "type", env.Intent)
		return
	}
	metrics.IntentApplied(env.Intent.kind())
}

func (e *Engine) spawnPlayer(id uint8, name string) {
	if _, exists := e.players[id]; exists {
		e.log.Debugw("duplicate spawn ignored", "player", id)
		return
	}

	x, y := e.randomPoint()
	p := &Player{
		ID:       id,
		Name:     name,
		X:        x,
		Y:        y,
		Collider: colliderFor(e.cfg.Players.Radius),
		Chunks:   world.NewTracker(),
	}
	e.players[id] = p
	e.rebuildOrder()

	if e.out != nil {
		if self, err := protocol.EncodeAddPlayer(true, p.TO()); err == nil {
			e.out.Send(id, self)
		}
		if others, err := protocol.EncodeAddPlayer(false, p.TO()); err == nil {
			e.out.BroadcastExcept(id, others)
		}
		for _, o := range e.order {
			if o.ID == id {
				continue
			}
			if msg, err := protocol.EncodeAddPlayer(false, o.TO()); err == nil {
				e.out.Send(id, msg)
			}
		}
	}

	e.log.Infow("🧍 Player spawned", "player", id, "name", name, "x", x, "y", y)
}

func (e *Engine) removePlayer(id uint8) {
	if _, ok := e.players[id]; !ok {
		return
	}
	delete(e.players, id)
	e.rebuildOrder()

	if e.out != nil {
		if msg, err := protocol.Encode(protocol.OpRemovePlayer, protocol.RemovePlayerData{ID: id}); err == nil {
			e.out.Broadcast(msg)
		}
	}
	e.log.Infow("👋 Player removed", "player", id)
}

func (e *Engine) rebuildOrder() {
	e.order = e.order[:0]
	for _, p := range e.players {
		e.order = append(e.order, p)
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i].ID < e.order[j].ID })
}

// resolveCollisions copies players and animals into the resolver's body
// slice, separates them, and writes positions back by index.
func (e *Engine) resolveCollisions() {
	e.dynamic = e.dynamic[:0]
	for _, p := range e.order {
		e.dynamic = append(e.dynamic, physics.Body{Pos: physics.Vec{X: p.X, Y: p.Y}, Collider: p.Collider})
	}
	for _, a := range e.animals {
		e.dynamic = append(e.dynamic, physics.Body{Pos: physics.Vec{X: a.X, Y: a.Y}, Collider: a.Collider})
	}

	st := e.resolver.Resolve(e.dynamic, e.static)

	n := len(e.order)
	for i, p := range e.order {
		p.X, p.Y = e.dynamic[i].Pos.X, e.dynamic[i].Pos.Y
	}
	for i, a := range e.animals {
		a.X, a.Y = e.dynamic[n+i].Pos.X, e.dynamic[n+i].Pos.Y
	}

	e.lastContacts = st.Resolved + st.StaticResolved
	metrics.ContactsResolved(e.lastContacts)
}

func (e *Engine) streamChunks() {
	e.lastChunksSent = 0
	if e.streamer == nil || e.out == nil {
		return
	}
	budget := e.cfg.Chunks.SendsPerTick
	for _, p := range e.order {
		id := p.ID
		e.lastChunksSent += e.streamer.Visit(p.Chunks, p.X, p.Y, budget, func(b []byte) bool {
			return e.out.Send(id, b)
		})
	}
	if e.lastChunksSent > 0 {
		metrics.ChunksSent(e.lastChunksSent)
	}
}

func (e *Engine) broadcastState() {
	if e.out == nil {
		return
	}

	players := protocol.UpdatePlayerData{Players: make([]protocol.PlayerTO, 0, len(e.order))}
	for _, p := range e.order {
		players.Players = append(players.Players, p.TO())
	}
	if msg, err := protocol.Encode(protocol.OpUpdatePlayers, players); err == nil {
		e.out.Broadcast(msg)
	} else {
		e.log.Errorw("encode player update", "error", err)
	}

	animals := protocol.UpdateAnimalData{Animals: make([]protocol.AnimalTO, 0, len(e.animals))}
	for _, a := range e.animals {
		animals.Animals = append(animals.Animals, a.TO())
	}
	if msg, err := protocol.Encode(protocol.OpUpdateAnimals, animals); err == nil {
		e.out.Broadcast(msg)
	} else {
		e.log.Errorw("encode animal update", "error", err)
	}
}

func (e *Engine) produceSnapshot(elapsed time.Duration) {
	snap := e.snapshots.AcquireWrite()
	snap.Tick = e.tickCount
	snap.TickDuration = elapsed
	snap.PlayerCount = len(e.order)
	snap.AnimalCount = len(e.animals)
	snap.Contacts = e.lastContacts
	snap.ChunksSent = e.lastChunksSent
	snap.IntentsApplied = e.intentsApplied

	for _, p := range e.order {
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:         p.ID,
			Name:       p.Name,
			X:          p.X,
			Y:          p.Y,
			VX:         p.VX,
			VY:         p.VY,
			Moving:     p.Moving,
			ChunksSent: p.Chunks.Len(),
		})
	}
	for _, a := range e.animals {
		snap.Animals = append(snap.Animals, AnimalSnapshot{
			ID:     a.ID,
			Type:   a.Type.String(),
			X:      a.X,
			Y:      a.Y,
			State:  a.State.String(),
			Health: a.Health,
		})
	}
	e.snapshots.PublishWrite()
}

// GetSnapshot returns a copy of the latest published snapshot.
func (e *Engine) GetSnapshot() (Snapshot, bool) {
	return e.snapshots.Latest()
}

// Snapshots exposes the pool for zero-copy readers.
func (e *Engine) Snapshots() *SnapshotPool { return e.snapshots }

// TickCount is the number of completed ticks.
func (e *Engine) TickCount() uint64 { return e.ticks.Load() }

// randomPoint picks a spawn position clear of the boundary walls.
func (e *Engine) randomPoint() (float64, float64) {
	m := e.cfg.Map.WallThickness
	span := e.cfg.Map.Size - 2*m
	return m + e.rng.Float64()*span, m + e.rng.Float64()*span
}

func colliderFor(radius float64) physics.Collider { return physics.Circle(radius) }
