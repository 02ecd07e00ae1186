package world

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/protocol"
)

// Streamer owns chunk generation and delivery.
//
// A chunk moves through three maps: pending (a generation job exists),
// staging (generated, not yet visible) and committed (visible to the tick).
// Workers only write staging. Merge, called by the tick, moves staged chunks
// into committed and clears their pending entries in the same step, so a key
// is dispatched at most once until it is committed.
type Streamer struct {
	cfg config.ChunkConfig
	gen *Generator
	log *zap.SugaredLogger

	committed sync.Map // ChunkKey -> *Chunk
	staging   sync.Map // ChunkKey -> *Chunk
	pending   sync.Map // ChunkKey -> struct{}

	committedN atomic.Int64
	stagedN    atomic.Int64
	pendingN   atomic.Int64
	dispatched atomic.Uint64

	jobs    chan ChunkKey
	workers sizedwaitgroup.SizedWaitGroup
	encoded *ristretto.Cache[uint64, []byte]

	offsets []ChunkKey // load-radius offsets, nearest first

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

// StreamerStats is a point-in-time view for the debug API.
type StreamerStats struct {
	Committed  int64  `json:"committed"`
	Staged     int64  `json:"staged"`
	Pending    int64  `json:"pending"`
	Dispatched uint64 `json:"dispatched"`
}

// NewStreamer creates a streamer. Call Start to begin generating.
func NewStreamer(cfg config.ChunkConfig, gen *Generator) (*Streamer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 100_000,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk packet cache: %w", err)
	}

	return &Streamer{
		cfg:      cfg,
		gen:      gen,
		log:      logging.Named("world"),
		jobs:     make(chan ChunkKey, cfg.DispatchQueue),
		workers:  sizedwaitgroup.New(cfg.Workers),
		encoded:  cache,
		offsets:  loadOffsets(cfg.LoadRadius),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// loadOffsets lists every offset in the (2r+1)^2 square, sorted by distance
// so nearby chunks are requested and sent first.
func loadOffsets(r int) []ChunkKey {
	out := make([]ChunkKey, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			out = append(out, ChunkKey{int32(dx), int32(dy)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return a.X*a.X+a.Y*a.Y < b.X*b.X+b.Y*b.Y
	})
	return out
}

// Start launches the dispatcher. Workers are bounded by cfg.Workers.
func (s *Streamer) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.dispatch()
	s.log.Infow("🗺️ Chunk streamer started", "workers", s.cfg.Workers, "load_radius", s.cfg.LoadRadius)
}

// Stop halts dispatching and waits for in-flight jobs. Safe to call twice.
func (s *Streamer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.started.Load() {
			<-s.done
		}
		s.workers.Wait()
		s.encoded.Close()
	})
}

func (s *Streamer) dispatch() {
	defer close(s.done)
	for {
		select {
		case key := <-s.jobs:
			s.workers.Add()
			go s.generate(key)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Streamer) generate(key ChunkKey) {
	defer s.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			// let the next tick retry
			s.log.Errorw("chunk generation panicked", "chunk", key, "panic", r)
			s.pending.Delete(key)
			s.pendingN.Add(-1)
		}
	}()

	start := time.Now()
	chunk := s.gen.Generate(key)
	metrics.RecordChunkGenerated(time.Since(start))

	if _, loaded := s.staging.LoadOrStore(key, chunk); !loaded {
		s.stagedN.Add(1)
	}
}

// Merge moves every staged chunk into the committed map and clears its
// pending marker. It returns how many chunks became visible.
func (s *Streamer) Merge() int {
	merged := 0
	s.staging.Range(func(k, v any) bool {
		key := k.(ChunkKey)
		if _, loaded := s.committed.LoadOrStore(key, v); !loaded {
			s.committedN.Add(1)
			merged++
		}
		s.staging.Delete(key)
		s.stagedN.Add(-1)
		if _, had := s.pending.LoadAndDelete(key); had {
			s.pendingN.Add(-1)
		}
		return true
	})
	if merged > 0 {
		metrics.SetChunksCommitted(int(s.committedN.Load()))
	}
	return merged
}

// Lookup returns a committed chunk.
func (s *Streamer) Lookup(key ChunkKey) (*Chunk, bool) {
	v, ok := s.committed.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Chunk), true
}

// Request returns the committed chunk for key, or schedules its generation
// and returns false. Concurrent requests for one key dispatch one job.
// The caller never blocks: if the job queue is full the pending marker is
// withdrawn and a later request retries.
func (s *Streamer) Request(key ChunkKey) (*Chunk, bool) {
	if c, ok := s.Lookup(key); ok {
		return c, true
	}
	if _, loaded := s.pending.LoadOrStore(key, struct{}{}); loaded {
		return nil, false
	}
	s.pendingN.Add(1)

	select {
	case s.jobs <- key:
		s.dispatched.Add(1)
	default:
		s.pending.Delete(key)
		s.pendingN.Add(-1)
		metrics.ChunkDispatchDropped()
	}
	return nil, false
}

// Packet returns the encoded MapChunk plaintext for a committed chunk,
// served from the cache when possible.
func (s *Streamer) Packet(c *Chunk) ([]byte, error) {
	ck := c.Key.Pack()
	if p, ok := s.encoded.Get(ck); ok {
		return p, nil
	}
	p, err := protocol.Encode(protocol.OpMapChunk, protocol.MapChunkData{
		CX:    c.Key.X,
		CY:    c.Key.Y,
		Tiles: c.TileBytes(),
	})
	if err != nil {
		return nil, err
	}
	s.encoded.Set(ck, p, int64(len(p)))
	return p, nil
}

// Visit streams the area around (x, y) to one player. Chunks the tracker has
// not seen are sent through deliver when committed (at most budget per call,
// budget <= 0 meaning unlimited) or requested otherwise. A chunk is marked
// only when deliver accepts it.
func (s *Streamer) Visit(t *Tracker, x, y float64, budget int, deliver func([]byte) bool) int {
	center := KeyAt(x, y, s.cfg.ChunkSize, s.cfg.TileSize)
	sent := 0
	for _, off := range s.offsets {
		key := ChunkKey{center.X + off.X, center.Y + off.Y}
		if t.Has(key) {
			continue
		}
		c, ok := s.Request(key)
		if !ok {
			continue
		}
		if budget > 0 && sent >= budget {
			continue
		}
		p, err := s.Packet(c)
		if err != nil {
			s.log.Warnw("encode chunk", "chunk", key, "error", err)
			continue
		}
		if deliver(p) {
			t.Mark(key)
			sent++
		}
	}
	return sent
}

// Range calls fn for every committed chunk until fn returns false.
func (s *Streamer) Range(fn func(*Chunk) bool) {
	s.committed.Range(func(_, v any) bool {
		return fn(v.(*Chunk))
	})
}

// Stats returns current counters.
func (s *Streamer) Stats() StreamerStats {
	return StreamerStats{
		Committed:  s.committedN.Load(),
		Staged:     s.stagedN.Load(),
		Pending:    s.pendingN.Load(),
		Dispatched: s.dispatched.Load(),
	}
}

// Config returns the chunk geometry.
func (s *Streamer) Config() config.ChunkConfig { return s.cfg }
