package world

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/protocol"
)

func testChunkConfig() config.ChunkConfig {
	cfg := config.DefaultChunks()
	cfg.LoadRadius = 1
	cfg.Workers = 2
	cfg.CacheMaxCost = 1 << 20
	return cfg
}

func newTestStreamer(t *testing.T, cfg config.ChunkConfig) *Streamer {
	t.Helper()
	s, err := NewStreamer(cfg, NewGenerator(cfg, config.DefaultEntities()))
	if err != nil {
		t.Fatalf("NewStreamer failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// waitMerged merges until n chunks are committed or the deadline passes.
func waitMerged(t *testing.T, s *Streamer, n int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.Merge()
		if s.Stats().Committed >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d committed chunks, have %+v", n, s.Stats())
}

func TestKeyAt(t *testing.T) {
	tests := []struct {
		x, y float64
		want ChunkKey
	}{
		{0, 0, ChunkKey{0, 0}},
		{767.9, 767.9, ChunkKey{0, 0}},
		{768, 0, ChunkKey{1, 0}},
		{-0.1, -0.1, ChunkKey{-1, -1}},
		{-768, 1536, ChunkKey{-1, 2}},
		{-769, 0, ChunkKey{-2, 0}},
	}
	for _, tt := range tests {
		if got := KeyAt(tt.x, tt.y, 32, 24); got != tt.want {
			t.Errorf("KeyAt(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPackDistinguishesSigns(t *testing.T) {
	keys := []ChunkKey{{0, 0}, {-1, 0}, {0, -1}, {1, 0}, {0, 1}, {-1, -1}}
	seen := map[uint64]ChunkKey{}
	for _, k := range keys {
		if prev, dup := seen[k.Pack()]; dup {
			t.Errorf("%v and %v pack to the same value", prev, k)
		}
		seen[k.Pack()] = k
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		v    float64
		want TileType
	}{
		{-0.5, Ocean},
		{-0.0001, Ocean},
		{0, Sand},
		{0.049, Sand},
		{0.05, Grass},
		{0.9, Grass},
	}
	for _, tt := range tests {
		if got := Classify(tt.v); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	cfg := config.DefaultChunks()
	a := NewGenerator(cfg, config.DefaultEntities()).Generate(ChunkKey{3, -2})
	b := NewGenerator(cfg, config.DefaultEntities()).Generate(ChunkKey{3, -2})

	if len(a.Tiles) != 32*32 {
		t.Fatalf("Expected %d tiles, got %d", 32*32, len(a.Tiles))
	}
	if !bytes.Equal(a.TileBytes(), b.TileBytes()) {
		t.Error("Same seed and key must generate identical tiles")
	}
	if len(a.Resources) != len(b.Resources) {
		t.Error("Same seed and key must scatter identical resources")
	}
	for _, tile := range a.Tiles {
		if tile > Grass {
			t.Fatalf("Unexpected tile value %d", tile)
		}
	}
}

// Concurrent requests for one missing key dispatch exactly one job.
func TestConcurrentRequestsDispatchOnce(t *testing.T) {
	s := newTestStreamer(t, testChunkConfig())
	key := ChunkKey{5, 5}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s.Request(key)
		}()
	}
	close(start)
	wg.Wait()

	if got := s.Stats().Dispatched; got != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", got)
	}

	// still pending: further requests do not dispatch again
	s.Request(key)
	if got := s.Stats().Dispatched; got != 1 {
		t.Errorf("Expected dispatch count to stay 1, got %d", got)
	}

	s.Start()
	waitMerged(t, s, 1)

	if _, ok := s.Lookup(key); !ok {
		t.Fatal("Chunk should be committed after merge")
	}
	if st := s.Stats(); st.Pending != 0 || st.Staged != 0 {
		t.Errorf("Expected pending and staging cleared at merge, got %+v", st)
	}
	if _, ok := s.Request(key); !ok {
		t.Error("Committed chunk should be returned without dispatch")
	}
	if got := s.Stats().Dispatched; got != 1 {
		t.Errorf("Expected no redispatch after commit, got %d", got)
	}
}

// Two players in the same area receive byte-identical chunk packets and the
// chunk is generated once.
func TestVisitSharesChunksBetweenPlayers(t *testing.T) {
	s := newTestStreamer(t, testChunkConfig())
	s.Start()

	a, b := NewTracker(), NewTracker()
	got := map[string][][]byte{}
	collect := func(name string) func([]byte) bool {
		return func(p []byte) bool {
			got[name] = append(got[name], p)
			return true
		}
	}

	// 3x3 area around chunk (0,0)
	s.Visit(a, 100, 100, 0, collect("a"))
	s.Visit(b, 110, 90, 0, collect("b"))
	waitMerged(t, s, 9)

	s.Visit(a, 100, 100, 0, collect("a"))
	s.Visit(b, 110, 90, 0, collect("b"))

	if len(got["a"]) != 9 || len(got["b"]) != 9 {
		t.Fatalf("Expected 9 chunks each, got a=%d b=%d", len(got["a"]), len(got["b"]))
	}
	for i := range got["a"] {
		if !bytes.Equal(got["a"][i], got["b"][i]) {
			t.Errorf("Chunk packet %d differs between players", i)
		}
	}
	if d := s.Stats().Dispatched; d != 9 {
		t.Errorf("Expected 9 generation jobs, got %d", d)
	}

	msg, err := protocol.DecodeServer(got["a"][0])
	if err != nil {
		t.Fatalf("Chunk packet does not decode: %v", err)
	}
	if msg.Op != protocol.OpMapChunk || msg.Chunk.CX != 0 || msg.Chunk.CY != 0 {
		t.Errorf("Expected nearest chunk (0,0) first, got %+v", msg.Chunk)
	}
	if len(msg.Chunk.Tiles) != 32*32 {
		t.Errorf("Expected 1024 tiles, got %d", len(msg.Chunk.Tiles))
	}

	// trackers suppress resends
	s.Visit(a, 100, 100, 0, collect("a"))
	if len(got["a"]) != 9 {
		t.Errorf("Expected no resend, got %d packets", len(got["a"]))
	}
}

func TestVisitBudgetAndRefusedDelivery(t *testing.T) {
	s := newTestStreamer(t, testChunkConfig())
	s.Start()

	tr := NewTracker()
	s.Visit(tr, 0, 0, 0, func([]byte) bool { return false })
	waitMerged(t, s, 9)

	// a refused packet is not marked as sent
	s.Visit(tr, 0, 0, 0, func([]byte) bool { return false })
	if tr.Len() != 0 {
		t.Fatalf("Refused deliveries must not be tracked, got %d", tr.Len())
	}

	if n := s.Visit(tr, 0, 0, 4, func([]byte) bool { return true }); n != 4 {
		t.Errorf("Expected 4 sends under budget, got %d", n)
	}
	if n := s.Visit(tr, 0, 0, 4, func([]byte) bool { return true }); n != 4 {
		t.Errorf("Expected 4 more sends, got %d", n)
	}
	if n := s.Visit(tr, 0, 0, 4, func([]byte) bool { return true }); n != 1 {
		t.Errorf("Expected the last chunk, got %d", n)
	}
	if tr.Len() != 9 {
		t.Errorf("Expected 9 tracked chunks, got %d", tr.Len())
	}
}

func TestRequestBackpressureRetries(t *testing.T) {
	cfg := testChunkConfig()
	cfg.DispatchQueue = 1
	s := newTestStreamer(t, cfg)

	s.Request(ChunkKey{0, 0})
	s.Request(ChunkKey{1, 0}) // queue full, withdrawn

	if st := s.Stats(); st.Dispatched != 1 || st.Pending != 1 {
		t.Fatalf("Expected one dispatched and one pending, got %+v", st)
	}

	s.Start()
	waitMerged(t, s, 1)

	s.Request(ChunkKey{1, 0})
	if d := s.Stats().Dispatched; d != 2 {
		t.Errorf("Expected the deferred key to dispatch on retry, got %d", d)
	}
}

func BenchmarkGenerateChunk(b *testing.B) {
	g := NewGenerator(config.DefaultChunks(), config.DefaultEntities())
	for i := 0; i < b.N; i++ {
		g.Generate(ChunkKey{int32(i), int32(i)})
	}
}
