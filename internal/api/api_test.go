package api

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game"
	"github.com/nx0ly/moomoo2/internal/game/world"
	"github.com/nx0ly/moomoo2/internal/ratelimit"
	"github.com/nx0ly/moomoo2/internal/server"
)

type fakeEngine struct {
	mu   sync.Mutex
	snap game.Snapshot
	ok   bool
}

func (f *fakeEngine) GetSnapshot() (game.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone(), f.ok
}

func (f *fakeEngine) TickCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Tick
}

func (f *fakeEngine) set(s game.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.ok = s, true
}

type fakeChunks struct {
	cfg    config.ChunkConfig
	chunks map[world.ChunkKey]*world.Chunk
}

func (f *fakeChunks) Stats() world.StreamerStats {
	return world.StreamerStats{Committed: int64(len(f.chunks))}
}

func (f *fakeChunks) Lookup(k world.ChunkKey) (*world.Chunk, bool) {
	c, ok := f.chunks[k]
	return c, ok
}

func (f *fakeChunks) Config() config.ChunkConfig { return f.cfg }

type fakeConns struct{ peers []server.PeerInfo }

func (f *fakeConns) Len() int                 { return len(f.peers) }
func (f *fakeConns) Peers() []server.PeerInfo { return f.peers }

func newFakes() (*fakeEngine, *fakeChunks, *fakeConns) {
	cfg := config.DefaultChunks()
	cfg.ChunkSize = 4
	tiles := make([]world.TileType, 16)
	for i := range tiles {
		tiles[i] = world.TileType(i % 3)
	}
	chunks := &fakeChunks{cfg: cfg, chunks: map[world.ChunkKey]*world.Chunk{
		{X: 0, Y: 0}: {Key: world.ChunkKey{}, Tiles: tiles},
	}}
	return &fakeEngine{}, chunks, &fakeConns{peers: []server.PeerInfo{{ID: 3, Trace: "t", Remote: "r"}}}
}

func newTestServer(t *testing.T, cfg RouterConfig) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestStateBeforeAndAfterFirstTick(t *testing.T) {
	eng, chunks, conns := newFakes()
	ts := newTestServer(t, RouterConfig{Engine: eng, Chunks: chunks, Conns: conns, Map: config.DefaultMap()})

	getJSON(t, ts.URL+"/api/state", http.StatusServiceUnavailable, nil)

	eng.set(game.Snapshot{Tick: 5, PlayerCount: 1, Players: []game.PlayerSnapshot{{ID: 3, Name: "ann", X: 10, Y: 20}}})
	var snap game.Snapshot
	getJSON(t, ts.URL+"/api/state", http.StatusOK, &snap)
	if snap.Tick != 5 || len(snap.Players) != 1 || snap.Players[0].Name != "ann" {
		t.Fatalf("snapshot = %+v", snap)
	}

	var stats map[string]any
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	if stats["connections"].(float64) != 1 || stats["playerCount"].(float64) != 1 {
		t.Fatalf("stats = %v", stats)
	}

	var p game.PlayerSnapshot
	getJSON(t, ts.URL+"/api/players/3", http.StatusOK, &p)
	if p.Name != "ann" {
		t.Fatalf("player = %+v", p)
	}
	getJSON(t, ts.URL+"/api/players/4", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/players/300", http.StatusBadRequest, nil)
}

func TestChunkEndpoints(t *testing.T) {
	eng, chunks, conns := newFakes()
	ts := newTestServer(t, RouterConfig{Engine: eng, Chunks: chunks, Conns: conns, Map: config.DefaultMap()})

	var view chunkView
	getJSON(t, ts.URL+"/api/chunks/0/0", http.StatusOK, &view)
	total := 0
	for _, n := range view.Tiles {
		total += n
	}
	if total != 16 || view.Tiles["ocean"] != 6 {
		t.Fatalf("tile histogram = %v", view.Tiles)
	}
	getJSON(t, ts.URL+"/api/chunks/9/9", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/chunks/x/0", http.StatusBadRequest, nil)

	var summary map[string]any
	getJSON(t, ts.URL+"/api/chunks", http.StatusOK, &summary)
	if summary["chunkSize"].(float64) != 4 {
		t.Fatalf("summary = %v", summary)
	}

	var peers []server.PeerInfo
	getJSON(t, ts.URL+"/api/connections", http.StatusOK, &peers)
	if len(peers) != 1 || peers[0].ID != 3 {
		t.Fatalf("peers = %+v", peers)
	}
}

func TestChunkEndpointsWithoutStreamer(t *testing.T) {
	eng, _, _ := newFakes()
	ts := newTestServer(t, RouterConfig{Engine: eng})
	getJSON(t, ts.URL+"/api/chunks", http.StatusServiceUnavailable, nil)
	getJSON(t, ts.URL+"/api/map.png", http.StatusServiceUnavailable, nil)
	getJSON(t, ts.URL+"/api/connections", http.StatusServiceUnavailable, nil)
}

func TestMinimapPNG(t *testing.T) {
	eng, chunks, conns := newFakes()
	eng.set(game.Snapshot{Players: []game.PlayerSnapshot{{ID: 1, X: 5, Y: 5}}})
	ts := newTestServer(t, RouterConfig{Engine: eng, Chunks: chunks, Conns: conns, Map: config.DefaultMap()})

	resp, err := http.Get(ts.URL + "/api/map.png?radius=1&cx=0&cy=0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	// Three chunks of four tiles at two pixels each.
	if b := img.Bounds(); b.Dx() != 24 || b.Dy() != 24 {
		t.Fatalf("image is %v", b)
	}

	getJSON(t, ts.URL+"/api/map.png?radius=99", http.StatusBadRequest, nil)
}

func TestBasicAuth(t *testing.T) {
	eng, _, _ := newFakes()
	ts := newTestServer(t, RouterConfig{Engine: eng, User: "ops", Password: "secret"})

	getJSON(t, ts.URL+"/health", http.StatusOK, nil)
	getJSON(t, ts.URL+"/api/stats", http.StatusUnauthorized, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/stats", nil)
	req.SetBasicAuth("ops", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status %d", resp.StatusCode)
	}
}

func TestRequestRateLimit(t *testing.T) {
	eng, _, _ := newFakes()
	limiter := ratelimit.NewIPLimiter(ratelimit.Config{PerSecond: 0.001, Burst: 2})
	t.Cleanup(limiter.Stop)
	ts := newTestServer(t, RouterConfig{Engine: eng, Limiter: limiter})

	getJSON(t, ts.URL+"/api/stats", http.StatusOK, nil)
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, nil)
	getJSON(t, ts.URL+"/api/stats", http.StatusTooManyRequests, nil)
}

func TestMetricsEndpoint(t *testing.T) {
	eng, _, _ := newFakes()
	ts := newTestServer(t, RouterConfig{Engine: eng})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestSpectatorReceivesSnapshots(t *testing.T) {
	eng, _, _ := newFakes()
	eng.set(game.Snapshot{Tick: 1, PlayerCount: 2})

	dbg := config.DefaultDebug()
	dbg.SpectatorRate = 50
	hub := NewSpectatorHub(eng, dbg)
	go hub.Run()
	t.Cleanup(hub.Stop)

	ts := newTestServer(t, RouterConfig{Engine: eng, Hub: hub})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Event string        `json:"event"`
		Data  game.Snapshot `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != "snapshot" || msg.Data.PlayerCount != 2 {
		t.Fatalf("message = %+v", msg)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d", hub.ClientCount())
	}
}

func TestOriginAllowed(t *testing.T) {
	patterns := []string{"http://localhost:*", "https://example.org"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://example.org", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		if got := originAllowed(patterns, tt.origin); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !originAllowed([]string{"*"}, "https://anything") {
		t.Error("wildcard rejected an origin")
	}
}
