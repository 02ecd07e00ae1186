// Package api is the operator-facing HTTP surface: read-only views of the
// simulation, a spectator WebSocket feed, Prometheus metrics and pprof.
// It never accepts game input.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game"
	"github.com/nx0ly/moomoo2/internal/game/world"
	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/ratelimit"
	"github.com/nx0ly/moomoo2/internal/server"
)

// EngineView is what the API reads from the simulation.
type EngineView interface {
	GetSnapshot() (game.Snapshot, bool)
	TickCount() uint64
}

// ChunkView is what the API reads from the chunk streamer.
type ChunkView interface {
	Stats() world.StreamerStats
	Lookup(key world.ChunkKey) (*world.Chunk, bool)
	Config() config.ChunkConfig
}

// ConnectionView is what the API reads from the connection registry.
type ConnectionView interface {
	Len() int
	Peers() []server.PeerInfo
}

// RouterConfig carries the router's dependencies. Chunks and Conns may be
// nil; their endpoints then report 503.
type RouterConfig struct {
	Engine  EngineView
	Chunks  ChunkView
	Conns   ConnectionView
	Map     config.MapConfig
	Limiter *ratelimit.IPLimiter // nil disables request limiting
	Hub     *SpectatorHub        // nil disables /ws

	CORSOrigins []string
	User        string // basic auth; empty disables it
	Password    string
}

type handlers struct {
	engine EngineView
	chunks ChunkView
	conns  ConnectionView
	mapCfg config.MapConfig
}

// NewRouter builds the HTTP handler. It starts no goroutines and opens no
// listeners, so tests can mount it on httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware(func() { metrics.ConnectionRejected("http_rate_limit") }))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// Liveness stays outside auth so probes work without credentials.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	h := &handlers{engine: cfg.Engine, chunks: cfg.Chunks, conns: cfg.Conns, mapCfg: cfg.Map}

	r.Group(func(r chi.Router) {
		if cfg.User != "" {
			r.Use(basicAuth(cfg.User, cfg.Password))
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", h.handleGetState)
			r.Get("/stats", h.handleGetStats)
			r.Get("/players/{id}", h.handleGetPlayer)
			r.Get("/chunks", h.handleGetChunks)
			r.Get("/chunks/{cx}/{cy}", h.handleGetChunk)
			r.Get("/connections", h.handleGetConnections)
			r.Get("/map.png", h.handleMinimap)
		})

		if cfg.Hub != nil {
			r.Get("/ws", cfg.Hub.HandleWebSocket)
		}

		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/debug", middleware.Profiler())
	})

	return r
}
