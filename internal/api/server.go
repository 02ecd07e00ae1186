package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/ratelimit"
)

// Server is the debug HTTP server plus its spectator hub.
//
// Background workers do not start until ListenAndServe, so tests can build
// a Server and mount Handler on httptest without goroutines running.
type Server struct {
	addr    string
	router  *chi.Mux
	hub     *SpectatorHub
	limiter *ratelimit.IPLimiter
	http    *http.Server
	started atomic.Bool
	log     *zap.SugaredLogger
}

// NewServer wires the router. chunks and conns may be nil.
func NewServer(cfg config.AppConfig, engine EngineView, chunks ChunkView, conns ConnectionView) *Server {
	dbg := cfg.Debug
	s := &Server{
		addr: dbg.Addr,
		hub:  NewSpectatorHub(engine, dbg),
		limiter: ratelimit.NewIPLimiter(ratelimit.Config{
			PerSecond: dbg.RequestsPerSecond,
			Burst:     dbg.RequestBurst,
		}),
		log: logging.Named("api"),
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Chunks:      chunks,
		Conns:       conns,
		Map:         cfg.Map,
		Limiter:     s.limiter,
		Hub:         s.hub,
		CORSOrigins: dbg.CORSOrigins,
		User:        dbg.User,
		Password:    dbg.Password,
	})
	s.http = &http.Server{
		Addr:              dbg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the spectator hub and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if s.started.CompareAndSwap(false, true) {
		go s.hub.Run()
	}
	s.log.Infof("📊 Debug server listening on http://%s", s.addr)
	s.log.Infof("   - state:   http://%s/api/state", s.addr)
	s.log.Infof("   - minimap: http://%s/api/map.png", s.addr)
	s.log.Infof("   - metrics: http://%s/metrics", s.addr)
	s.log.Infof("   - pprof:   http://%s/debug/pprof/", s.addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes spectators and releases the
// limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.started.Load() {
		s.hub.Stop()
	}
	s.limiter.Stop()
	return err
}
