package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/ratelimit"
)

const (
	MaxSpectatorsTotal = 500
	MaxSpectatorsPerIP = 10

	spectatorWriteWait = time.Second
)

type spectator struct {
	conn *websocket.Conn
	ip   string
}

// SpectatorHub pushes JSON snapshots to read-only WebSocket observers.
// One goroutine owns the client set; handlers talk to it over channels.
type SpectatorHub struct {
	engine   EngineView
	period   time.Duration
	upgrader websocket.Upgrader
	perIP    *ratelimit.ConnLimiter
	log      *zap.SugaredLogger

	clients    map[*websocket.Conn]*spectator
	count      atomic.Int32
	register   chan *spectator
	unregister chan *websocket.Conn

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSpectatorHub(engine EngineView, cfg config.DebugConfig) *SpectatorHub {
	rate := cfg.SpectatorRate
	if rate < 1 {
		rate = 1
	}
	h := &SpectatorHub{
		engine:     engine,
		period:     time.Second / time.Duration(rate),
		perIP:      ratelimit.NewConnLimiter(MaxSpectatorsPerIP),
		log:        logging.Named("spectators"),
		clients:    make(map[*websocket.Conn]*spectator),
		register:   make(chan *spectator),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	origins := cfg.CORSOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if originAllowed(origins, origin) {
				return true
			}
			h.log.Warnw("⚠️ WebSocket origin rejected", "origin", origin)
			metrics.ConnectionRejected("ws_origin")
			return false
		},
	}
	return h
}

// originAllowed matches exact origins, "*" and trailing-wildcard patterns
// such as "http://localhost:*". Requests without an Origin are not from a
// browser and pass.
func originAllowed(patterns []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, p := range patterns {
		switch {
		case p == "*", p == origin:
			return true
		case strings.HasSuffix(p, "*") && strings.HasPrefix(origin, strings.TrimSuffix(p, "*")):
			return true
		}
	}
	return false
}

// Run owns the client set until Stop. It publishes a snapshot every period
// while anyone is watching.
func (h *SpectatorHub) Run() {
	defer close(h.done)
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	var lastTick uint64
	for {
		select {
		case <-h.stop:
			for conn, c := range h.clients {
				h.drop(conn, c)
			}
			return

		case c := <-h.register:
			h.clients[c.conn] = c
			n := h.count.Add(1)
			metrics.SetWSConnections(int(n))
			h.log.Infow("📱 Spectator connected", "ip", c.ip, "total", n)

		case conn := <-h.unregister:
			if c, ok := h.clients[conn]; ok {
				h.drop(conn, c)
				h.log.Infow("📱 Spectator disconnected", "remaining", h.count.Load())
			}

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			snap, ok := h.engine.GetSnapshot()
			if !ok || snap.Tick == lastTick {
				continue
			}
			lastTick = snap.Tick
			msg, err := json.Marshal(map[string]any{"event": "snapshot", "data": snap})
			if err != nil {
				h.log.Errorw("marshal snapshot", "err", err)
				continue
			}
			for conn, c := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.drop(conn, c)
					continue
				}
				metrics.WSMessageSent()
			}
		}
	}
}

func (h *SpectatorHub) drop(conn *websocket.Conn, c *spectator) {
	delete(h.clients, conn)
	h.perIP.Release(c.ip)
	_ = conn.Close()
	metrics.SetWSConnections(int(h.count.Add(-1)))
}

// Stop closes every spectator and waits for Run to return.
func (h *SpectatorHub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *SpectatorHub) ClientCount() int { return int(h.count.Load()) }

// HandleWebSocket upgrades a spectator. Anything the client sends is
// discarded; reads only detect the close.
func (h *SpectatorHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ClientIP(r)

	if h.ClientCount() >= MaxSpectatorsTotal {
		metrics.ConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.perIP.Acquire(ip) {
		metrics.ConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.perIP.Release(ip)
		h.log.Debugw("upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- &spectator{conn: conn, ip: ip}:
	case <-h.stop:
		h.perIP.Release(ip)
		_ = conn.Close()
		return
	}

	go func() {
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- conn:
		case <-h.stop:
		}
	}()
}
