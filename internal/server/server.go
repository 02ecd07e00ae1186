// Package server accepts QUIC connections, runs the key exchange and
// bridges each session to the simulation through the intent bus.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/protocol"
	"github.com/nx0ly/moomoo2/internal/ratelimit"
	"github.com/nx0ly/moomoo2/internal/session"
)

// Server owns the listener and one task per connection.
type Server struct {
	cfg      config.ServerConfig
	nameMax  int
	reg      *Registry
	bus      *game.Bus
	limiter  *ratelimit.IPLimiter
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
	throttle atomic.Uint64 // client messages dropped by the per-connection limiter
}

func New(cfg config.AppConfig, reg *Registry, bus *game.Bus) *Server {
	return &Server{
		cfg:     cfg.Server,
		nameMax: cfg.Players.NameMaxRunes,
		reg:     reg,
		bus:     bus,
		limiter: ratelimit.NewIPLimiter(ratelimit.Config{
			PerSecond: cfg.Server.HandshakesPerSecond,
			Burst:     cfg.Server.HandshakeBurst,
		}),
		log: logging.Named("server"),
	}
}

// Close releases the handshake limiter. Serve must have returned.
func (s *Server) Close() { s.limiter.Stop() }

// Throttled counts client messages dropped for exceeding the message rate.
func (s *Server) Throttled() uint64 { return s.throttle.Load() }

// TLSConfig loads the certificate pair and pins the ALPN protocol.
func TLSConfig(cfg config.ServerConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{cfg.ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (s *Server) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       s.cfg.IdleTimeout,
		HandshakeIdleTimeout: s.cfg.HandshakeTimeout,
		KeepAlivePeriod:      s.cfg.IdleTimeout / 3,
	}
}

// ListenAndServe binds the configured UDP port and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsConf, err := TLSConfig(s.cfg)
	if err != nil {
		return err
	}
	ln, err := quic.ListenAddr(fmt.Sprintf(":%d", s.cfg.Port), tlsConf, s.quicConfig())
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", s.cfg.Port, err)
	}
	s.log.Infof("🚀 QUIC server listening on %s (alpn %q)", ln.Addr(), s.cfg.ALPN)
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx ends, then closes every peer
// and waits for their tasks.
func (s *Server) Serve(ctx context.Context, ln *quic.Listener) error {
	defer ln.Close()

	var acceptErr error
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.reg.CloseAll(ReasonNormal)
	s.wg.Wait()
	s.log.Info("🛑 QUIC server stopped")
	return acceptErr
}

func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()
	if !s.limiter.Allow(ratelimit.HostOf(remote)) {
		metrics.ConnectionRejected("handshake_rate")
		_ = conn.CloseWithError(ReasonTooMany.Code, ReasonTooMany.Message)
		return
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	st, err := conn.AcceptStream(actx)
	cancel()
	if err != nil {
		s.log.Debugw("no stream opened", "remote", remote, "err", err)
		metrics.ConnectionRejected(ReasonHandshakeFailed.Label())
		_ = conn.CloseWithError(ReasonHandshakeFailed.Code, ReasonHandshakeFailed.Message)
		return
	}
	s.ServeStream(ctx, &quicTransport{Stream: st, conn: conn})
}

// ServeStream runs one connection to completion and returns why it ended.
// The transport is always aborted on return.
func (s *Server) ServeStream(ctx context.Context, t Transport) (reason CloseReason) {
	trace := uuid.NewString()
	log := s.log.With("trace", trace, "remote", t.RemoteAddr())

	if s.cfg.HandshakeTimeout > 0 {
		_ = t.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	}
	crypto, err := session.Accept(t)
	if err != nil {
		log.Infow("🔒 Handshake failed", "err", err)
		metrics.ConnectionRejected(ReasonHandshakeFailed.Label())
		t.Abort(ReasonHandshakeFailed)
		return ReasonHandshakeFailed
	}
	_ = t.SetDeadline(time.Time{})

	id, err := s.reg.Reserve()
	if err != nil {
		log.Warnw("rejecting connection", "err", err)
		metrics.ConnectionRejected(ReasonTooMany.Label())
		t.Abort(ReasonTooMany)
		return ReasonTooMany
	}

	log = log.With("player", id)
	p := newPeer(id, trace, t, crypto, s.cfg.OutboundQueue, s.cfg.IdleTimeout, log)
	g := &guard{reg: s.reg, bus: s.bus, peer: p, log: log}
	defer g.finish(&reason)

	s.reg.Register(p)
	go p.writeLoop()
	log.Info("🔗 Client connected")

	return s.readLoop(ctx, p, log)
}

func (s *Server) readLoop(ctx context.Context, p *Peer, log *zap.SugaredLogger) CloseReason {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)

	for {
		frame, err := protocol.ReadFrame(p.t, s.cfg.MaxFrameSize)
		if err != nil {
			if p.closed() {
				return p.Reason()
			}
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				log.Warnw("oversized frame", "err", err)
				return ReasonMalformed
			}
			return ReasonNormal
		}
		metrics.FrameReceived()

		plain, err := p.open(frame)
		if err != nil {
			log.Warnw("decrypt failed", "err", err)
			return ReasonDecryptFailed
		}

		msg, err := protocol.DecodeClient(plain)
		if errors.Is(err, protocol.ErrUnknownOpcode) {
			log.Debugw("ignoring unknown opcode", "err", err)
			continue
		}
		if err != nil {
			log.Warnw("malformed message", "err", err)
			return ReasonMalformed
		}

		if !limiter.Allow() {
			s.throttle.Add(1)
			continue
		}

		env := game.Envelope{PlayerID: p.ID, Intent: s.intentFor(msg)}
		if err := s.bus.Publish(ctx, env); err != nil {
			return ReasonNormal
		}
	}
}

func (s *Server) intentFor(msg protocol.ClientMessage) game.Intent {
	switch msg.Op {
	case protocol.OpSpawn:
		return game.AddPlayer{Name: protocol.SanitizeName(msg.Spawn.Name, s.nameMax)}
	case protocol.OpMove:
		return game.MovePlayer{Dir: float64(msg.Move.Dir)}
	default:
		return game.MovePlayer{Stop: true}
	}
}

// quicTransport carries a session on the first bidirectional stream.
type quicTransport struct {
	quic.Stream
	conn quic.Connection
	once sync.Once
}

func (q *quicTransport) RemoteAddr() string { return q.conn.RemoteAddr().String() }

func (q *quicTransport) Abort(r CloseReason) {
	q.once.Do(func() { _ = q.conn.CloseWithError(r.Code, r.Message) })
}
