package server

import (
	"io"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/metrics"
	"github.com/nx0ly/moomoo2/internal/protocol"
	"github.com/nx0ly/moomoo2/internal/session"
)

// Transport is the bidirectional byte stream a client speaks over, plus a
// way to tear down whatever carries it.
type Transport interface {
	io.ReadWriter
	SetDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	// Abort closes the underlying connection with reason. It must be
	// idempotent and must unblock a pending Read.
	Abort(reason CloseReason)
}

// Peer is one registered connection. Outbound plaintexts are queued by the
// tick and sealed by the peer's own writer goroutine.
type Peer struct {
	ID     uint8
	Trace  string
	Remote string
	Since  time.Time

	mu     deadlock.Mutex // guards crypto send side and reason
	crypto *session.SessionCrypto
	reason CloseReason

	t            Transport
	out          chan []byte
	closing      chan struct{}
	once         sync.Once
	writeTimeout time.Duration
	log          *zap.SugaredLogger
}

func newPeer(id uint8, trace string, t Transport, crypto *session.SessionCrypto, queue int, writeTimeout time.Duration, log *zap.SugaredLogger) *Peer {
	if queue < 1 {
		queue = 1
	}
	return &Peer{
		ID:           id,
		Trace:        trace,
		Remote:       t.RemoteAddr(),
		Since:        time.Now(),
		crypto:       crypto,
		t:            t,
		out:          make(chan []byte, queue),
		closing:      make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          log,
	}
}

// Enqueue never blocks. A full queue means the client cannot keep up and
// the peer is closed.
func (p *Peer) Enqueue(plaintext []byte) bool {
	select {
	case <-p.closing:
		return false
	default:
	}
	select {
	case p.out <- plaintext:
		return true
	default:
		p.log.Warnw("outbound queue full", "queued", len(p.out))
		p.Close(ReasonSlowConsumer)
		return false
	}
}

// Close records reason and aborts the transport. Only the first call counts.
func (p *Peer) Close(reason CloseReason) {
	p.once.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.closing)
		p.t.Abort(reason)
	})
}

func (p *Peer) Done() <-chan struct{} { return p.closing }

// Reason is the close reason, valid once Done is closed.
func (p *Peer) Reason() CloseReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Peer) closed() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

func (p *Peer) Queued() int { return len(p.out) }

func (p *Peer) seal(plaintext []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crypto.Seal(plaintext)
}

// open is only called from the connection's read loop.
func (p *Peer) open(frame []byte) ([]byte, error) {
	return p.crypto.Open(frame)
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.closing:
			return
		case msg := <-p.out:
			frame, err := p.seal(msg)
			if err != nil {
				p.log.Errorw("seal failed", "err", err)
				p.Close(ReasonInternal)
				return
			}
			if p.writeTimeout > 0 {
				_ = p.t.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			}
			if err := protocol.WriteFrame(p.t, frame); err != nil {
				p.log.Debugw("write failed", "err", err)
				p.Close(ReasonNormal)
				return
			}
			metrics.FrameSent()
		}
	}
}
