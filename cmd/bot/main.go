// Command bot connects one or more scripted players to a running server over
// QUIC and logs what the server sends back. It is a load and smoke tool.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/protocol"
	"github.com/nx0ly/moomoo2/internal/session"
)

type options struct {
	addr     string
	alpn     string
	bots     int
	name     string
	turn     time.Duration
	insecure bool
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:6767", "server UDP address")
	flag.StringVar(&opts.alpn, "alpn", config.DefaultServer().ALPN, "ALPN protocol")
	flag.IntVar(&opts.bots, "bots", 1, "number of concurrent bots")
	flag.StringVar(&opts.name, "name", "bot", "name prefix")
	flag.DurationVar(&opts.turn, "turn", 2*time.Second, "how often each bot picks a new heading")
	flag.BoolVar(&opts.insecure, "insecure", true, "skip TLS certificate verification")
	flag.Parse()

	logCfg := config.DefaultLog()
	logCfg.File = ""
	if err := logging.Init(logCfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < opts.bots; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log := logging.Named("bot").With("bot", n)
			if err := runBot(ctx, opts, fmt.Sprintf("%s%d", opts.name, n), log); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("bot stopped", "err", err)
			}
		}(i)
	}
	wg.Wait()
}

func runBot(ctx context.Context, opts options, name string, log *zap.SugaredLogger) error {
	tlsConf := &tls.Config{InsecureSkipVerify: opts.insecure, NextProtos: []string{opts.alpn}}
	conn, err := quic.DialAddr(ctx, opts.addr, tlsConf, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer conn.CloseWithError(0, "bye")

	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	crypto, err := session.Dial(st)
	if err != nil {
		return err
	}
	log.Infow("🔗 Connected", "remote", conn.RemoteAddr().String())

	var sendMu sync.Mutex
	send := func(op protocol.Opcode, record any) error {
		plain, err := protocol.Encode(op, record)
		if err != nil {
			return err
		}
		sendMu.Lock()
		defer sendMu.Unlock()
		sealed, err := crypto.Seal(plain)
		if err != nil {
			return err
		}
		return protocol.WriteFrame(st, sealed)
	}

	if err := send(protocol.OpSpawn, protocol.SpawnRequest{Name: name}); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(opts.turn)
		defer ticker.Stop()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dir := float32(rng.Float64() * 2 * math.Pi)
				if err := send(protocol.OpMove, protocol.MoveRequest{Dir: dir}); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.CloseWithError(0, "bye")
	}()

	var myID uint8
	var updates, chunks int
	for {
		frame, err := protocol.ReadFrame(st, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		plain, err := crypto.Open(frame)
		if err != nil {
			return err
		}
		msg, err := protocol.DecodeServer(plain)
		if err != nil {
			log.Warnw("undecodable message", "err", err)
			continue
		}

		switch msg.Op {
		case protocol.OpAddPlayer:
			if msg.Add.IsMine {
				myID = msg.Add.Data.ID
				log.Infow("🧍 Spawned", "id", myID, "x", msg.Add.Data.X, "y", msg.Add.Data.Y)
			} else {
				log.Debugw("player joined", "id", msg.Add.Data.ID, "name", msg.Add.Data.Name)
			}
		case protocol.OpRemovePlayer:
			log.Debugw("player left", "id", msg.Removed.ID)
		case protocol.OpMapChunk:
			chunks++
		case protocol.OpUpdatePlayers:
			updates++
			if updates%100 == 0 {
				for _, p := range msg.Players.Players {
					if p.ID == myID {
						log.Infow("📍 Position", "x", p.X, "y", p.Y, "players", len(msg.Players.Players), "chunks", chunks)
					}
				}
			}
		}
	}
}
