package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/nx0ly/moomoo2/internal/api"
	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game"
	"github.com/nx0ly/moomoo2/internal/game/world"
	"github.com/nx0ly/moomoo2/internal/logging"
	"github.com/nx0ly/moomoo2/internal/server"
)

func main() {
	defaultPath := os.Getenv("MOOMOO_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.toml"
	}
	configPath := flag.String("config", defaultPath, "path to the TOML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.Sync()
	log := logging.Named("main")

	deadlock.Opts.Disable = !cfg.Debug.DeadlockDetection
	deadlock.Opts.DeadlockTimeout = 5 * time.Second

	log.Info("🎮 ================================")
	log.Info("🎮  MOOMOO2 - GO SERVER")
	log.Info("🎮  QUIC + hybrid PQ handshake")
	log.Info("🎮 ================================")
	log.Infof("🗺️ Map %.0f units, tick every %v, chunk seed %d", cfg.Map.Size, cfg.Tick.Period, cfg.Chunks.Seed)
	log.Infof("🛡️ Limits: %d connections, %d fish, %d wolves", cfg.Server.MaxConnections, cfg.Animals.MaxFish, cfg.Animals.MaxWolves)

	streamer, err := world.NewStreamer(cfg.Chunks, world.NewGenerator(cfg.Chunks, cfg.Entities))
	if err != nil {
		return fmt.Errorf("chunk streamer: %w", err)
	}
	streamer.Start()
	defer streamer.Stop()

	bus := game.NewBus(cfg.Server.InboundQueue)
	reg := server.NewRegistry(cfg.Server.MaxConnections)

	engine := game.NewEngine(game.Options{
		Config:   cfg,
		Bus:      bus,
		Out:      reg,
		Streamer: streamer,
	})
	engine.Start()
	defer engine.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var debugSrv *api.Server
	if cfg.Debug.Enabled {
		debugSrv = api.NewServer(cfg, engine, streamer, reg)
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil {
				log.Errorw("⚠️ Debug server error", "err", err)
			}
		}()
	} else {
		log.Info("📊 Debug server disabled")
	}

	srv := server.New(cfg, reg, bus)
	defer srv.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("🛑 Shutdown signal received")
		err = <-serveErr
	case err = <-serveErr:
		stop()
	}

	if debugSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := debugSrv.Shutdown(sctx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
			log.Warnw("debug server shutdown", "err", serr)
		}
		cancel()
	}

	if err != nil {
		return fmt.Errorf("quic server: %w", err)
	}
	log.Info("👋 Server stopped")
	return nil
}
