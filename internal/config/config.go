// Package config provides centralized configuration management.
// Every tunable of the server lives here with its default; config.toml and
// MOOMOO_* environment variables override individual keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MOOMOO_SERVER_PORT.
const EnvPrefix = "MOOMOO"

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds QUIC listener and per-connection settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	ALPN     string `mapstructure:"alpn"`

	MaxConnections   int           `mapstructure:"max_connections"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxFrameSize     int           `mapstructure:"max_frame_size"`

	InboundQueue  int `mapstructure:"inbound_queue"`  // shared intent channel
	OutboundQueue int `mapstructure:"outbound_queue"` // per peer

	MessagesPerSecond   float64 `mapstructure:"messages_per_second"`
	MessageBurst        int     `mapstructure:"message_burst"`
	HandshakesPerSecond float64 `mapstructure:"handshakes_per_second"` // per remote IP
	HandshakeBurst      int     `mapstructure:"handshake_burst"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:     6767,
		CertFile: "cert.pem",
		KeyFile:  "key.pem",
		ALPN:     "moomoo2",

		MaxConnections:   256, // ids are a single byte
		IdleTimeout:      30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxFrameSize:     64 * 1024,

		InboundQueue:  1024,
		OutboundQueue: 1024,

		MessagesPerSecond:   60,
		MessageBurst:        120,
		HandshakesPerSecond: 2,
		HandshakeBurst:      5,
	}
}

// =============================================================================
// DEBUG / ADMIN HTTP CONFIGURATION
// =============================================================================

// DebugConfig holds the admin HTTP server (stats, minimap, spectators, pprof).
type DebugConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Addr              string   `mapstructure:"addr"`
	User              string   `mapstructure:"user"`
	Password          string   `mapstructure:"password"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	RequestBurst      int      `mapstructure:"request_burst"`
	DeadlockDetection bool     `mapstructure:"deadlock_detection"`
	SpectatorRate     int      `mapstructure:"spectator_rate"` // snapshots per second
}

// DefaultDebug returns the default admin configuration.
// The server binds to loopback unless explicitly exposed.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:           true,
		Addr:              "127.0.0.1:6060",
		CORSOrigins:       []string{"*"},
		RequestsPerSecond: 10,
		RequestBurst:      20,
		DeadlockDetection: false,
		SpectatorRate:     10,
	}
}

// =============================================================================
// LOGGING CONFIGURATION
// =============================================================================

// LogConfig controls the zap logger and its rotating file sink.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty disables the file sink
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{
		Level:      "info",
		File:       "logs/server.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// MapConfig describes the playable square and its biome bands.
type MapConfig struct {
	Size          float64 `mapstructure:"size"`
	WallThickness float64 `mapstructure:"wall_thickness"`
	SnowEnd       float64 `mapstructure:"snow_end"`
	GrasslandEnd  float64 `mapstructure:"grassland_end"`
	DesertEnd     float64 `mapstructure:"desert_end"`
	LavaEnd       float64 `mapstructure:"lava_end"`
	OceanEnd      float64 `mapstructure:"ocean_end"`
}

// DefaultMap returns the default map configuration.
func DefaultMap() MapConfig {
	return MapConfig{
		Size:          8192,
		WallThickness: 100,
		SnowEnd:       1638,
		GrasslandEnd:  3276,
		DesertEnd:     4915,
		LavaEnd:       6553,
		OceanEnd:      8192,
	}
}

// PlayerConfig holds player movement tuning. Speeds are world units per
// second; UpdateDT is the integration step applied once per tick.
type PlayerConfig struct {
	UpdateDT     float64 `mapstructure:"update_dt"`
	MaxSpeed     float64 `mapstructure:"max_speed"`
	Acceleration float64 `mapstructure:"acceleration"`
	Friction     float64 `mapstructure:"friction"`
	Radius       float64 `mapstructure:"radius"`
	NameMaxRunes int     `mapstructure:"name_max_runes"`
}

// DefaultPlayers returns the default player tuning.
func DefaultPlayers() PlayerConfig {
	return PlayerConfig{
		UpdateDT:     0.45,
		MaxSpeed:     45,
		Acceleration: 120,
		Friction:     90,
		Radius:       35,
		NameMaxRunes: 16,
	}
}

// EntityConfig holds per-chunk resource densities.
type EntityConfig struct {
	TreesPerChunk  int `mapstructure:"trees_per_chunk"`
	BushesPerChunk int `mapstructure:"bushes_per_chunk"`
	StonesPerChunk int `mapstructure:"stones_per_chunk"`
	GoldPerChunk   int `mapstructure:"gold_per_chunk"`
}

// DefaultEntities returns the default resource densities.
func DefaultEntities() EntityConfig {
	return EntityConfig{
		TreesPerChunk:  4,
		BushesPerChunk: 3,
		StonesPerChunk: 2,
		GoldPerChunk:   1,
	}
}

// AnimalConfig controls the NPC population.
type AnimalConfig struct {
	MaxFish        int     `mapstructure:"max_fish"`
	MaxWolves      int     `mapstructure:"max_wolves"`
	FishTurnFactor float64 `mapstructure:"fish_turn_factor"`
	WolfSightRange float64 `mapstructure:"wolf_sight_range"`
	FishFleeRange  float64 `mapstructure:"fish_flee_range"`
	WanderRange    float64 `mapstructure:"wander_range"`
	GridCellSize   float64 `mapstructure:"grid_cell_size"`
}

// DefaultAnimals returns the default NPC population settings.
func DefaultAnimals() AnimalConfig {
	return AnimalConfig{
		MaxFish:        40,
		MaxWolves:      12,
		FishTurnFactor: 0.2,
		WolfSightRange: 300,
		FishFleeRange:  200,
		WanderRange:    256,
		GridCellSize:   300, // matches the widest sight range
	}
}

// ChunkConfig controls procedural terrain streaming.
type ChunkConfig struct {
	Seed          int64   `mapstructure:"seed"`
	ChunkSize     int     `mapstructure:"chunk_size"` // tiles per side
	TileSize      float64 `mapstructure:"tile_size"`  // world units per tile
	LoadRadius    int     `mapstructure:"load_radius"`
	Workers       int     `mapstructure:"workers"`
	DispatchQueue int     `mapstructure:"dispatch_queue"`
	SendsPerTick  int     `mapstructure:"sends_per_tick"` // per player
	CacheMaxCost  int64   `mapstructure:"cache_max_cost"` // bytes of encoded packets
}

// DefaultChunks returns the default streaming settings.
func DefaultChunks() ChunkConfig {
	return ChunkConfig{
		Seed:          1337,
		ChunkSize:     32,
		TileSize:      24,
		LoadRadius:    12,
		Workers:       4,
		DispatchQueue: 4096,
		SendsPerTick:  16,
		CacheMaxCost:  64 << 20,
	}
}

// CollisionConfig controls the quadtree broad phase and contact resolution.
type CollisionConfig struct {
	QuadtreeCapacity int     `mapstructure:"quadtree_capacity"`
	QuadtreeMaxDepth int     `mapstructure:"quadtree_max_depth"`
	QueryFactor      float64 `mapstructure:"query_factor"` // query half-extent = radius * factor
	Precision        float64 `mapstructure:"precision"`
	SplitRatio       float64 `mapstructure:"split_ratio"` // share of a correction taken by the first body
}

// DefaultCollision returns the default collision settings.
func DefaultCollision() CollisionConfig {
	return CollisionConfig{
		QuadtreeCapacity: 4,
		QuadtreeMaxDepth: 16,
		QueryFactor:      3,
		Precision:        0.1,
		SplitRatio:       0.5,
	}
}

// TickConfig controls the simulation clock.
type TickConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// DefaultTick returns the default ~15 Hz tick.
func DefaultTick() TickConfig {
	return TickConfig{Period: 67 * time.Millisecond}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Log       LogConfig       `mapstructure:"log"`
	Map       MapConfig       `mapstructure:"map"`
	Players   PlayerConfig    `mapstructure:"players"`
	Entities  EntityConfig    `mapstructure:"entities"`
	Animals   AnimalConfig    `mapstructure:"animals"`
	Chunks    ChunkConfig     `mapstructure:"chunks"`
	Collision CollisionConfig `mapstructure:"collision"`
	Tick      TickConfig      `mapstructure:"tick"`
}

// Default returns the complete configuration with built-in defaults only.
func Default() AppConfig {
	return AppConfig{
		Server:    DefaultServer(),
		Debug:     DefaultDebug(),
		Log:       DefaultLog(),
		Map:       DefaultMap(),
		Players:   DefaultPlayers(),
		Entities:  DefaultEntities(),
		Animals:   DefaultAnimals(),
		Chunks:    DefaultChunks(),
		Collision: DefaultCollision(),
		Tick:      DefaultTick(),
	}
}

// Load returns the configuration with file and environment overrides applied.
// A missing config file is not an error; a malformed one is.
// A .env file in the working directory is loaded first if present.
func Load(path string) (AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(Default()))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Server.MaxConnections < 1 || c.Server.MaxConnections > 256:
		return fmt.Errorf("server.max_connections must be in [1, 256], got %d", c.Server.MaxConnections)
	case c.Server.InboundQueue < 1 || c.Server.OutboundQueue < 1:
		return errors.New("server queues must be positive")
	case c.Map.Size <= 0:
		return fmt.Errorf("map.size must be positive, got %v", c.Map.Size)
	case c.Chunks.ChunkSize < 1 || c.Chunks.TileSize <= 0:
		return errors.New("chunks.chunk_size and chunks.tile_size must be positive")
	case c.Chunks.Workers < 1:
		return fmt.Errorf("chunks.workers must be positive, got %d", c.Chunks.Workers)
	case c.Collision.QuadtreeCapacity < 1:
		return fmt.Errorf("collision.quadtree_capacity must be positive, got %d", c.Collision.QuadtreeCapacity)
	case c.Collision.SplitRatio < 0 || c.Collision.SplitRatio > 1:
		return fmt.Errorf("collision.split_ratio must be in [0, 1], got %v", c.Collision.SplitRatio)
	case c.Tick.Period <= 0:
		return fmt.Errorf("tick.period must be positive, got %v", c.Tick.Period)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// setDefaults registers every leaf of a defaults struct with viper so that
// AutomaticEnv can resolve keys that never appear in the config file.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
