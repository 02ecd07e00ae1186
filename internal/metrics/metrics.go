// Package metrics holds the process's Prometheus collectors.
// Labels are bounded enums only; never label by player or connection.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.067, 0.1},
	})

	tickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_tick_overruns_total",
		Help: "Ticks that took longer than the tick period",
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_player_count",
		Help: "Players currently spawned",
	})

	animalCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_animal_count",
		Help: "Animals currently alive",
	})

	intentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_intents_applied_total",
		Help: "Intents drained from the bus and applied",
	}, []string{"kind"}) // add_player, move, disconnect

	collisionContacts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_collision_contacts_total",
		Help: "Penetrating contacts resolved",
	})

	// Chunk streaming
	chunkGenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "world_chunk_generate_seconds",
		Help:    "Time to generate one chunk",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})

	chunksCommitted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_chunks_committed",
		Help: "Chunks visible to the simulation",
	})

	chunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_chunks_sent_total",
		Help: "MapChunk packets handed to the transport",
	})

	chunkDispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_chunk_dispatch_dropped_total",
		Help: "Chunk jobs deferred because the dispatch queue was full",
	})

	// Transport
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "net_connections_active",
		Help: "Registered client connections",
	})

	connectionClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "net_connections_closed_total",
		Help: "Closed connections by reason",
	}, []string{"reason"})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "net_connections_rejected_total",
		Help: "Connections refused before registration",
	}, []string{"reason"}) // rate_limit, full, handshake

	framesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "net_frames_received_total",
		Help: "Encrypted frames received",
	})

	framesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "net_frames_sent_total",
		Help: "Encrypted frames sent",
	})

	// Spectators
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active spectator WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total spectator WebSocket messages sent",
	})

	// Debug HTTP
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}) // route is the chi pattern, not the raw path

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})
)

// RecordTick records tick timing and counts overruns of the period.
func RecordTick(duration, period time.Duration) {
	tickDuration.Observe(duration.Seconds())
	if duration > period {
		tickOverruns.Inc()
	}
}

func SetPlayerCount(n int) { playerCount.Set(float64(n)) }

func SetAnimalCount(n int) { animalCount.Set(float64(n)) }

func IntentApplied(kind string) { intentsApplied.WithLabelValues(kind).Inc() }

func ContactsResolved(n int) { collisionContacts.Add(float64(n)) }

func RecordChunkGenerated(d time.Duration) { chunkGenerateDuration.Observe(d.Seconds()) }

func SetChunksCommitted(n int) { chunksCommitted.Set(float64(n)) }

func ChunksSent(n int) { chunksSent.Add(float64(n)) }

func ChunkDispatchDropped() { chunkDispatchDropped.Inc() }

func SetConnections(n int) { connectionsActive.Set(float64(n)) }

// ConnectionClosed counts a closed session by its close reason label.
func ConnectionClosed(reason string) { connectionClosed.WithLabelValues(reason).Inc() }

// ConnectionRejected counts a refused connection.
// reason must be one of: "rate_limit", "full", "handshake".
func ConnectionRejected(reason string) { connectionRejected.WithLabelValues(reason).Inc() }

func FrameReceived() { framesIn.Inc() }

func FrameSent() { framesOut.Inc() }

func SetWSConnections(n int) { wsConnectionsActive.Set(float64(n)) }

func WSMessageSent() { wsMessagesTotal.Inc() }

// RecordRequest records one debug API request.
func RecordRequest(method, route string, status int, d time.Duration) {
	requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
	requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
