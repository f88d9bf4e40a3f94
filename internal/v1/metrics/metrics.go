package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the game server.
//
// Naming convention: namespace_subsystem_name
// - namespace: game_server (application-level grouping)
// - subsystem: websocket, room, sim, stats (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, players, projectiles)
// - Counter: Cumulative events (events processed, matches)
// - Histogram: Latency distributions (tick duration)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "game_server",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// WebsocketEvents tracks the total number of WebSocket events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// DroppedFrames tracks outbound frames dropped because a subscriber's queue was full
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "websocket",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped due to full send queues",
	}, []string{"mode"})

	// ActiveRooms tracks the current number of active rooms per mode (GaugeVec - current state)
	ActiveRooms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "game_server",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	}, []string{"mode"})

	// RoomPlayers tracks the number of attached players per mode (GaugeVec - current state)
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "game_server",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players currently attached to rooms",
	}, []string{"mode"})

	// MatchesCompleted tracks completed matches (CounterVec - cumulative)
	MatchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "room",
		Name:      "matches_completed_total",
		Help:      "Total matches that reached the results phase",
	}, []string{"mode"})

	// TickDuration tracks simulation tick latency per mode (HistogramVec - latency distribution)
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "game_server",
		Subsystem: "sim",
		Name:      "tick_duration_seconds",
		Help:      "Time spent advancing one simulation tick",
		Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"mode"})

	// ActiveProjectiles tracks live projectiles per mode (GaugeVec - current state)
	ActiveProjectiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "game_server",
		Subsystem: "sim",
		Name:      "projectiles_active",
		Help:      "Current number of live projectiles",
	}, []string{"mode"})

	// RateLimitRequests tracks rate-limited checks performed
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "websocket",
		Name:      "rate_limit_requests_total",
		Help:      "Total requests checked against a rate limit",
	}, []string{"scope"})

	// RateLimitExceeded tracks rejected requests per limit scope
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total requests rejected by a rate limit",
	}, []string{"scope", "key_type"})

	// StatsRecords tracks match summaries handed to the stats sink
	StatsRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "stats",
		Name:      "records_total",
		Help:      "Match summaries handed to the stats sink",
	}, []string{"status"})

	// CircuitBreakerState reports the stats sink breaker state (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "game_server",
		Subsystem: "stats",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})

	// CircuitBreakerFailures counts calls dropped by an open breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "game_server",
		Subsystem: "stats",
		Name:      "circuit_breaker_failures_total",
		Help:      "Calls rejected because the circuit breaker was open",
	}, []string{"target"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
