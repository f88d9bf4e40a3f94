package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisSink appends match summaries to a Redis stream. Writes go through a
// circuit breaker and a buffered queue so a slow or dead Redis never blocks
// a room's match-end path.
type RedisSink struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	stream string
	queue  chan MatchSummary
	done   chan struct{}
}

const recordQueueSize = 128

// NewRedisSink creates a sink backed by the given Redis address and starts
// its background writer.
func NewRedisSink(addr, password, stream string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis-stats",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	s := &RedisSink{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		stream: stream,
		queue:  make(chan MatchSummary, recordQueueSize),
		done:   make(chan struct{}),
	}
	go s.writeLoop()

	slog.Info("Connected to Redis stats sink", "addr", addr, "stream", stream)
	return s, nil
}

// NewRedisSinkWithClient wires an existing client, mainly for tests.
func NewRedisSinkWithClient(client *redis.Client, stream string) *RedisSink {
	s := &RedisSink{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "redis-stats"}),
		stream: stream,
		queue:  make(chan MatchSummary, recordQueueSize),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// RecordMatchEnd queues a summary for the background writer. If the queue
// is full the record is dropped rather than blocking the room.
func (s *RedisSink) RecordMatchEnd(_ context.Context, summary MatchSummary) {
	select {
	case s.queue <- summary:
		metrics.StatsRecords.WithLabelValues("queued").Inc()
	default:
		metrics.StatsRecords.WithLabelValues("dropped").Inc()
		slog.Warn("Stats queue full, dropping match record", "roomId", summary.RoomID, "mode", summary.Mode)
	}
}

func (s *RedisSink) writeLoop() {
	for summary := range s.queue {
		if err := s.write(summary); err != nil {
			metrics.StatsRecords.WithLabelValues("failed").Inc()
			slog.Error("Stats write failed", "roomId", summary.RoomID, "error", err)
			continue
		}
		metrics.StatsRecords.WithLabelValues("written").Inc()
	}
	close(s.done)
}

func (s *RedisSink) write(summary MatchSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal match summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"mode":    summary.Mode,
				"roomId":  summary.RoomID,
				"summary": string(data),
			},
		}).Err()
	})

	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		slog.Warn("Redis Circuit Breaker Open: dropping match record", "roomId", summary.RoomID)
		return nil // Graceful degradation: drop record, don't crash caller
	}
	return err
}

// Ping checks Redis connectivity. Used by health checks.
func (s *RedisSink) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close drains the queue and shuts down the Redis connection.
func (s *RedisSink) Close() error {
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		slog.Warn("Stats sink close timed out before queue drained")
	}
	return s.client.Close()
}
