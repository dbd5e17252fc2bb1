package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/clinical-sim/internal/models"
)

const keyPrefix = "clinsim:session:"

// SnapshotKey is where the latest session view is cached
func SnapshotKey(sessionID string) string {
	return fmt.Sprintf("%s%s:snapshot", keyPrefix, sessionID)
}

// EventsChannel is the pub/sub channel carrying every message for a session
func EventsChannel(sessionID string) string {
	return fmt.Sprintf("%s%s:events", keyPrefix, sessionID)
}

// RedisSink caches the latest snapshot and publishes every message so that
// other processes can follow a session
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures the Redis sink
type RedisOptions struct {
	Address     string
	Password    string
	DB          int
	SnapshotTTL time.Duration
}

// NewRedisSink connects to Redis
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSinkWithClient(client, opts.SnapshotTTL), nil
}

// NewRedisSinkWithClient wraps an existing client
func NewRedisSinkWithClient(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSink{client: client, ttl: ttl}
}

func (s *RedisSink) PublishSnapshot(ctx context.Context, view models.SessionView) error {
	msg := newMessage(TypeSnapshot, view.ID, view)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey(view.ID), data, s.ttl)
	pipe.Publish(ctx, EventsChannel(view.ID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (s *RedisSink) PublishFeedback(ctx context.Context, fb models.TreatmentFeedback) error {
	return s.publish(ctx, newMessage(TypeFeedback, fb.SessionID, fb))
}

func (s *RedisSink) PublishOutcome(ctx context.Context, report OutcomeReport) error {
	return s.publish(ctx, newMessage(TypeOutcome, report.Outcome.SessionID, report))
}

func (s *RedisSink) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	if err := s.client.Publish(ctx, EventsChannel(msg.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	return nil
}

// LatestSnapshot returns the cached snapshot message, or nil if none is cached
func (s *RedisSink) LatestSnapshot(ctx context.Context, sessionID string) (*Message, error) {
	data, err := s.client.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &msg, nil
}

// Forget drops the cached snapshot of a session
func (s *RedisSink) Forget(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, SnapshotKey(sessionID)).Err()
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.client.Close()
}
