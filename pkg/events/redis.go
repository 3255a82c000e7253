package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"transcription-queue/pkg/models"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisSink publishes each update on a pub/sub channel and records the
// latest update per job in a hash.
type RedisSink struct {
	client    redisClient
	closer    func() error
	channel   string
	statusKey string
	timeout   time.Duration
}

// ConnectRedis opens a client for addr and checks it with PING.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisSink(client *redis.Client, channel, statusKey string) *RedisSink {
	s := newRedisSink(client, channel, statusKey)
	s.closer = client.Close
	return s
}

func newRedisSink(client redisClient, channel, statusKey string) *RedisSink {
	if channel == "" {
		channel = "transcription:status"
	}
	if statusKey == "" {
		statusKey = "transcription:jobs"
	}
	return &RedisSink{
		client:    client,
		channel:   channel,
		statusKey: statusKey,
		timeout:   2 * time.Second,
	}
}

// Publish never blocks the worker for longer than the sink timeout; errors
// are logged and dropped.
func (s *RedisSink) Publish(update models.StatusUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Redis: Failed to marshal update for %s: %v", update.JobID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, string(data)).Err(); err != nil {
		log.Printf("Redis: Failed to publish update for %s: %v", update.JobID, err)
	}
	if err := s.client.HSet(ctx, s.statusKey, update.JobID, string(data)).Err(); err != nil {
		log.Printf("Redis: Failed to record status for %s: %v", update.JobID, err)
	}
}

func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
