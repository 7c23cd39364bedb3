// Package redisstore keeps timer state in Redis so a daemon on another machine, or
// a restarted container, sees the same anchors.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"studytimer/internal/event"
	"studytimer/internal/storage"
)

type RedisStore struct {
	url    string
	prefix string
	client *redis.Client
}

func NewRedisStore(redisURL, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "studytimer:"
	}
	return &RedisStore{url: redisURL, prefix: prefix}
}

// NewWithClient wraps an existing client. Init only pings it.
func NewWithClient(client *redis.Client, prefix string) *RedisStore {
	s := NewRedisStore("", prefix)
	s.client = client
	return s
}

var _ storage.Storage = (*RedisStore)(nil)

func (s *RedisStore) Init(ctx context.Context) error {
	if s.client == nil {
		opt, err := redis.ParseURL(s.url)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		s.client = redis.NewClient(opt)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	log.Printf("Connected to Redis (prefix %q)", s.prefix)
	return nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Events live in a sorted set scored by epoch-ms, ids come from a counter.
func (s *RedisStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	id, err := s.client.Incr(ctx, s.key("events:seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate event id: %w", err)
	}
	e.ID = id
	payload, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}
	member := redis.Z{Score: float64(e.Timestamp.UnixMilli()), Member: string(payload)}
	if err := s.client.ZAdd(ctx, s.key("events"), member).Err(); err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (s *RedisStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	raw, err := s.client.ZRangeByScore(ctx, s.key("events"), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start.UnixMilli()),
		Max: fmt.Sprintf("%d", end.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	var events []event.Event
	for _, item := range raw {
		var e event.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			log.Printf("Skipping undecodable event in Redis: %v", err)
			continue
		}
		if storage.MatchesType(e.Type, eventTypes) {
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		log.Println("Closing Redis connection.")
		return s.client.Close()
	}
	return nil
}
