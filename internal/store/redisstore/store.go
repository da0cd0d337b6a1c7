// Package redisstore wraps the Redis client behind the cache operations the
// rest of the system needs: whole-value get/set with TTLs, key deletion and
// scanning, an expired-key subscription for the chat reconciler, and the
// short-lived confirmation codes used during registration.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kseverny/interview-platform/internal/chat"
)

// ErrCacheMiss is returned when a key does not exist. It is the chat
// package's sentinel: the driver's redis.Nil never escapes this package.
var ErrCacheMiss = chat.ErrCacheMiss

type Store struct {
	client *redis.Client
	db     int
}

// New connects to Redis and enables keyspace expiration notifications,
// which the chat reconciler depends on.
func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if err := client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis config set: %w", err)
	}
	return &Store{client: client, db: db}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

// SubscribeExpired streams the names of keys that Redis expired in this
// database. The channel closes when ctx is cancelled.
func (s *Store) SubscribeExpired(ctx context.Context) (<-chan string, error) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.db)
	pubsub := s.client.PSubscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
