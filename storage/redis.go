package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flashdeck/utils"

	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix    = "flashdeck:session:"
	redisOpTimeout = 3 * time.Second
	redisScanBatch = 100
)

// RedisStorage keeps Fiber sessions in Redis so several frontend instances
// can share them. Expiry is left to Redis.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects and pings the server
func NewRedisStorage(addr, password string, db int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	utils.Log.Info("Session storage connected to Redis at %s", addr)
	return &RedisStorage{client: client}, nil
}

// NewRedisStorageFromClient wraps an existing client
func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Get returns the value for key, or nil when it is missing
func (s *RedisStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val under key for exp (0 = no expiry)
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, redisPrefix+key, val, exp).Err()
}

// Delete removes key
func (s *RedisStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, redisPrefix+key).Err()
}

// Reset removes every session key (other keys in the database are left alone)
func (s *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, redisPrefix+"*", redisScanBatch).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close closes the connection
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
