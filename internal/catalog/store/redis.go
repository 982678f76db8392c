package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/redis"
)

const redisKeyPrefix = "catalog:state:"

// RedisStore persists states in Redis without expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetItem(ctx context.Context, name string) (*State, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+name)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return Decode(data)
}

func (s *RedisStore) SetItem(ctx context.Context, name string, state *State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+name, data, 0); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) RemoveItem(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+name); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}
