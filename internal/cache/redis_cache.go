package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailops/backend/internal/domain"
)

type RedisCartStore struct {
	client *redis.Client
}

func NewRedisCartStore(addr string, password string, db int) *RedisCartStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCartStore{client: client}
}

func (s *RedisCartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCartStore) Close() error {
	return s.client.Close()
}

func cartKey(customerID string) string {
	return "cart:" + customerID
}

func (s *RedisCartStore) Get(ctx context.Context, customerID string) (*domain.Cart, bool, error) {
	val, err := s.client.Get(ctx, cartKey(customerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		return nil, false, err
	}
	return &cart, true, nil
}

func (s *RedisCartStore) Save(ctx context.Context, cart domain.Cart, ttl time.Duration) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(cart.CustomerID), payload, ttl).Err()
}

func (s *RedisCartStore) Clear(ctx context.Context, customerID string) error {
	return s.client.Del(ctx, cartKey(customerID)).Err()
}
