package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"smidi/billing/internal/domain"
)

const keyPrefix = "smidi:"

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(addr string, password string, db int) *RedisCatalogCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCatalogCache{client: client}
}

func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}

func (c *RedisCatalogCache) GetProducts(ctx context.Context) ([]domain.Product, bool, error) {
	var products []domain.Product
	ok, err := c.get(ctx, KeyProducts, &products)
	return products, ok, err
}

func (c *RedisCatalogCache) SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error {
	if products == nil {
		return nil
	}
	return c.set(ctx, KeyProducts, products, ttl)
}

func (c *RedisCatalogCache) GetEmployees(ctx context.Context) ([]domain.Employee, bool, error) {
	var employees []domain.Employee
	ok, err := c.get(ctx, KeyEmployees, &employees)
	return employees, ok, err
}

func (c *RedisCatalogCache) SetEmployees(ctx context.Context, employees []domain.Employee, ttl time.Duration) error {
	if employees == nil {
		return nil
	}
	return c.set(ctx, KeyEmployees, employees, ttl)
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, keyPrefix+k)
	}
	return c.client.Del(ctx, full...).Err()
}

func (c *RedisCatalogCache) get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCatalogCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}
