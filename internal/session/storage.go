// Package session provides the storage backends used by the session
// middleware. The memory store is Fiber's own default; Redis is available
// for deployments running more than one instance.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/any-hub/trame/internal/config"
)

// DefaultKeyPrefix 是 Redis 会话键的默认命名空间。
const DefaultKeyPrefix = "trame:session:"

const defaultOpTimeout = 3 * time.Second

// RedisStorage 以 go-redis 实现 fiber.Storage，所有键都带有 prefix 命名空间。
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

var _ fiber.Storage = (*RedisStorage)(nil)

// NewRedisStorage 基于已有客户端构造存储。
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStorage{
		client:    client,
		prefix:    prefix,
		opTimeout: defaultOpTimeout,
	}
}

// NewStorage 根据会话配置返回存储实现；memory 返回 nil，由 Fiber 使用默认内存存储。
func NewStorage(ctx context.Context, cfg config.SessionConfig) (fiber.Storage, error) {
	switch strings.ToLower(cfg.Store) {
	case "", "memory":
		return nil, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("解析 RedisURL 失败: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("连接 redis 失败: %w", err)
		}
		return NewRedisStorage(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("不支持的会话存储: %s", cfg.Store)
	}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}

func (s *RedisStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetWithContext 返回键对应的值；键不存在时返回 nil, nil。
func (s *RedisStorage) GetWithContext(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *RedisStorage) Get(key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	return s.GetWithContext(ctx, key)
}

// SetWithContext 写入值，exp<=0 表示不过期；空键或空值被忽略。
func (s *RedisStorage) SetWithContext(ctx context.Context, key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	if exp < 0 {
		exp = 0
	}
	return s.client.Set(ctx, s.key(key), val, exp).Err()
}

func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	return s.SetWithContext(ctx, key, val, exp)
}

func (s *RedisStorage) DeleteWithContext(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStorage) Delete(key string) error {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	return s.DeleteWithContext(ctx, key)
}

// ResetWithContext 仅删除当前命名空间下的键，不影响同库其他数据。
func (s *RedisStorage) ResetWithContext(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
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

func (s *RedisStorage) Reset() error {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	return s.ResetWithContext(ctx)
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
