package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "extractor:audit"

// RedisAudit writes each payload under <prefix>:<job_id>:<page> with SETNX.
type RedisAudit struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisAudit(client redis.Cmdable, prefix string, ttl time.Duration) *RedisAudit {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisAudit{client: client, prefix: prefix, ttl: ttl}
}

// DialRedisAudit parses a redis:// URL and returns the store with its client.
func DialRedisAudit(url, prefix string, ttl time.Duration) (*RedisAudit, *redis.Client, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisAudit(client, prefix, ttl), client, nil
}

func (s *RedisAudit) Key(jobID string, page int) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, jobID, page)
}

func (s *RedisAudit) Put(ctx context.Context, jobID string, page int, payload []byte) error {
	if err := checkPut(jobID, page, payload); err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.Key(jobID, page), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s page %d", ErrAlreadyWritten, jobID, page)
	}
	return nil
}
