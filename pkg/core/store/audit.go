// Package store holds the audit store: an append-only sink for the raw
// per-page extraction payloads of a job. Each (job_id, page) is written at
// most once; backends reject a second write with ErrAlreadyWritten.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrAlreadyWritten is returned when (job_id, page) already has a payload.
var ErrAlreadyWritten = errors.New("store: audit payload already written")

// AuditStore is write-only from the pipeline's perspective.
type AuditStore interface {
	Put(ctx context.Context, jobID string, page int, payload []byte) error
}

func checkPut(jobID string, page int, payload []byte) error {
	if jobID == "" {
		return fmt.Errorf("audit: empty job id")
	}
	if page < 1 {
		return fmt.Errorf("audit: invalid page %d", page)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("audit: payload for page %d is not valid JSON", page)
	}
	return nil
}

// Backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Dir         string
	DatabaseURL string
	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration
}

// Open builds the configured backend. The returned closer releases any
// connections and is never nil.
func Open(ctx context.Context, opts Options) (AuditStore, io.Closer, error) {
	switch opts.Backend {
	case BackendFile, "":
		s, err := NewFileAudit(opts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case BackendPostgres:
		pool, err := NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgresAudit(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, closerFunc(func() error { pool.Close(); return nil }), nil
	case BackendRedis:
		s, client, err := DialRedisAudit(opts.RedisURL, opts.RedisPrefix, opts.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		return s, client, nil
	case BackendNone:
		return Discard{}, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit backend %q", opts.Backend)
	}
}

// Discard accepts and drops every payload.
type Discard struct{}

func (Discard) Put(ctx context.Context, jobID string, page int, payload []byte) error {
	return checkPut(jobID, page, payload)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
