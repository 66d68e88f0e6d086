// Package redis implements the job store on Redis for lightweight
// deployments. Jobs are stored as JSON documents under string keys with
// a Set index for enumeration, conditional transitions use WATCH-based
// optimistic transactions, and the change feed rides Redis pub/sub.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jobline/jobline/job"
)

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

// Redis key naming conventions. All keys are prefixed with "jobline:"
// to avoid collisions.
const (
	keyPrefix = "jobline:"

	// jobIDsKey is the Set tracking all job IDs for enumeration.
	jobIDsKey = keyPrefix + "job_ids"

	// changeChannel is the pub/sub channel carrying change events.
	changeChannel = keyPrefix + "changes"
)

// jobKey returns the key for a job document: jobline:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements job.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("jobline/redis: ping: %w", err)
	}
	return nil
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
