// Package store provides the persistent key-value backends that mirror
// dataset caches across sessions.
//
// Three backends are available:
//
//   - Memory: process-local map, useful for tests and single-process tools
//   - Redis: shared mirror via go-redis
//   - SQLite: file-backed mirror via the pure-Go glebarez/go-sqlite driver
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := store.NewRedis(redisClient, store.RedisOptions{})
//
//	if err := s.Set(ctx, "ds:/list", data); err != nil {
//		return err
//	}
//	data, err := s.Get(ctx, "ds:/list")
//	if errors.Is(err, store.ErrNotFound) {
//		// nothing mirrored yet
//	}
//
// # Metrics
//
//   - ya_store_hits_total{backend}
//   - ya_store_misses_total{backend}
//   - ya_store_errors_total{backend, operation}
//   - ya_store_written_bytes_total{backend}
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the key has no stored value.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("store: closed")
)

// Store is a persistent key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
}
