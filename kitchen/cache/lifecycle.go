package cache

import (
	"context"
	"log/slog"
	"time"
)

// Policy decides when a cached upstream result must be fetched again. A zero
// TTL never expires.
type Policy struct {
	TTL time.Duration

	// Expires reports whether the entry is subject to the ttl at all, nil means always.
	Expires func(key string) bool
}

func (p Policy) Fresh(key string, fetchedAt, now time.Time) bool {
	if p.TTL == 0 {
		return true
	}
	if p.Expires != nil && !p.Expires(key) {
		return true
	}
	return now.Sub(fetchedAt) < p.TTL
}

// Entry is a cached value together with the time it was fetched upstream.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Source wires a persistent cache table to its upstream provider.
type Source[T any] struct {
	Name   string
	Policy Policy
	Load   func(ctx context.Context, key string) (Entry[T], bool, error)
	Fetch  func(ctx context.Context, key string) (T, error)
	Save   func(ctx context.Context, key string, entry Entry[T]) error
	Now    func() time.Time
}

// Get returns a fresh cached entry, otherwise fetches from upstream and stores
// the result. If upstream fails, a stale entry is returned when one exists;
// ok is false only when there is nothing cached and upstream failed.
func (s Source[T]) Get(ctx context.Context, key string) (T, bool, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	cached, found, err := s.Load(ctx, key)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if found && s.Policy.Fresh(key, cached.FetchedAt, now) {
		return cached.Value, true, nil
	}

	value, err := s.Fetch(ctx, key)
	if err != nil {
		slog.Warn("upstream fetch failed, using cached value", "cache", s.Name, "key", key, "has_stale", found, "error", err)
		if found {
			return cached.Value, true, nil
		}
		var zero T
		return zero, false, nil
	}

	entry := Entry[T]{Value: value, FetchedAt: now}
	if err := s.Save(ctx, key, entry); err != nil {
		return value, true, err
	}

	return value, true, nil
}
