package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror shadows registry Add/Remove calls into a Redis set for
// observability across hub replicas. It is never consulted for reads —
// Sample/Sweep/Snapshot only ever touch the in-memory map — so a mirror
// outage degrades monitoring, never dispatch correctness.
type RedisMirror struct {
	rdb *redis.Client
	key string
}

// NewRedisMirror connects to addr and verifies reachability with a single
// ping. The caller decides whether to fall back to no mirror at all if this
// returns an error — the registry functions correctly either way.
func NewRedisMirror(addr, password string, db int) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("registry: redis mirror ping failed (%s): %w", addr, err)
	}

	slog.Info("registry: redis mirror connected", "addr", addr, "db", db)
	return &RedisMirror{rdb: rdb, key: "zkprover:registry:nodes"}, nil
}

// Close shuts down the underlying Redis client.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

// OnAdd records the node id in the mirror set. Failures are logged and
// swallowed — the in-memory registry is already updated and authoritative.
func (m *RedisMirror) OnAdd(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.rdb.SAdd(ctx, m.key, r.ID).Err(); err != nil {
		slog.Warn("registry: redis mirror add failed", "node_id", r.ID, "error", err)
	}
}

// OnRemove removes the node id from the mirror set.
func (m *RedisMirror) OnRemove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.rdb.SRem(ctx, m.key, id).Err(); err != nil {
		slog.Warn("registry: redis mirror remove failed", "node_id", id, "error", err)
	}
}
