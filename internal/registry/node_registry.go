// Package registry implements the hub-side Node Registry (spec C4): a
// process-wide, mutex-protected map of live prover nodes keyed by a
// deterministic id, with a Proof-of-History-style chain over insertions and
// a sweeper for inactive records.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Record describes one registered prover node.
type Record struct {
	ID           string
	GRPCAddr     string
	HTTPAddr     string
	RegisteredAt int64 // unix seconds
	PoH          string
}

// Mirror optionally shadows registry mutations into an external store for
// cross-replica observability. It never gates a read — see mirror.go.
type Mirror interface {
	OnAdd(r Record)
	OnRemove(id string)
}

const defaultInactivityTimeout = 30 * time.Second

// Registry is the singleton id -> Record map. Callers share one instance by
// reference, mirroring the teacher's Hub struct in internal/fabric/hub.go.
type Registry struct {
	mu                 sync.RWMutex
	nodes              map[string]Record
	lastPoH            string
	inactivityTimeout  time.Duration
	mirror             Mirror
	logger             *slog.Logger
}

// New builds an empty Registry with the default 30s inactivity timeout.
func New() *Registry {
	return &Registry{
		nodes:             make(map[string]Record),
		inactivityTimeout: defaultInactivityTimeout,
		logger:            slog.Default(),
	}
}

// SetInactivityTimeout overrides the default inactivity window. Used by the
// periodic sweeper job, which widens it to 60s after the first tick per
// spec.md §4.12.
func (r *Registry) SetInactivityTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inactivityTimeout = d
}

// SetMirror installs an optional shadow store. Nil disables mirroring.
func (r *Registry) SetMirror(m Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirror = m
}

// SetLogger overrides the default slog logger.
func (r *Registry) SetLogger(l *slog.Logger) {
	r.logger = l
}

// ComputeID returns the deterministic node id for a (grpc_addr, http_addr)
// pair: sha256({grpc_addr, http_addr}) hex-encoded.
func ComputeID(grpcAddr, httpAddr string) string {
	sum := sha256.Sum256([]byte(grpcAddr + "|" + httpAddr))
	return hex.EncodeToString(sum[:])
}

// Add inserts or overwrites the node identified by (grpcAddr, httpAddr),
// chaining its PoH onto the registry's last insertion. The very first
// node's chain is seeded from its own PoH, per spec.md §4.4 — intentional,
// not a bug: there is no predecessor to chain from.
func (r *Registry) Add(grpcAddr, httpAddr string) Record {
	id := ComputeID(grpcAddr, httpAddr)
	now := time.Now().Unix()

	r.mu.Lock()
	defer r.mu.Unlock()

	poh := computePoH(grpcAddr, httpAddr, now, r.lastPoH)
	if r.lastPoH == "" {
		r.lastPoH = poh
	}

	record := Record{
		ID:           id,
		GRPCAddr:     grpcAddr,
		HTTPAddr:     httpAddr,
		RegisteredAt: now,
		PoH:          poh,
	}
	r.nodes[id] = record
	r.lastPoH = poh

	if r.mirror != nil {
		r.mirror.OnAdd(record)
	}
	r.logger.Info("registry: node added", "node_id", id, "grpc_addr", grpcAddr, "http_addr", httpAddr)
	return record
}

func computePoH(grpcAddr, httpAddr string, registeredAt int64, lastPoH string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", grpcAddr, httpAddr, registeredAt, lastPoH)))
	return hex.EncodeToString(sum[:])
}

// Remove deletes the node with the given id, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return
	}
	delete(r.nodes, id)
	if r.mirror != nil {
		r.mirror.OnRemove(id)
	}
	r.logger.Info("registry: node removed", "node_id", id)
}

// Sample returns up to k live records chosen uniformly at random without
// replacement. If k >= the live node count, all live records are returned.
func (r *Registry) Sample(k int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]Record, 0, len(r.nodes))
	now := time.Now().Unix()
	for _, rec := range r.nodes {
		if now-rec.RegisteredAt <= int64(r.inactivityTimeout.Seconds()) {
			live = append(live, rec)
		}
	}

	if k >= len(live) {
		return live
	}

	rand.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	return live[:k]
}

// Sweep removes every record whose age exceeds the configured inactivity
// timeout. Returns the number of records removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	removed := 0
	for id, rec := range r.nodes {
		if now-rec.RegisteredAt > int64(r.inactivityTimeout.Seconds()) {
			delete(r.nodes, id)
			removed++
			if r.mirror != nil {
				r.mirror.OnRemove(id)
			}
		}
	}
	if removed > 0 {
		r.logger.Info("registry: swept inactive nodes", "count", removed)
	}
	return removed
}

// Snapshot returns a read-only copy of every currently-tracked record
// (live or not), for the /admin/nodes introspection endpoint. It does not
// affect add/remove/sweep semantics.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.nodes))
	for _, rec := range r.nodes {
		out = append(out, rec)
	}
	return out
}

// Len reports the number of tracked records, live or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
