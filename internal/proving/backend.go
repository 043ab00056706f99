package proving

import (
	"context"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zkprover/controlplane/internal/rpcpool"
	"github.com/zkprover/controlplane/pb"
)

// ProverID names a proving backend implementation, selected by the
// caller's prover_id field.
type ProverID string

const (
	ProverCircom  ProverID = "CIRCOM"
	ProverPrivate ProverID = "PRIVATE"
)

// ProvingBackend is the small external RPC contract spec.md §1 names:
// something that turns a circuit id and payload into a proof plus its
// public witness.
type ProvingBackend interface {
	GenerateProof(ctx context.Context, circuitID string, payload []byte) (proof []byte, publicWitness []string, err error)
}

// PooledBackend calls a ProvingBackend over a pooled gRPC connection, with
// bounded retry on transient errors per spec.md §4.10: up to 2 retries on
// UNAVAILABLE/DEADLINE_EXCEEDED/INTERNAL, exponential backoff starting at
// 150ms and capped at 2s.
type PooledBackend struct {
	Pool       *rpcpool.Pool
	Deadline   time.Duration
	MaxRetries int
}

// NewPooledBackend builds a backend with spec.md's 30s deadline and 2
// max-retries defaults.
func NewPooledBackend(pool *rpcpool.Pool) *PooledBackend {
	return &PooledBackend{Pool: pool, Deadline: 30 * time.Second, MaxRetries: 2}
}

func (b *PooledBackend) GenerateProof(ctx context.Context, circuitID string, payload []byte) ([]byte, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Deadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*math.Pow(2, float64(attempt-1))) * time.Millisecond
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		conn, err := b.Pool.Acquire(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("proving: acquire backend connection: %w", err)
		}

		client := pb.NewProvingBackendClient(conn)
		resp, err := client.GenerateProof(ctx, &pb.ProvingBackendRequest{CircuitID: circuitID, Payload: payload})
		b.Pool.Release(conn)

		if err == nil {
			return resp.Proof, resp.PublicWitness, nil
		}

		lastErr = err
		if !isTransient(err) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("proving: backend unreachable after %d retries: %w", b.MaxRetries, lastErr)
}

func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
		return true
	default:
		return false
	}
}

// BackendRegistry resolves a ProverID to its configured ProvingBackend.
type BackendRegistry struct {
	backends map[ProverID]ProvingBackend
}

// NewBackendRegistry builds a registry from an explicit map.
func NewBackendRegistry(backends map[ProverID]ProvingBackend) *BackendRegistry {
	return &BackendRegistry{backends: backends}
}

// Resolve returns the backend for id, or false if prover_id is unknown
// (caller must respond UNSUPPORTED_PROVER).
func (r *BackendRegistry) Resolve(id ProverID) (ProvingBackend, bool) {
	b, ok := r.backends[id]
	return b, ok
}
