package rpcpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grpc.NewClient never blocks to dial, so these tests exercise pool
// bookkeeping against a placeholder address without a live backend.
const testAddr = "127.0.0.1:0"

func TestPool_AcquireDialsUpToMaxConns(t *testing.T) {
	p := New(testAddr, WithMaxConnections(2))
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, 2, p.total)
}

func TestPool_AcquireBlocksAtCapacityUntilRelease(t *testing.T) {
	p := New(testAddr, WithMaxConnections(1))
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		c, err := p.Acquire(context.Background())
		require.NoError(t, err)
		assert.Same(t, conn, c)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned before Release freed a slot")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release(conn)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := New(testAddr, WithMaxConnections(1))
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ReleaseRequeuesForReuse(t *testing.T) {
	p := New(testAddr, WithMaxConnections(1))
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, 1, p.total)
}

func TestPool_CloseRejectsFurtherAcquire(t *testing.T) {
	p := New(testAddr, WithMaxConnections(2))
	require.NoError(t, p.Close())

	_, err := p.Acquire(context.Background())
	assert.Error(t, err)
}

func TestRegistry_GetReturnsSameSingletonPerAddr(t *testing.T) {
	r := NewRegistry()
	defer r.CloseAll()

	p1 := r.Get("addr-a:1")
	p2 := r.Get("addr-a:1")
	p3 := r.Get("addr-b:1")

	assert.Same(t, p1, p2)
	assert.NotSame(t, p1, p3)
}
