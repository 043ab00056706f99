// Package rpcpool implements the bounded lazy connection pool (spec C13)
// the Proving Dispatcher uses to reach proving backends: a channel-backed
// queue of warm *grpc.ClientConn, grounded on the same
// channel-as-queue/active-map/capacity-gated dial-on-demand shape as the teacher's
// GhostContainer pool in internal/ghostpool/pool_manager.go, repurposed
// from container leasing to gRPC channel leasing.
package rpcpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	defaultMaxConnections  = 100
	defaultKeepaliveTime   = 60 * time.Second
	defaultKeepaliveTout   = 20 * time.Second
	defaultMaxMessageBytes = 64 * 1024 * 1024
)

// Pool is a bounded pool of keep-alive gRPC channels to one backend
// address. acquire() hands out an existing idle channel if one is queued,
// otherwise constructs a new one while under the cap, otherwise blocks
// until one is released or the context is cancelled.
type Pool struct {
	addr string

	mu       sync.Mutex
	idle     chan *grpc.ClientConn
	active   map[*grpc.ClientConn]struct{}
	total    int
	maxConns int
	closed   bool

	keepaliveTime    time.Duration
	keepaliveTimeout time.Duration
	maxMessageBytes  int
}

// Option configures a Pool at construction time.
type Option func(*Pool)

func WithMaxConnections(n int) Option {
	return func(p *Pool) { p.maxConns = n }
}

func WithKeepalive(ping, timeout time.Duration) Option {
	return func(p *Pool) { p.keepaliveTime = ping; p.keepaliveTimeout = timeout }
}

func WithMaxMessageBytes(n int) Option {
	return func(p *Pool) { p.maxMessageBytes = n }
}

// New builds a pool for addr. No connections are opened eagerly; they are
// created lazily on first acquire() up to maxConns.
func New(addr string, opts ...Option) *Pool {
	p := &Pool{
		addr:             addr,
		active:           make(map[*grpc.ClientConn]struct{}),
		maxConns:         defaultMaxConnections,
		keepaliveTime:    defaultKeepaliveTime,
		keepaliveTimeout: defaultKeepaliveTout,
		maxMessageBytes:  defaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.idle = make(chan *grpc.ClientConn, p.maxConns)
	return p
}

// Acquire returns a warm channel, blocking if the pool is at capacity and
// every channel is in use, until one frees up or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*grpc.ClientConn, error) {
	for {
		select {
		case conn, ok := <-p.idle:
			if !ok {
				return nil, fmt.Errorf("rpcpool: pool for %s is closed", p.addr)
			}
			p.mu.Lock()
			p.active[conn] = struct{}{}
			p.mu.Unlock()
			return conn, nil
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("rpcpool: pool for %s is closed", p.addr)
		}
		if p.total < p.maxConns {
			conn, err := p.dial()
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			p.total++
			p.active[conn] = struct{}{}
			p.mu.Unlock()
			return conn, nil
		}
		p.mu.Unlock()

		select {
		case conn, ok := <-p.idle:
			if !ok {
				return nil, fmt.Errorf("rpcpool: pool for %s is closed", p.addr)
			}
			p.mu.Lock()
			p.active[conn] = struct{}{}
			p.mu.Unlock()
			return conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) dial() (*grpc.ClientConn, error) {
	return grpc.NewClient(p.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                p.keepaliveTime,
			Timeout:             p.keepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(p.maxMessageBytes),
			grpc.MaxCallSendMsgSize(p.maxMessageBytes),
		),
	)
}

// Release returns conn to the idle queue. If the pool has been closed in
// the meantime, conn is closed directly instead of being re-queued.
func (p *Pool) Release(conn *grpc.ClientConn) {
	p.mu.Lock()
	delete(p.active, conn)
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	select {
	case p.idle <- conn:
		p.mu.Unlock()
	default:
		// Idle queue is full (shouldn't happen given total<=maxConns), close
		// the surplus channel rather than leak it.
		p.mu.Unlock()
		conn.Close()
	}
}

// Close closes every pooled channel — idle and in-flight alike — and
// rejects further Acquire calls.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	conns := make([]*grpc.ClientConn, 0, len(p.active)+len(p.idle))
	for conn := range p.active {
		conns = append(conns, conn)
	}
	for conn := range p.idle {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *grpc.ClientConn) {
			defer wg.Done()
			c.Close()
		}(conn)
	}
	wg.Wait()
	return nil
}

// Registry is a process-wide singleton mapping backend address to its Pool,
// per spec.md §4.13's "MAY keep one pool per address as singleton" allowance.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
	opts  []Option
}

// NewRegistry builds a pool registry that applies opts to every pool it
// lazily creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{pools: make(map[string]*Pool), opts: opts}
}

// Get returns the singleton Pool for addr, creating it on first use.
func (r *Registry) Get(addr string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[addr]; ok {
		return p
	}
	p := New(addr, r.opts...)
	r.pools[addr] = p
	return p
}

// CloseAll closes every pool the registry has created.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(pool *Pool) {
			defer wg.Done()
			pool.Close()
		}(p)
	}
	wg.Wait()
}
