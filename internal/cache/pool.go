package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"tenantgate/internal/resp"
)

const defaultMaxConns = 16

// Pool hands out wire clients with an explicit acquire/release lifetime.
// Clients are single-connection and not concurrency-safe, so every concurrent
// caller owns one for the duration of its calls. Broken clients are discarded
// on release; healthy ones are reused.
type Pool struct {
	dial func() *resp.Client
	sem  *semaphore.Weighted

	mu     sync.Mutex
	free   []*resp.Client
	closed bool
}

func NewPool(cfg resp.Config, maxConns int) *Pool {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Pool{
		dial: func() *resp.Client { return resp.NewClient(cfg) },
		sem:  semaphore.NewWeighted(int64(maxConns)),
	}
}

func (p *Pool) Acquire(ctx context.Context) (*resp.Client, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire cache connection: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.sem.Release(1)
		return nil, fmt.Errorf("cache pool is closed")
	}

	if n := len(p.free); n > 0 {
		client := p.free[n-1]
		p.free = p.free[:n-1]
		return client, nil
	}

	return p.dial(), nil
}

// Release returns a client to the pool. Broken clients are closed instead of
// reused; their replacement is dialed lazily by a later Acquire.
func (p *Pool) Release(client *resp.Client, broken bool) {
	p.mu.Lock()
	if broken || p.closed {
		_ = client.Close()
	} else {
		p.free = append(p.free, client)
	}
	p.mu.Unlock()

	p.sem.Release(1)
}

// Stop closes the pool and every idle connection.
func (p *Pool) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, client := range p.free {
		_ = client.Close()
	}
	p.free = nil

	return nil
}

func (p *Pool) String() string {
	return "cache.Pool"
}
