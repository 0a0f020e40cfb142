package fetch

import (
	"context"
	"fmt"
	"sync"
)

// Pool bounds the number of simultaneous browser-backed operations across
// all jobs. It is the sole global gatekeeper for browser resources.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot frees up or the context ends. The returned
// lease must be released on every exit path.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case p.slots <- struct{}{}:
		return &Lease{pool: p}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire browser slot: %w", ctx.Err())
	}
}

// Lease is one held browser slot. Release is idempotent.
type Lease struct {
	pool *Pool
	once sync.Once
}

func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		<-l.pool.slots
	})
}

// InUse reports currently held slots. Observability only.
func (p *Pool) InUse() int {
	return len(p.slots)
}
