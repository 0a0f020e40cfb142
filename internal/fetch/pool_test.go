package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := NewPool(2)

	a, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := p.InUse(); got != 2 {
		t.Fatalf("expected 2 slots in use, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full pool, got %v", err)
	}

	a.Release()
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	// Release is idempotent.
	a.Release()
	b.Release()
	c.Release()
	if got := p.InUse(); got != 0 {
		t.Fatalf("expected empty pool, got %d in use", got)
	}
}

func TestPool_MinimumSizeOne(t *testing.T) {
	p := NewPool(0)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("expected single-slot pool to block second acquire")
	}
}
