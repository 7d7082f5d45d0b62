package collab

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSemaphoreControl(t *testing.T) {
	sem := NewSemaphoreControl(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sem.Acquire(ctx); !errors.Is(err, ErrSemaphoreTimeout) {
		t.Fatalf("Acquire() error = %v, want ErrSemaphoreTimeout", err)
	}
	if sem.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1", sem.InUse())
	}
	if err := sem.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := sem.Release(); !errors.Is(err, ErrSemaphoreNotAcquired) {
		t.Fatalf("Release() error = %v, want ErrSemaphoreNotAcquired", err)
	}
}
