package collab

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSemaphoreTimeout     = errors.New("SEMAPHORE_TIMEOUT")
	ErrSemaphoreNotAcquired = errors.New("SEMAPHORE_NOT_ACQUIRED")
)

const DefaultSemaphoreSize = 100

// SemaphoreControl 限制并发数：Submit 的 ws 处理协程、Kafka 发送 worker 各用一个
type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = DefaultSemaphoreSize
	}
	return &SemaphoreControl{ch: make(chan struct{}, size)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSemaphoreTimeout, ctx.Err())
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotAcquired
	}
}

// InUse 当前占用数
func (s *SemaphoreControl) InUse() int { return len(s.ch) }
