// Package conflict 决定 CRDT 字段收到远端状态时如何合并。
// 选哪种策略是应用层的策略问题，这里只提供可插拔的实现。
package conflict

import (
	"errors"
	"fmt"
	"sync"

	"collabcore/backend/internal/crdt"
)

var ErrNoStrategy = errors.New("NO_CONFLICT_STRATEGY")

// Strategy 由本地状态和远端状态得到新状态，不修改参数
type Strategy func(local, remote *crdt.State) (*crdt.State, error)

// Join 格上合并
func Join(local, remote *crdt.State) (*crdt.State, error) {
	if local == nil {
		return remote.Clone(), nil
	}
	out := local.Clone()
	if err := out.Merge(remote); err != nil {
		return nil, err
	}
	return out, nil
}

// KeepLocal 忽略远端
func KeepLocal(local, remote *crdt.State) (*crdt.State, error) {
	if local == nil {
		return remote.Clone(), nil
	}
	if remote != nil && remote.Kind != local.Kind {
		return nil, fmt.Errorf("%w: %s vs %s", crdt.ErrKindMismatch, local.Kind, remote.Kind)
	}
	return local.Clone(), nil
}

// TakeRemote 远端覆盖本地
func TakeRemote(local, remote *crdt.State) (*crdt.State, error) {
	if remote == nil {
		return local.Clone(), nil
	}
	if local != nil && remote.Kind != local.Kind {
		return nil, fmt.Errorf("%w: %s vs %s", crdt.ErrKindMismatch, local.Kind, remote.Kind)
	}
	return remote.Clone(), nil
}

var named = map[string]Strategy{
	"join":        Join,
	"keep_local":  KeepLocal,
	"take_remote": TakeRemote,
}

// ParseStrategy 配置里用名字指定策略
func ParseStrategy(name string) (Strategy, error) {
	s, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoStrategy, name)
	}
	return s, nil
}

// Resolver 字段名 -> 策略，未注册的字段使用默认策略
type Resolver struct {
	mu       sync.RWMutex
	fallback Strategy
	byField  map[string]Strategy
}

func NewResolver() *Resolver {
	return &Resolver{fallback: Join, byField: make(map[string]Strategy)}
}

func (r *Resolver) Register(field string, s Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: field %q", ErrNoStrategy, field)
	}
	r.mu.Lock()
	r.byField[field] = s
	r.mu.Unlock()
	return nil
}

func (r *Resolver) SetDefault(s Strategy) error {
	if s == nil {
		return ErrNoStrategy
	}
	r.mu.Lock()
	r.fallback = s
	r.mu.Unlock()
	return nil
}

func (r *Resolver) strategy(field string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byField[field]; ok {
		return s
	}
	return r.fallback
}

// Resolve 返回合并后的新状态，local 为 nil 表示字段还不存在
func (r *Resolver) Resolve(field string, local, remote *crdt.State) (*crdt.State, error) {
	if local == nil && remote == nil {
		return nil, fmt.Errorf("%w: field %q has no state", ErrNoStrategy, field)
	}
	out, err := r.strategy(field)(local, remote)
	if err != nil {
		return nil, fmt.Errorf("resolve field %q: %w", field, err)
	}
	return out, nil
}
