package crdt

import (
	"encoding/json"
	"time"
)

// LWWRegister 最后写入者胜出；时间戳相同时 replica id 较大者胜出
type LWWRegister[T any] struct {
	value  T
	ts     int64
	writer ReplicaID
}

func NewLWWRegister[T any]() *LWWRegister[T] {
	return &LWWRegister[T]{}
}

// Set 以当前时间写入；时钟回拨时仍保证比上一次写入大
func (r *LWWRegister[T]) Set(v T, by ReplicaID) {
	ts := time.Now().UnixNano()
	if ts <= r.ts {
		ts = r.ts + 1
	}
	r.SetAt(v, ts, by)
}

// SetAt 使用调用方给定的逻辑时间戳
func (r *LWWRegister[T]) SetAt(v T, ts int64, by ReplicaID) {
	r.value, r.ts, r.writer = v, ts, by
}

func (r *LWWRegister[T]) Value() T               { return r.value }
func (r *LWWRegister[T]) Timestamp() int64       { return r.ts }
func (r *LWWRegister[T]) Writer() ReplicaID      { return r.writer }
func (r *LWWRegister[T]) IsSet() bool            { return r.ts != 0 || r.writer != "" }
func (r *LWWRegister[T]) Clone() *LWWRegister[T] { c := *r; return &c }

// newer 报告 (ts, writer) 是否严格大于 r 当前的戳
func (r *LWWRegister[T]) newer(ts int64, writer ReplicaID) bool {
	if ts != r.ts {
		return ts > r.ts
	}
	return writer > r.writer
}

func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) {
	if other == nil {
		return
	}
	if r.newer(other.ts, other.writer) {
		r.value, r.ts, r.writer = other.value, other.ts, other.writer
	}
}

type registerJSON[T any] struct {
	Value  T         `json:"value"`
	TS     int64     `json:"ts"`
	Writer ReplicaID `json:"writer"`
}

func (r *LWWRegister[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(registerJSON[T]{Value: r.value, TS: r.ts, Writer: r.writer})
}

func (r *LWWRegister[T]) UnmarshalJSON(data []byte) error {
	var w registerJSON[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.value, r.ts, r.writer = w.Value, w.TS, w.Writer
	return nil
}
