package crdt

import (
	"cmp"
	"encoding/json"
	"slices"
)

// LWWMap 每个 key 一个 LWWRegister，合并时 key 取并集
type LWWMap[K cmp.Ordered, V any] struct {
	entries map[K]*LWWRegister[V]
}

func NewLWWMap[K cmp.Ordered, V any]() *LWWMap[K, V] {
	return &LWWMap[K, V]{entries: make(map[K]*LWWRegister[V])}
}

func (m *LWWMap[K, V]) register(k K) *LWWRegister[V] {
	reg, ok := m.entries[k]
	if !ok {
		reg = NewLWWRegister[V]()
		m.entries[k] = reg
	}
	return reg
}

func (m *LWWMap[K, V]) Set(k K, v V, by ReplicaID) { m.register(k).Set(v, by) }

func (m *LWWMap[K, V]) SetAt(k K, v V, ts int64, by ReplicaID) {
	reg := m.register(k)
	if reg.newer(ts, by) {
		reg.SetAt(v, ts, by)
	}
}

func (m *LWWMap[K, V]) Get(k K) (V, bool) {
	reg, ok := m.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	return reg.Value(), true
}

func (m *LWWMap[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (m *LWWMap[K, V]) Len() int { return len(m.entries) }

func (m *LWWMap[K, V]) Value() map[K]V {
	out := make(map[K]V, len(m.entries))
	for k, reg := range m.entries {
		out[k] = reg.Value()
	}
	return out
}

func (m *LWWMap[K, V]) Merge(other *LWWMap[K, V]) {
	if other == nil {
		return
	}
	for k, reg := range other.entries {
		m.register(k).Merge(reg)
	}
}

func (m *LWWMap[K, V]) Clone() *LWWMap[K, V] {
	c := &LWWMap[K, V]{entries: make(map[K]*LWWRegister[V], len(m.entries))}
	for k, reg := range m.entries {
		c.entries[k] = reg.Clone()
	}
	return c
}

type lwwEntryJSON[K any, V any] struct {
	Key    K         `json:"key"`
	Value  V         `json:"value"`
	TS     int64     `json:"ts"`
	Writer ReplicaID `json:"writer"`
}

// key 不一定是字符串，用有序的条目数组而不是 JSON object
func (m *LWWMap[K, V]) MarshalJSON() ([]byte, error) {
	out := make([]lwwEntryJSON[K, V], 0, len(m.entries))
	for _, k := range m.Keys() {
		reg := m.entries[k]
		out = append(out, lwwEntryJSON[K, V]{Key: k, Value: reg.value, TS: reg.ts, Writer: reg.writer})
	}
	return json.Marshal(out)
}

func (m *LWWMap[K, V]) UnmarshalJSON(data []byte) error {
	var in []lwwEntryJSON[K, V]
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fresh := NewLWWMap[K, V]()
	for _, e := range in {
		fresh.SetAt(e.Key, e.Value, e.TS, e.Writer)
	}
	*m = *fresh
	return nil
}
