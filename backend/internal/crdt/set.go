package crdt

import (
	"cmp"
	"encoding/json"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// GSet 只增集合，合并即并集
type GSet[T cmp.Ordered] struct {
	items mapset.Set[T]
}

func NewGSet[T cmp.Ordered]() *GSet[T] {
	return &GSet[T]{items: mapset.NewThreadUnsafeSet[T]()}
}

func (s *GSet[T]) Add(v T)           { s.items.Add(v) }
func (s *GSet[T]) Contains(v T) bool { return s.items.Contains(v) }
func (s *GSet[T]) Len() int          { return s.items.Cardinality() }

// Elements 有序返回全部元素
func (s *GSet[T]) Elements() []T {
	out := s.items.ToSlice()
	slices.Sort(out)
	return out
}

func (s *GSet[T]) Value() []T { return s.Elements() }

func (s *GSet[T]) Merge(other *GSet[T]) {
	if other == nil {
		return
	}
	s.items = s.items.Union(other.items)
}

func (s *GSet[T]) Clone() *GSet[T] {
	return &GSet[T]{items: s.items.Clone()}
}

func (s *GSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Elements())
}

func (s *GSet[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.items = mapset.NewThreadUnsafeSet(items...)
	return nil
}

// ORSet observed-remove set：每次 Add 带一个新 tag，Remove 只把当前
// 能看到的 tag 记为墓碑，未观察到的并发 Add 在合并后依然存在。
type ORSet[T cmp.Ordered] struct {
	adds       map[T]mapset.Set[string]
	tombstones mapset.Set[string]
}

func NewORSet[T cmp.Ordered]() *ORSet[T] {
	return &ORSet[T]{
		adds:       make(map[T]mapset.Set[string]),
		tombstones: mapset.NewThreadUnsafeSet[string](),
	}
}

// Add 返回本次添加使用的 tag
func (s *ORSet[T]) Add(v T) string {
	tag := uuid.NewString()
	s.AddWithTag(v, tag)
	return tag
}

func (s *ORSet[T]) AddWithTag(v T, tag string) {
	tags, ok := s.adds[v]
	if !ok {
		tags = mapset.NewThreadUnsafeSet[string]()
		s.adds[v] = tags
	}
	tags.Add(tag)
}

// Remove 把 v 当前所有的 tag 记为墓碑；v 不存在时返回 false
func (s *ORSet[T]) Remove(v T) bool {
	live := s.liveTags(v)
	if live.Cardinality() == 0 {
		return false
	}
	s.tombstones = s.tombstones.Union(live)
	return true
}

func (s *ORSet[T]) liveTags(v T) mapset.Set[string] {
	tags, ok := s.adds[v]
	if !ok {
		return mapset.NewThreadUnsafeSet[string]()
	}
	return tags.Difference(s.tombstones)
}

func (s *ORSet[T]) Contains(v T) bool {
	return s.liveTags(v).Cardinality() > 0
}

func (s *ORSet[T]) Elements() []T {
	out := make([]T, 0, len(s.adds))
	for v := range s.adds {
		if s.Contains(v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func (s *ORSet[T]) Value() []T { return s.Elements() }
func (s *ORSet[T]) Len() int   { return len(s.Elements()) }

func (s *ORSet[T]) Merge(other *ORSet[T]) {
	if other == nil {
		return
	}
	for v, tags := range other.adds {
		if mine, ok := s.adds[v]; ok {
			s.adds[v] = mine.Union(tags)
		} else {
			s.adds[v] = tags.Clone()
		}
	}
	s.tombstones = s.tombstones.Union(other.tombstones)
}

func (s *ORSet[T]) Clone() *ORSet[T] {
	c := &ORSet[T]{adds: make(map[T]mapset.Set[string], len(s.adds)), tombstones: s.tombstones.Clone()}
	for v, tags := range s.adds {
		c.adds[v] = tags.Clone()
	}
	return c
}

type orEntryJSON[T any] struct {
	Value T        `json:"value"`
	Tags  []string `json:"tags"`
}

type orSetJSON[T any] struct {
	Adds       []orEntryJSON[T] `json:"adds"`
	Tombstones []string         `json:"tombstones"`
}

func sortedTags(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// 墓碑和全部 tag 都要序列化，否则反序列化后的合并会复活已删除的元素
func (s *ORSet[T]) MarshalJSON() ([]byte, error) {
	w := orSetJSON[T]{Adds: make([]orEntryJSON[T], 0, len(s.adds)), Tombstones: sortedTags(s.tombstones)}
	for v, tags := range s.adds {
		w.Adds = append(w.Adds, orEntryJSON[T]{Value: v, Tags: sortedTags(tags)})
	}
	slices.SortFunc(w.Adds, func(a, b orEntryJSON[T]) int { return cmp.Compare(a.Value, b.Value) })
	return json.Marshal(w)
}

func (s *ORSet[T]) UnmarshalJSON(data []byte) error {
	var w orSetJSON[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fresh := NewORSet[T]()
	for _, e := range w.Adds {
		for _, tag := range e.Tags {
			fresh.AddWithTag(e.Value, tag)
		}
	}
	fresh.tombstones = mapset.NewThreadUnsafeSet(w.Tombstones...)
	*s = *fresh
	return nil
}
