package crdt

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// ID 元素的全局唯一标识：(Lamport 序号, replica)
type ID struct {
	Replica ReplicaID `json:"replica"`
	Seq     uint64    `json:"seq"`
}

// 根节点，不对应任何元素
var rootID = ID{}

func (id ID) IsRoot() bool { return id == rootID }

// Compare 全序：先比序号，再比 replica
func (id ID) Compare(other ID) int {
	if c := cmp.Compare(id.Seq, other.Seq); c != 0 {
		return c
	}
	return cmp.Compare(id.Replica, other.Replica)
}

type rgaElement[T any] struct {
	id      ID
	parent  ID
	value   T
	deleted bool
}

// RGA replicated growable array。
// 每个元素挂在插入时的前驱 (parent) 下面；同一个 parent 的子节点按 ID 降序，
// 深度优先遍历得到可见顺序。删除只打墓碑，后续锚定在它上面的插入仍然有效。
type RGA[T any] struct {
	elems    map[ID]*rgaElement[T]
	children map[ID][]ID
	clock    uint64
}

func NewRGA[T any]() *RGA[T] {
	return &RGA[T]{
		elems:    make(map[ID]*rgaElement[T]),
		children: make(map[ID][]ID),
	}
}

// attach 把元素挂到 parent 下，保持子节点 ID 降序；已存在则只合并墓碑
func (r *RGA[T]) attach(e rgaElement[T]) {
	if cur, ok := r.elems[e.id]; ok {
		cur.deleted = cur.deleted || e.deleted
		return
	}
	el := e
	r.elems[e.id] = &el
	kids := r.children[e.parent]
	i, _ := slices.BinarySearchFunc(kids, e.id, func(a, b ID) int { return b.Compare(a) })
	r.children[e.parent] = slices.Insert(kids, i, e.id)
	if e.id.Seq > r.clock {
		r.clock = e.id.Seq
	}
}

// walk 按文档顺序遍历所有元素（包括墓碑），fn 返回 false 时停止
func (r *RGA[T]) walk(fn func(e *rgaElement[T]) bool) {
	stack := make([]ID, 0, len(r.elems))
	push := func(parent ID) {
		kids := r.children[parent]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	push(rootID)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(r.elems[id]) {
			return
		}
		push(id)
	}
}

// visible 返回可见元素，按文档顺序
func (r *RGA[T]) visible() []*rgaElement[T] {
	out := make([]*rgaElement[T], 0, len(r.elems))
	r.walk(func(e *rgaElement[T]) bool {
		if !e.deleted {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Insert 在可见偏移 offset 处插入 values，返回新元素的 ID
func (r *RGA[T]) Insert(by ReplicaID, offset int, values ...T) ([]ID, error) {
	vis := r.visible()
	if offset < 0 || offset > len(vis) {
		return nil, fmt.Errorf("%w: insert at %d, length %d", ErrOutOfRange, offset, len(vis))
	}
	prev := rootID
	if offset > 0 {
		prev = vis[offset-1].id
	}
	ids := make([]ID, 0, len(values))
	for _, v := range values {
		r.clock++
		id := ID{Replica: by, Seq: r.clock}
		r.attach(rgaElement[T]{id: id, parent: prev, value: v})
		ids = append(ids, id)
		prev = id
	}
	return ids, nil
}

// DeleteRange 给 [offset, offset+n) 的可见元素打墓碑
func (r *RGA[T]) DeleteRange(offset, n int) error {
	vis := r.visible()
	if offset < 0 || n < 0 || offset+n > len(vis) {
		return fmt.Errorf("%w: delete [%d,%d), length %d", ErrOutOfRange, offset, offset+n, len(vis))
	}
	for _, e := range vis[offset : offset+n] {
		e.deleted = true
	}
	return nil
}

func (r *RGA[T]) Values() []T {
	vis := r.visible()
	out := make([]T, len(vis))
	for i, e := range vis {
		out[i] = e.value
	}
	return out
}

func (r *RGA[T]) Value() []T { return r.Values() }

func (r *RGA[T]) Len() int { return len(r.visible()) }

// Merge 元素取并集，墓碑取或
func (r *RGA[T]) Merge(other *RGA[T]) {
	if other == nil {
		return
	}
	for _, e := range other.elems {
		r.attach(*e)
	}
	if other.clock > r.clock {
		r.clock = other.clock
	}
}

func (r *RGA[T]) Clone() *RGA[T] {
	c := NewRGA[T]()
	c.Merge(r)
	return c
}

type rgaElementJSON[T any] struct {
	ID      ID   `json:"id"`
	Parent  ID   `json:"parent"`
	Value   T    `json:"value"`
	Deleted bool `json:"deleted,omitempty"`
}

type rgaJSON[T any] struct {
	Clock    uint64              `json:"clock"`
	Elements []rgaElementJSON[T] `json:"elements"`
}

func (r *RGA[T]) MarshalJSON() ([]byte, error) {
	w := rgaJSON[T]{Clock: r.clock, Elements: make([]rgaElementJSON[T], 0, len(r.elems))}
	for _, e := range r.elems {
		w.Elements = append(w.Elements, rgaElementJSON[T]{ID: e.id, Parent: e.parent, Value: e.value, Deleted: e.deleted})
	}
	slices.SortFunc(w.Elements, func(a, b rgaElementJSON[T]) int { return a.ID.Compare(b.ID) })
	return json.Marshal(w)
}

func (r *RGA[T]) UnmarshalJSON(data []byte) error {
	var w rgaJSON[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fresh := NewRGA[T]()
	for _, e := range w.Elements {
		if e.ID.IsRoot() {
			return fmt.Errorf("%w: element with root id", ErrOutOfRange)
		}
		fresh.attach(rgaElement[T]{id: e.ID, parent: e.Parent, value: e.Value, deleted: e.Deleted})
	}
	if w.Clock > fresh.clock {
		fresh.clock = w.Clock
	}
	*r = *fresh
	return nil
}

// Text 字符级 RGA
type Text struct {
	RGA[rune]
}

func NewText() *Text {
	return &Text{RGA: *NewRGA[rune]()}
}

func (t *Text) InsertString(by ReplicaID, offset int, s string) error {
	_, err := t.Insert(by, offset, []rune(s)...)
	return err
}

func (t *Text) String() string { return string(t.Values()) }

func (t *Text) Merge(other *Text) {
	if other == nil {
		return
	}
	t.RGA.Merge(&other.RGA)
}

func (t *Text) Clone() *Text {
	return &Text{RGA: *t.RGA.Clone()}
}
