package presence

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/ot/delta"
)

var (
	ErrUnknownUser  = errors.New("PRESENCE_UNKNOWN_USER")
	ErrInvalidRange = errors.New("PRESENCE_INVALID_RANGE")
)

type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// normalize 保证 Start <= End
func (s Selection) normalize() Selection {
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	return s
}

type UserPresence struct {
	UserID      uint64         `json:"userId"`
	Replica     crdt.ReplicaID `json:"replica"`
	DisplayName string         `json:"displayName"`
	Color       string         `json:"color,omitempty"`
	Cursor      *int           `json:"cursor,omitempty"`
	Selection   *Selection     `json:"selection,omitempty"`
}

func (p UserPresence) clone() UserPresence {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	if p.Selection != nil {
		s := *p.Selection
		p.Selection = &s
	}
	return p
}

// TransformOffset 把应用 op 之前的偏移映射到应用之后：
// 光标之前（含光标位置）的插入右移光标，之前的删除减去重叠部分，
// 落在删除区间内的光标收缩到区间起点。
func TransformOffset(op *delta.Operation, offset int) int {
	out := offset
	pos := 0
	for _, c := range op.Components() {
		if pos > offset {
			break
		}
		switch c.Kind {
		case delta.KindRetain:
			pos += c.Count
		case delta.KindInsert:
			out += c.Len()
		case delta.KindDelete:
			if end := pos + c.Count; offset >= end {
				out -= c.Count
			} else {
				out -= offset - pos
			}
			pos += c.Count
		}
	}
	return max(out, 0)
}

// Tracker 按用户 id 保存在线用户的光标和选区。不是并发安全的，
// 由持有它的 Session 串行访问。
type Tracker struct {
	users map[uint64]*UserPresence
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[uint64]*UserPresence)}
}

// Add 加入或替换用户
func (t *Tracker) Add(p UserPresence) error {
	if err := validate(p); err != nil {
		return err
	}
	cp := p.clone()
	if cp.Selection != nil {
		s := cp.Selection.normalize()
		cp.Selection = &s
	}
	t.users[p.UserID] = &cp
	return nil
}

func validate(p UserPresence) error {
	if p.Cursor != nil && *p.Cursor < 0 {
		return fmt.Errorf("%w: cursor %d", ErrInvalidRange, *p.Cursor)
	}
	if p.Selection != nil && (p.Selection.Start < 0 || p.Selection.End < 0) {
		return fmt.Errorf("%w: selection [%d,%d]", ErrInvalidRange, p.Selection.Start, p.Selection.End)
	}
	return nil
}

// Remove 用户断开；返回用户是否存在
func (t *Tracker) Remove(userID uint64) bool {
	_, ok := t.users[userID]
	delete(t.users, userID)
	return ok
}

func (t *Tracker) Get(userID uint64) (UserPresence, bool) {
	p, ok := t.users[userID]
	if !ok {
		return UserPresence{}, false
	}
	return p.clone(), true
}

func (t *Tracker) SetCursor(userID uint64, offset int) error {
	p, ok := t.users[userID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	}
	if offset < 0 {
		return fmt.Errorf("%w: cursor %d", ErrInvalidRange, offset)
	}
	p.Cursor = &offset
	return nil
}

// SetSelection 设置选区；start == end 时清空选区
func (t *Tracker) SetSelection(userID uint64, start, end int) error {
	p, ok := t.users[userID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	}
	if start < 0 || end < 0 {
		return fmt.Errorf("%w: selection [%d,%d]", ErrInvalidRange, start, end)
	}
	if start == end {
		p.Selection = nil
		return nil
	}
	s := Selection{Start: start, End: end}.normalize()
	p.Selection = &s
	return nil
}

func (t *Tracker) Len() int { return len(t.users) }

// Snapshot 按用户 id 排序的副本
func (t *Tracker) Snapshot() []UserPresence {
	out := make([]UserPresence, 0, len(t.users))
	for _, id := range slices.Sorted(maps.Keys(t.users)) {
		out = append(out, t.users[id].clone())
	}
	return out
}

// TransformAllThroughOp 文档应用 op 之后调用，重映射除 except 之外所有用户的光标和选区。
// 作者自己的光标由客户端随编辑一起上报。
func (t *Tracker) TransformAllThroughOp(op *delta.Operation, except crdt.ReplicaID) {
	if op.IsNoop() {
		return
	}
	for _, p := range t.users {
		if except != "" && p.Replica == except {
			continue
		}
		if p.Cursor != nil {
			c := TransformOffset(op, *p.Cursor)
			p.Cursor = &c
		}
		if p.Selection != nil {
			s := Selection{
				Start: TransformOffset(op, p.Selection.Start),
				End:   TransformOffset(op, p.Selection.End),
			}.normalize()
			p.Selection = &s
		}
	}
}
