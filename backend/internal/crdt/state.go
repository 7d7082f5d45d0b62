package crdt

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindLWWRegister Kind = "lww_register"
	KindGCounter    Kind = "g_counter"
	KindPNCounter   Kind = "pn_counter"
	KindGSet        Kind = "g_set"
	KindORSet       Kind = "or_set"
	KindLWWMap      Kind = "lww_map"
	KindText        Kind = "text"
)

func (k Kind) Valid() bool {
	switch k {
	case KindLWWRegister, KindGCounter, KindPNCounter, KindGSet, KindORSet, KindLWWMap, KindText:
		return true
	}
	return false
}

// State 是文档字段上挂的 CRDT 值，Kind 决定哪个指针有效
type State struct {
	Kind      Kind
	Register  *LWWRegister[string]
	GCounter  *GCounter
	PNCounter *PNCounter
	GSet      *GSet[string]
	ORSet     *ORSet[string]
	Map       *LWWMap[string, string]
	Text      *Text
}

func NewState(kind Kind) (*State, error) {
	s := &State{Kind: kind}
	switch kind {
	case KindLWWRegister:
		s.Register = NewLWWRegister[string]()
	case KindGCounter:
		s.GCounter = NewGCounter()
	case KindPNCounter:
		s.PNCounter = NewPNCounter()
	case KindGSet:
		s.GSet = NewGSet[string]()
	case KindORSet:
		s.ORSet = NewORSet[string]()
	case KindLWWMap:
		s.Map = NewLWWMap[string, string]()
	case KindText:
		s.Text = NewText()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return s, nil
}

// Merge 把 other 并入 s；两者类型必须相同
func (s *State) Merge(other *State) error {
	if other == nil {
		return nil
	}
	if s.Kind != other.Kind {
		return fmt.Errorf("%w: %s vs %s", ErrKindMismatch, s.Kind, other.Kind)
	}
	switch s.Kind {
	case KindLWWRegister:
		s.Register.Merge(other.Register)
	case KindGCounter:
		s.GCounter.Merge(other.GCounter)
	case KindPNCounter:
		s.PNCounter.Merge(other.PNCounter)
	case KindGSet:
		s.GSet.Merge(other.GSet)
	case KindORSet:
		s.ORSet.Merge(other.ORSet)
	case KindLWWMap:
		s.Map.Merge(other.Map)
	case KindText:
		s.Text.Merge(other.Text)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return nil
}

// Value 返回面向用户的值
func (s *State) Value() any {
	switch s.Kind {
	case KindLWWRegister:
		return s.Register.Value()
	case KindGCounter:
		return s.GCounter.Value()
	case KindPNCounter:
		return s.PNCounter.Value()
	case KindGSet:
		return s.GSet.Value()
	case KindORSet:
		return s.ORSet.Value()
	case KindLWWMap:
		return s.Map.Value()
	case KindText:
		return s.Text.String()
	}
	return nil
}

func (s *State) Clone() *State {
	c := &State{Kind: s.Kind}
	switch s.Kind {
	case KindLWWRegister:
		c.Register = s.Register.Clone()
	case KindGCounter:
		c.GCounter = s.GCounter.Clone()
	case KindPNCounter:
		c.PNCounter = s.PNCounter.Clone()
	case KindGSet:
		c.GSet = s.GSet.Clone()
	case KindORSet:
		c.ORSet = s.ORSet.Clone()
	case KindLWWMap:
		c.Map = s.Map.Clone()
	case KindText:
		c.Text = s.Text.Clone()
	}
	return c
}

// payload 当前有效的那个变体
func (s *State) payload() any {
	switch s.Kind {
	case KindLWWRegister:
		return s.Register
	case KindGCounter:
		return s.GCounter
	case KindPNCounter:
		return s.PNCounter
	case KindGSet:
		return s.GSet
	case KindORSet:
		return s.ORSet
	case KindLWWMap:
		return s.Map
	case KindText:
		return s.Text
	}
	return nil
}

type stateJSON struct {
	Kind  Kind            `json:"kind"`
	State json.RawMessage `json:"state"`
}

// 线上格式：{"kind":"g_counter","state":{"r1":5,"r2":10}}
func (s *State) MarshalJSON() ([]byte, error) {
	p := s.payload()
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateJSON{Kind: s.Kind, State: raw})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var w stateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fresh, err := NewState(w.Kind)
	if err != nil {
		return err
	}
	if len(w.State) > 0 && string(w.State) != "null" {
		if err := json.Unmarshal(w.State, fresh.payload()); err != nil {
			return fmt.Errorf("decode %s state: %w", w.Kind, err)
		}
	}
	*s = *fresh
	return nil
}
