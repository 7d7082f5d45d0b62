package crdt

import (
	"maps"

	"github.com/google/uuid"
)

// ReplicaID 参与协作的一端（设备/会话），不会被复用
type ReplicaID string

func NewReplicaID() ReplicaID {
	return ReplicaID(uuid.NewString())
}

// Ordering 两个版本向量之间的因果关系
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "concurrent"
	}
}

// VersionVector replica -> 已观察到的计数，只增不减
type VersionVector map[ReplicaID]uint64

func NewVersionVector() VersionVector { return VersionVector{} }

func (v VersionVector) Get(r ReplicaID) uint64 { return v[r] }

// Increment 自增 r 的计数并返回新值
func (v VersionVector) Increment(r ReplicaID) uint64 {
	v[r]++
	return v[r]
}

// Merge 逐项取最大值
func (v VersionVector) Merge(other VersionVector) {
	for r, n := range other {
		if n > v[r] {
			v[r] = n
		}
	}
}

// Descends 报告 v 是否已经观察到 other 的全部事件
func (v VersionVector) Descends(other VersionVector) bool {
	for r, n := range other {
		if v[r] < n {
			return false
		}
	}
	return true
}

func (v VersionVector) Compare(other VersionVector) Ordering {
	ge, le := v.Descends(other), other.Descends(v)
	switch {
	case ge && le:
		return Equal
	case ge:
		return After
	case le:
		return Before
	default:
		return Concurrent
	}
}

func (v VersionVector) Clone() VersionVector {
	if v == nil {
		return VersionVector{}
	}
	return maps.Clone(v)
}
