// Package crdt 提供基于状态复制的 CRDT：合并满足交换律、结合律、幂等律，
// 所以任意顺序、重复投递的状态交换都会收敛。
//
// 所有类型都不是并发安全的，同一个值的修改由调用方串行化。
package crdt

// Convergent 是所有类型共享的最小能力集
type Convergent[S any, V any] interface {
	Value() V
	Merge(other S)
}

var (
	_ Convergent[*LWWRegister[string], string]         = (*LWWRegister[string])(nil)
	_ Convergent[*GCounter, uint64]                    = (*GCounter)(nil)
	_ Convergent[*PNCounter, int64]                    = (*PNCounter)(nil)
	_ Convergent[*GSet[string], []string]              = (*GSet[string])(nil)
	_ Convergent[*ORSet[string], []string]             = (*ORSet[string])(nil)
	_ Convergent[*LWWMap[string, int], map[string]int] = (*LWWMap[string, int])(nil)
	_ Convergent[*RGA[rune], []rune]                   = (*RGA[rune])(nil)
)
