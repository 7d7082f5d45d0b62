package delta

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Op 是操作的单个组件
type Op struct {
	Kind  Kind   `json:"kind"`            // "retain" / "insert" / "delete"
	Count int    `json:"count,omitempty"` // retain/delete 的长度（按码点计）
	Text  string `json:"text,omitempty"`  // insert 的文本
}

func RetainOp(n int) Op     { return Op{Kind: KindRetain, Count: n} }
func InsertOp(s string) Op  { return Op{Kind: KindInsert, Text: s} }
func DeleteOp(n int) Op     { return Op{Kind: KindDelete, Count: n} }
func (o Op) IsRetain() bool { return o.Kind == KindRetain }
func (o Op) IsInsert() bool { return o.Kind == KindInsert }
func (o Op) IsDelete() bool { return o.Kind == KindDelete }

// Len 返回组件长度：retain/delete 为 Count，insert 为文本的码点数
func (o Op) Len() int {
	if o.Kind == KindInsert {
		return utf8.RuneCountInString(o.Text)
	}
	return o.Count
}

func (o Op) String() string {
	switch o.Kind {
	case KindInsert:
		return "insert(" + strconv.Quote(o.Text) + ")"
	default:
		return string(o.Kind) + "(" + strconv.Itoa(o.Count) + ")"
	}
}

// Delta 组件序列，同时也是线上传输的 components 字段
// "components":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]
type Delta []Op

// Operation 是规范形式的组件序列，附带 baseLen / targetLen。
// 通过 Retain / Insert / Delete 逐步构建，相邻同类组件自动合并；
// 相邻的 insert 与 delete 统一为 insert 在前。
type Operation struct {
	ops       Delta
	baseLen   int
	targetLen int
}

func New() *Operation {
	return &Operation{}
}

// BaseLen 可应用的源字符串长度
func (o *Operation) BaseLen() int { return o.baseLen }

// TargetLen 应用后得到的字符串长度
func (o *Operation) TargetLen() int { return o.targetLen }

// Components 返回组件的副本
func (o *Operation) Components() Delta { return slices.Clone(o.ops) }

func (o *Operation) Retain(n int) *Operation {
	if n <= 0 {
		return o
	}
	o.baseLen += n
	o.targetLen += n
	if last := len(o.ops) - 1; last >= 0 && o.ops[last].Kind == KindRetain {
		o.ops[last].Count += n
		return o
	}
	o.ops = append(o.ops, RetainOp(n))
	return o
}

func (o *Operation) Insert(s string) *Operation {
	if s == "" {
		return o
	}
	o.targetLen += utf8.RuneCountInString(s)
	last := len(o.ops) - 1
	switch {
	case last >= 0 && o.ops[last].Kind == KindInsert:
		o.ops[last].Text += s
	case last >= 0 && o.ops[last].Kind == KindDelete:
		// insert/delete 顺序不影响结果，规范形式里 insert 总在 delete 前面
		if last > 0 && o.ops[last-1].Kind == KindInsert {
			o.ops[last-1].Text += s
		} else {
			o.ops = slices.Insert(o.ops, last, InsertOp(s))
		}
	default:
		o.ops = append(o.ops, InsertOp(s))
	}
	return o
}

func (o *Operation) Delete(n int) *Operation {
	if n <= 0 {
		return o
	}
	o.baseLen += n
	if last := len(o.ops) - 1; last >= 0 && o.ops[last].Kind == KindDelete {
		o.ops[last].Count += n
		return o
	}
	o.ops = append(o.ops, DeleteOp(n))
	return o
}

// Push 按组件类型追加；未知类型直接忽略，校验交给 Optimize
func (o *Operation) Push(c Op) *Operation {
	switch c.Kind {
	case KindRetain:
		return o.Retain(c.Count)
	case KindInsert:
		return o.Insert(c.Text)
	case KindDelete:
		return o.Delete(c.Count)
	}
	return o
}

// IsNoop 空操作或者只有一个完整的 retain
func (o *Operation) IsNoop() bool {
	return len(o.ops) == 0 || (len(o.ops) == 1 && o.ops[0].Kind == KindRetain)
}

func (o *Operation) Equal(other *Operation) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.baseLen == other.baseLen && o.targetLen == other.targetLen && slices.Equal(o.ops, other.ops)
}

func (o *Operation) Clone() *Operation {
	return &Operation{ops: slices.Clone(o.ops), baseLen: o.baseLen, targetLen: o.targetLen}
}

func (o *Operation) String() string {
	parts := make([]string, len(o.ops))
	for i, c := range o.ops {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
