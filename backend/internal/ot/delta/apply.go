package delta

import (
	"fmt"
	"math"
	"strings"
)

// Apply 把 op 应用到 s 上。s 的码点数必须等于 op.BaseLen()。
func Apply(op *Operation, s string) (string, error) {
	src := []rune(s)
	if len(src) != op.baseLen {
		return "", &OutOfBoundsError{Expected: op.baseLen, Actual: len(src)}
	}
	var b strings.Builder
	b.Grow(len(s))
	pos := 0
	for _, c := range op.ops {
		switch c.Kind {
		case KindRetain:
			if pos+c.Count > len(src) {
				return "", fmt.Errorf("%w: retain(%d) past end at %d", ErrInvalidOperation, c.Count, pos)
			}
			b.WriteString(string(src[pos : pos+c.Count]))
			pos += c.Count
		case KindInsert:
			b.WriteString(c.Text)
		case KindDelete:
			if pos+c.Count > len(src) {
				return "", fmt.Errorf("%w: delete(%d) past end at %d", ErrInvalidOperation, c.Count, pos)
			}
			pos += c.Count
		default:
			return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, c.Kind)
		}
	}
	if pos != len(src) {
		return "", fmt.Errorf("%w: consumed %d of %d characters", ErrInvalidOperation, pos, len(src))
	}
	return b.String(), nil
}

func (o *Operation) Apply(s string) (string, error) { return Apply(o, s) }

// Optimize 把手工拼出的组件序列重新规范化（合并相邻同类、去掉零长度组件）。
// 线上解码的操作都经过这里，长度累加溢出 int 的组件直接拒绝。
func Optimize(d Delta) (*Operation, error) {
	op := New()
	for i, c := range d {
		switch c.Kind {
		case KindRetain, KindDelete:
			if c.Count < 0 {
				return nil, fmt.Errorf("%w: component %d has negative count %d", ErrInvalidOperation, i, c.Count)
			}
			if c.Count > math.MaxInt-op.baseLen {
				return nil, fmt.Errorf("%w: component %d overflows base length", ErrInvalidOperation, i)
			}
			if c.Kind == KindRetain && c.Count > math.MaxInt-op.targetLen {
				return nil, fmt.Errorf("%w: component %d overflows target length", ErrInvalidOperation, i)
			}
		case KindInsert:
		default:
			return nil, fmt.Errorf("%w: component %d has unknown kind %q", ErrInvalidOperation, i, c.Kind)
		}
		op.Push(c)
	}
	return op, nil
}

// SplitAt 在源偏移 pos 处把 op 拆成前后两段，
// 满足 Apply(prefix, s[:pos]) + Apply(suffix, s[pos:]) == Apply(op, s)。
// 正好落在 pos 处的 insert 归入 suffix。
func SplitAt(op *Operation, pos int) (prefix, suffix *Operation, err error) {
	if pos < 0 || pos > op.baseLen {
		return nil, nil, &OutOfBoundsError{Expected: op.baseLen, Actual: pos}
	}
	prefix, suffix = New(), New()
	consumed := 0
	for _, c := range op.ops {
		if c.Kind == KindInsert {
			if consumed < pos {
				prefix.Insert(c.Text)
			} else {
				suffix.Insert(c.Text)
			}
			continue
		}
		n := c.Count
		if consumed < pos {
			take := min(n, pos-consumed)
			prefix.Push(Op{Kind: c.Kind, Count: take})
			consumed += take
			n -= take
		}
		if n > 0 {
			suffix.Push(Op{Kind: c.Kind, Count: n})
			consumed += n
		}
	}
	return prefix, suffix, nil
}
