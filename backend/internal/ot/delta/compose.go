package delta

import "fmt"

// Compose 合并两个连续操作：Apply(Compose(a, b), s) == Apply(b, Apply(a, s))
func Compose(a, b *Operation) (*Operation, error) {
	if a.targetLen != b.baseLen {
		return nil, fmt.Errorf("%w: a.target_len=%d b.base_len=%d", ErrComposeMismatch, a.targetLen, b.baseLen)
	}
	out := New()
	s1, s2 := newStream(a.ops), newStream(b.ops)
	for s1.ok || s2.ok {
		// a 的 delete 与 b 无关，直接保留
		if s1.is(KindDelete) {
			out.Delete(s1.cur.Count)
			s1.next()
			continue
		}
		// b 的 insert 与 a 无关，直接保留
		if s2.is(KindInsert) {
			out.Insert(s2.cur.Text)
			s2.next()
			continue
		}
		if !s1.ok {
			return nil, fmt.Errorf("%w: first operation is too short", ErrComposeMismatch)
		}
		if !s2.ok {
			return nil, fmt.Errorf("%w: first operation is too long", ErrComposeMismatch)
		}

		n := min(s1.cur.Len(), s2.cur.Len())
		switch {
		case s1.is(KindRetain) && s2.is(KindRetain):
			out.Retain(n)
		case s1.is(KindInsert) && s2.is(KindDelete):
			// a 刚插入的文本被 b 删掉，什么都不输出
		case s1.is(KindInsert) && s2.is(KindRetain):
			out.Insert(s1.head(n))
		case s1.is(KindRetain) && s2.is(KindDelete):
			out.Delete(n)
		default:
			panic(fmt.Sprintf("delta: unreachable compose state %v / %v", s1.cur, s2.cur))
		}
		s1.consume(n)
		s2.consume(n)
	}
	return out, nil
}

// ComposeAll 从左到右依次合并
func ComposeAll(ops ...*Operation) (*Operation, error) {
	if len(ops) == 0 {
		return New(), nil
	}
	acc := ops[0].Clone()
	for i, op := range ops[1:] {
		next, err := Compose(acc, op)
		if err != nil {
			return nil, fmt.Errorf("compose step %d: %w", i+1, err)
		}
		acc = next
	}
	return acc, nil
}
