package delta

import "fmt"

// TieBreak 决定两个操作在同一位置插入时谁在前：返回 true 表示 a 的插入在前。
// 同一对操作正反两个方向必须给出相反的结论（文本相同时结果一致，可以都返回 true）。
type TieBreak func(aText, bText string) bool

// PreferLeft 第一个参数优先，只在一次调用里同时求 a'、b' 时使用
func PreferLeft(aText, bText string) bool { return true }

// ByContent 码点序较小的插入在前，与参数顺序无关
func ByContent(aText, bText string) bool { return aText <= bText }

// ByRank 按副本 ID 排序，ID 较小者优先；ID 相同退回 ByContent
func ByRank(aRank, bRank string) TieBreak {
	return func(aText, bText string) bool {
		if aRank != bRank {
			return aRank < bRank
		}
		return ByContent(aText, bText)
	}
}

// TransformWith 求 OT 菱形的下面两条边：
// Apply(aPrime, Apply(b, s)) == Apply(bPrime, Apply(a, s))
func TransformWith(a, b *Operation, aFirst TieBreak) (aPrime, bPrime *Operation, err error) {
	if a.baseLen != b.baseLen {
		return nil, nil, fmt.Errorf("%w: %d vs %d", ErrTransformMismatch, a.baseLen, b.baseLen)
	}
	aPrime, bPrime = New(), New()
	s1, s2 := newStream(a.ops), newStream(b.ops)
	for s1.ok || s2.ok {
		ins1, ins2 := s1.is(KindInsert), s2.is(KindInsert)
		if ins1 && (!ins2 || aFirst(s1.cur.Text, s2.cur.Text)) {
			aPrime.Insert(s1.cur.Text)
			bPrime.Retain(s1.cur.Len())
			s1.next()
			continue
		}
		if ins2 {
			aPrime.Retain(s2.cur.Len())
			bPrime.Insert(s2.cur.Text)
			s2.next()
			continue
		}
		if !s1.ok || !s2.ok {
			return nil, nil, fmt.Errorf("%w: operations cover different lengths", ErrTransformMismatch)
		}

		n := min(s1.cur.Count, s2.cur.Count)
		switch {
		case s1.is(KindRetain) && s2.is(KindRetain):
			aPrime.Retain(n)
			bPrime.Retain(n)
		case s1.is(KindDelete) && s2.is(KindDelete):
			// 两边删了同一段，都不用再删
		case s1.is(KindDelete) && s2.is(KindRetain):
			aPrime.Delete(n)
		case s1.is(KindRetain) && s2.is(KindDelete):
			bPrime.Delete(n)
		}
		s1.consume(n)
		s2.consume(n)
	}
	return aPrime, bPrime, nil
}

// TransformPair 一次求出 (a', b')，同位置插入时 a 在前
func TransformPair(a, b *Operation) (*Operation, *Operation, error) {
	return TransformWith(a, b, PreferLeft)
}

// Transform 返回 a'，使得 Apply(a', Apply(b, s)) == Apply(Transform(b, a), Apply(a, s))。
// 同位置插入按文本排序，分两次调用也能收敛。
func Transform(a, b *Operation) (*Operation, error) {
	aPrime, _, err := TransformWith(a, b, ByContent)
	return aPrime, err
}
