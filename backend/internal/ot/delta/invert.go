package delta

import "fmt"

// Invert 根据原始字符串 s（op 应用前的状态）求逆操作：
// Apply(Invert(op, s), Apply(op, s)) == s
func Invert(op *Operation, s string) (*Operation, error) {
	src := []rune(s)
	if len(src) != op.baseLen {
		return nil, &OutOfBoundsError{Expected: op.baseLen, Actual: len(src)}
	}
	inv := New()
	pos := 0
	for _, c := range op.ops {
		switch c.Kind {
		case KindRetain:
			inv.Retain(c.Count)
			pos += c.Count
		case KindInsert:
			inv.Delete(c.Len())
		case KindDelete:
			if pos+c.Count > len(src) {
				return nil, fmt.Errorf("%w: delete(%d) past end at %d", ErrInvalidOperation, c.Count, pos)
			}
			inv.Insert(string(src[pos : pos+c.Count]))
			pos += c.Count
		}
	}
	return inv, nil
}
