package collab

import (
	"fmt"
	"slices"
	"strings"

	"collabcore/backend/internal/ot/delta"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

// piece 数超过这个值时把内容压平成一个 original piece
const compactThreshold = 512

type piece struct {
	buf    bufferKind
	offset int
	length int
}

type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
	length   int
}

func NewPieceTable(initial string) *PieceTable {
	pt := &PieceTable{}
	pt.reset([]rune(initial))
	return pt
}

func (pt *PieceTable) reset(content []rune) {
	pt.original = content
	pt.add = nil
	pt.pieces = pt.pieces[:0]
	if len(content) > 0 {
		pt.pieces = append(pt.pieces, piece{buf: bufOriginal, offset: 0, length: len(content)})
	}
	pt.length = len(content)
}

func (pt *PieceTable) Len() int { return pt.length }

func (pt *PieceTable) String() string {
	var b strings.Builder
	for _, p := range pt.pieces {
		b.WriteString(string(pt.runes(p)))
	}
	return b.String()
}

func (pt *PieceTable) runes(p piece) []rune {
	if p.buf == bufOriginal {
		return pt.original[p.offset : p.offset+p.length]
	}
	return pt.add[p.offset : p.offset+p.length]
}

// Apply 按组件顺序修改 piece 列表：
// retain 只移动 pos；insert 在 pos 处插入新 piece；delete 去掉 [pos, pos+n) 覆盖的 piece
func (pt *PieceTable) Apply(op *delta.Operation) error {
	if op.BaseLen() != pt.length {
		return &delta.OutOfBoundsError{Expected: op.BaseLen(), Actual: pt.length}
	}
	comps := op.Components()
	if err := checkComponents(comps, pt.length); err != nil {
		return err
	}
	pos := 0
	for _, c := range comps {
		switch c.Kind {
		case delta.KindRetain:
			pos += c.Count
		case delta.KindInsert:
			pt.insertAt(pos, []rune(c.Text))
			pos += c.Len()
		case delta.KindDelete:
			pt.deleteRange(pos, c.Count)
		}
	}
	if len(pt.pieces) > compactThreshold {
		pt.Compact()
	}
	return nil
}

// checkComponents 在修改 piece 之前逐个检查 retain/delete 不越界，
// 不依赖 baseLen（手工构造的操作 baseLen 可能已经溢出回绕）
func checkComponents(comps delta.Delta, n int) error {
	src := 0
	for i, c := range comps {
		switch c.Kind {
		case delta.KindRetain, delta.KindDelete:
			if c.Count < 0 || c.Count > n-src {
				return fmt.Errorf("%w: component %d %s past end at %d of %d", delta.ErrInvalidOperation, i, c, src, n)
			}
			src += c.Count
		case delta.KindInsert:
		default:
			return fmt.Errorf("%w: component %d has unknown kind %q", delta.ErrInvalidOperation, i, c.Kind)
		}
	}
	if src != n {
		return fmt.Errorf("%w: consumed %d of %d characters", delta.ErrInvalidOperation, src, n)
	}
	return nil
}

// split 保证 pos 处是 piece 边界，返回边界之后第一个 piece 的下标
func (pt *PieceTable) split(pos int) int {
	cur := 0
	for i, p := range pt.pieces {
		if pos == cur {
			return i
		}
		if pos < cur+p.length {
			off := pos - cur
			left := piece{buf: p.buf, offset: p.offset, length: off}
			right := piece{buf: p.buf, offset: p.offset + off, length: p.length - off}
			pt.pieces = slices.Replace(pt.pieces, i, i+1, left, right)
			return i + 1
		}
		cur += p.length
	}
	return len(pt.pieces)
}

func (pt *PieceTable) insertAt(pos int, text []rune) {
	if len(text) == 0 {
		return
	}
	i := pt.split(pos)
	start := len(pt.add)
	pt.add = append(pt.add, text...)
	pt.length += len(text)

	// 连续输入：紧接着上一次追加的 add piece，直接延长
	if i > 0 {
		prev := &pt.pieces[i-1]
		if prev.buf == bufAdd && prev.offset+prev.length == start {
			prev.length += len(text)
			return
		}
	}
	pt.pieces = slices.Insert(pt.pieces, i, piece{buf: bufAdd, offset: start, length: len(text)})
}

func (pt *PieceTable) deleteRange(pos, n int) {
	if n <= 0 {
		return
	}
	i := pt.split(pos)
	j := pt.split(pos + n)
	pt.pieces = slices.Delete(pt.pieces, i, j)
	pt.length -= n
}

// Compact 压平成单个 piece，释放 add 缓冲里已删除的文本
func (pt *PieceTable) Compact() {
	content := make([]rune, 0, pt.length)
	for _, p := range pt.pieces {
		content = append(content, pt.runes(p)...)
	}
	pt.reset(content)
}

// Pieces 当前 piece 数
func (pt *PieceTable) Pieces() int { return len(pt.pieces) }
