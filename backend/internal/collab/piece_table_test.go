package collab

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"collabcore/backend/internal/ot/delta"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != 11 {
		t.Fatalf("Len() = %d, want %d", gotLen, 11)
	}
	if empty := NewPieceTable(""); empty.Len() != 0 || empty.Pieces() != 0 {
		t.Fatalf("empty table has %d pieces", empty.Pieces())
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")
	// 跳过 "Hello"，在 pos=5 插入
	if err := pt.Apply(delta.New().Retain(5).Insert(" collaborative").Retain(6)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if pt.Pieces() != 3 {
		t.Fatalf("Pieces() = %d, want 3", pt.Pieces())
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")
	// 保留 "Hello"，删 " collaborative"
	if err := pt.Apply(delta.New().Retain(5).Delete(14).Retain(6)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if pt.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", pt.Len())
	}
}

func TestPieceTable_TypingCoalesces(t *testing.T) {
	pt := NewPieceTable("")
	for i, ch := range []string{"a", "b", "c"} {
		if err := pt.Apply(delta.New().Retain(i).Insert(ch)); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if pt.String() != "abc" || pt.Pieces() != 1 {
		t.Fatalf("String() = %q with %d pieces, want \"abc\" in 1 piece", pt.String(), pt.Pieces())
	}
}

func TestPieceTable_LengthMismatch(t *testing.T) {
	pt := NewPieceTable("abc")
	err := pt.Apply(delta.New().Retain(5))
	if !errors.Is(err, delta.ErrOutOfBounds) {
		t.Fatalf("Apply() error = %v, want ErrOutOfBounds", err)
	}
	if pt.String() != "abc" {
		t.Fatalf("failed Apply() modified content: %q", pt.String())
	}
}

func TestPieceTable_RejectsOverflowingCounts(t *testing.T) {
	pt := NewPieceTable("a")
	// 构造器不检查溢出：MaxInt+MaxInt+3 回绕成 1
	op := delta.New().Retain(math.MaxInt).Delete(math.MaxInt).Retain(3)
	if op.BaseLen() != 1 {
		t.Fatalf("BaseLen() = %d, want wrapped 1", op.BaseLen())
	}
	if err := pt.Apply(op); !errors.Is(err, delta.ErrInvalidOperation) {
		t.Fatalf("Apply() error = %v, want ErrInvalidOperation", err)
	}
	if got := pt.String(); got != "a" || pt.Len() != 1 {
		t.Fatalf("failed Apply() modified content: %q len=%d", got, pt.Len())
	}
	if err := pt.Apply(delta.New().Retain(1).Insert("b")); err != nil {
		t.Fatalf("Apply() after rejection error = %v", err)
	}
	if got := pt.String(); got != "ab" {
		t.Fatalf("String() = %q, want %q", got, "ab")
	}
}

// 与 delta.Apply 对照
func TestPieceTable_MatchesApply(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	pt := NewPieceTable("héllo wörld")
	want := pt.String()
	for i := 0; i < 2000; i++ {
		n := len([]rune(want))
		op := delta.New()
		pos := r.Intn(n + 1)
		op.Retain(pos)
		switch r.Intn(3) {
		case 0:
			op.Insert([]string{"x", "xé"}[r.Intn(2)])
			op.Retain(n - pos)
		default:
			del := r.Intn(n - pos + 1)
			op.Delete(del)
			op.Insert("世")
			op.Retain(n - pos - del)
		}
		next, err := delta.Apply(op, want)
		if err != nil {
			t.Fatalf("round %d: delta.Apply() error = %v", i, err)
		}
		if err := pt.Apply(op); err != nil {
			t.Fatalf("round %d: PieceTable.Apply() error = %v", i, err)
		}
		want = next
		if got := pt.String(); got != want {
			t.Fatalf("round %d: String() = %q, want %q", i, got, want)
		}
	}
	pt.Compact()
	if pt.String() != want || pt.Pieces() > 1 {
		t.Fatalf("Compact() changed content or left %d pieces", pt.Pieces())
	}
}
