package delta

import (
	"math/rand"
	"testing"
	"unicode/utf8"
)

var alphabet = []rune("abcdefgh éü世界")

func randomString(r *rand.Rand, n int) string {
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func randomOperation(r *rand.Rand, s string) *Operation {
	op := New()
	left := utf8.RuneCountInString(s)
	for left > 0 {
		n := 1 + r.Intn(min(left, 8))
		switch r.Intn(3) {
		case 0:
			op.Insert(randomString(r, 1+r.Intn(4)))
		case 1:
			op.Retain(n)
			left -= n
		default:
			op.Delete(n)
			left -= n
		}
	}
	if r.Intn(2) == 0 {
		op.Insert(randomString(r, 1+r.Intn(4)))
	}
	return op
}

const propertyRounds = 500

func TestProperty_ApplyLengths(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < propertyRounds; i++ {
		s := randomString(r, r.Intn(30))
		op := randomOperation(r, s)
		out, err := Apply(op, s)
		if err != nil {
			t.Fatalf("round %d: Apply() error = %v", i, err)
		}
		if got := utf8.RuneCountInString(out); got != op.TargetLen() {
			t.Fatalf("round %d: len(Apply()) = %d, want %d", i, got, op.TargetLen())
		}
	}
}

func TestProperty_Compose(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < propertyRounds; i++ {
		s := randomString(r, r.Intn(30))
		a := randomOperation(r, s)
		afterA := mustApply(t, a, s)
		b := randomOperation(r, afterA)
		c, err := Compose(a, b)
		if err != nil {
			t.Fatalf("round %d: Compose() error = %v", i, err)
		}
		if got, want := mustApply(t, c, s), mustApply(t, b, afterA); got != want {
			t.Fatalf("round %d: Compose(%v, %v) on %q = %q, want %q", i, a, b, s, got, want)
		}
	}
}

func TestProperty_TransformConverges(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < propertyRounds; i++ {
		s := randomString(r, r.Intn(30))
		a := randomOperation(r, s)
		b := randomOperation(r, s)

		// 单次调用求两边
		ap, bp, err := TransformPair(a, b)
		if err != nil {
			t.Fatalf("round %d: TransformPair() error = %v", i, err)
		}
		left := mustApply(t, ap, mustApply(t, b, s))
		right := mustApply(t, bp, mustApply(t, a, s))
		if left != right {
			t.Fatalf("round %d: TransformPair diverged on %q: %q vs %q", i, s, left, right)
		}

		// 分两次调用
		ap, err = Transform(a, b)
		if err != nil {
			t.Fatalf("round %d: Transform() error = %v", i, err)
		}
		bp, err = Transform(b, a)
		if err != nil {
			t.Fatalf("round %d: Transform() error = %v", i, err)
		}
		left = mustApply(t, ap, mustApply(t, b, s))
		right = mustApply(t, bp, mustApply(t, a, s))
		if left != right {
			t.Fatalf("round %d: Transform diverged on %q with a=%v b=%v: %q vs %q", i, s, a, b, left, right)
		}
	}
}

func TestProperty_InvertRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < propertyRounds; i++ {
		s := randomString(r, r.Intn(30))
		op := randomOperation(r, s)
		inv, err := Invert(op, s)
		if err != nil {
			t.Fatalf("round %d: Invert() error = %v", i, err)
		}
		if got := mustApply(t, inv, mustApply(t, op, s)); got != s {
			t.Fatalf("round %d: Apply(Invert()) = %q, want %q", i, got, s)
		}
	}
}
