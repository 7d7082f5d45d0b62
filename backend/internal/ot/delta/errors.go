package delta

import (
	"errors"
	"fmt"
)

var (
	// 结构错误：组件长度与 base/target 长度不一致，属于编程错误
	ErrInvalidOperation = errors.New("INVALID_OPERATION")
	// apply/invert 的源字符串长度与 baseLen 不一致
	ErrOutOfBounds = errors.New("OUT_OF_BOUNDS")
	// compose 要求 a.targetLen == b.baseLen
	ErrComposeMismatch = errors.New("COMPOSE_LENGTH_MISMATCH")
	// transform 要求两个操作的 baseLen 相同
	ErrTransformMismatch = errors.New("TRANSFORM_LENGTH_MISMATCH")
)

type OutOfBoundsError struct {
	Expected int
	Actual   int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("OUT_OF_BOUNDS: expected length %d, got %d", e.Expected, e.Actual)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }
