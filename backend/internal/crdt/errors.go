package crdt

import "errors"

var (
	ErrKindMismatch = errors.New("CRDT_KIND_MISMATCH")
	ErrOutOfRange   = errors.New("CRDT_OUT_OF_RANGE")
	ErrUnknownKind  = errors.New("CRDT_UNKNOWN_KIND")
)
