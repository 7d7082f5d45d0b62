// Package errcode 把各层的哨兵错误映射成对外的错误码和 HTTP 状态码，ws 和 httpapi 共用
package errcode

import (
	"context"
	"errors"
	"net/http"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/conflict"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/history"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
	"collabcore/backend/internal/store"
)

const (
	CodeInternal        = "INTERNAL"
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeTimeout         = "TIMEOUT"
)

type mapping struct {
	err    error
	status int
}

// 顺序有意义：先匹配更具体的错误
var table = []mapping{
	{collab.ErrDocumentNotFound, http.StatusNotFound},
	{collab.ErrFieldNotFound, http.StatusNotFound},
	{presence.ErrUnknownUser, http.StatusNotFound},
	{history.ErrVersionOutOfRange, http.StatusNotFound},

	{collab.ErrStaleOperation, http.StatusConflict},
	{collab.ErrRevisionConflict, http.StatusConflict},
	{collab.ErrDuplicateOrOutOfOrder, http.StatusConflict},
	{collab.ErrClientMismatch, http.StatusConflict},
	{store.ErrTitleTaken, http.StatusConflict},

	{delta.ErrInvalidOperation, http.StatusUnprocessableEntity},
	{delta.ErrOutOfBounds, http.StatusUnprocessableEntity},
	{delta.ErrComposeMismatch, http.StatusUnprocessableEntity},
	{delta.ErrTransformMismatch, http.StatusUnprocessableEntity},
	{crdt.ErrKindMismatch, http.StatusUnprocessableEntity},
	{crdt.ErrOutOfRange, http.StatusUnprocessableEntity},
	{crdt.ErrUnknownKind, http.StatusUnprocessableEntity},
	{presence.ErrInvalidRange, http.StatusUnprocessableEntity},
	{conflict.ErrNoStrategy, http.StatusUnprocessableEntity},

	{collab.ErrSemaphoreTimeout, http.StatusServiceUnavailable},
	{collab.ErrStoreNotConfigured, http.StatusNotImplemented},
}

func lookup(err error) (mapping, bool) {
	for _, m := range table {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return mapping{}, false
}

// Code 返回错误码；哨兵错误的 Error() 本身就是错误码
func Code(err error) string {
	if err == nil {
		return ""
	}
	if m, ok := lookup(err); ok {
		return m.err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if m, ok := lookup(err); ok {
		return m.status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
