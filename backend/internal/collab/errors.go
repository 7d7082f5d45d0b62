package collab

import "errors"

var (
	// 操作基于的文档长度与当前内容不符，调用方需要先 transform 再重试
	ErrStaleOperation        = errors.New("STALE_OPERATION")
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrDocumentNotFound      = errors.New("DOCUMENT_NOT_FOUND")
	ErrFieldNotFound         = errors.New("FIELD_NOT_FOUND")
	ErrStoreNotConfigured    = errors.New("STORE_NOT_CONFIGURED")
	// 消息里的 clientId 与连接建立时的不一致
	ErrClientMismatch = errors.New("CLIENT_ID_MISMATCH")
)
