package collab

import (
	"context"
	"time"

	"collabcore/backend/internal/ot/delta"
)

const (
	EventOpApplied   = "OP_APPLIED"
	EventFieldMerged = "FIELD_MERGED"
)

// DocOpEvent 写入 Kafka 的事件，key 为 docId 保证同一文档有序
type DocOpEvent struct {
	EventType    string           `json:"eventType"`
	DocID        string           `json:"docId"`
	OperationID  string           `json:"operationId,omitempty"`
	Revision     uint64           `json:"revision"`
	AuthorID     uint64           `json:"authorId"`
	ClientID     string           `json:"clientId,omitempty"`
	ClientSeq    uint64           `json:"clientSeq,omitempty"` // 针对同一个 clientId 的本地递增序号
	BaseRevision uint64           `json:"baseRevision"`
	Op           *delta.Operation `json:"op,omitempty"`
	Field        string           `json:"field,omitempty"`
	Label        string           `json:"label,omitempty"`
	AppliedAt    time.Time        `json:"appliedAt"`
}

// EventPublisher Service 只依赖这个接口，KafkaDispatcher 是生产实现
type EventPublisher interface {
	Enqueue(ctx context.Context, evt DocOpEvent) error
}
