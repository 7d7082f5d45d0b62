package ws

import (
	"time"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
)

// 客户端 → 服务端的消息类型
const (
	TypeHeartbeat      = "heartbeat"
	TypeCreateDocument = "createDocument"
	TypeJoinDocument   = "joinDocument"
	TypeLeaveDocument  = "leaveDocument"
	TypeOpSubmit       = "op_submit"
	TypeCursor         = "cursor"
	TypeSync           = "sync"
	TypeUndo           = "undo"
	TypeSaveDocument   = "saveDocument"
	TypeLoadContent    = "loadDocumentContent"
	TypeFieldMerge     = "field_merge"
	TypeFieldGet       = "field_get"
	TypeShowMembers    = "show_alive_members"
)

// 服务端 → 客户端
const (
	TypeWelcome     = "welcome"
	TypeFeedback    = "feedback"
	TypeError       = "error"
	TypeIgnored     = "ignored"
	TypePresence    = "presence"
	TypeOpApplied   = "op_applied"
	TypeOpBroadcast = "op_broadcast"
	TypeField       = "field"
)

type ClientMessage struct {
	Type     string `json:"type"`
	DocID    string `json:"docId"`
	DocTitle string `json:"docTitle"`

	BaseRevision uint64 `json:"baseRevision"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	// 连接建立时确定，消息里的值只做校验，不一致时拒绝。
	ClientID string `json:"clientId"`
	// 针对同一个 clientId 的“本地递增序号”
	ClientSeq uint64           `json:"clientSeq"`
	Op        *delta.Operation `json:"op,omitempty"`

	Cursor    *int                `json:"cursor,omitempty"`
	Selection *presence.Selection `json:"selection,omitempty"`

	FromRevision   uint64 `json:"fromRevision,omitempty"`
	TargetRevision uint64 `json:"targetRevision,omitempty"`

	Field string      `json:"field,omitempty"`
	State *crdt.State `json:"state,omitempty"`

	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
	Content     string `json:"content,omitempty"`
}

type ServerMessage struct {
	Type     string                  `json:"type"`
	UserID   uint64                  `json:"userId,omitempty"`
	DocID    string                  `json:"docId,omitempty"`
	Revision uint64                  `json:"revision,omitempty"`
	Members  []presence.UserPresence `json:"members,omitempty"`
	Code     string                  `json:"code,omitempty"`
	Content  string                  `json:"content,omitempty"`
}

type OpAppliedMessage struct {
	Type            string `json:"type"` // 固定 "op_applied"
	DocID           string `json:"docId"`
	OperationID     string `json:"operationId"`
	BaseRevision    uint64 `json:"baseRevision"`    // 客户端提交时的 base
	CurrentRevision uint64 `json:"currentRevision"` // 服务端应用后的最新版本
	ClientID        string `json:"clientId"`
	ClientSeq       uint64 `json:"clientSeq"`
}

// 广播给同文档房间内其他连接的“已应用操作”事件
// - 与 op_applied(ack) 区分：这里用于把变更推送给其他协作者（包括同用户的其他标签页）
// - Op 是 transform 之后实际应用的操作，收到后在本地 transform 未确认的操作再应用
type OpBroadcastMessage struct {
	Type      string           `json:"type"` // 固定 "op_broadcast"
	DocID     string           `json:"docId"`
	Revision  uint64           `json:"revision"` // 服务端已应用后的最新版本
	AuthorID  uint64           `json:"authorId"`
	ClientID  string           `json:"clientId,omitempty"`
	ClientSeq uint64           `json:"clientSeq,omitempty"`
	Op        *delta.Operation `json:"op"`
	Label     string           `json:"label,omitempty"`
	AppliedAt time.Time        `json:"appliedAt"`
}

// 断线重连后的追平：fromRevision 之后的所有已应用操作
type SyncMessage struct {
	Type     string             `json:"type"` // 固定 "sync"
	DocID    string             `json:"docId"`
	Revision uint64             `json:"revision"`
	Ops      []collab.AppliedOp `json:"ops"`
}

type FieldMessage struct {
	Type     string      `json:"type"` // 固定 "field"
	DocID    string      `json:"docId"`
	Field    string      `json:"field"`
	AuthorID uint64      `json:"authorId,omitempty"`
	State    *crdt.State `json:"state"`
	Value    any         `json:"value"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
func (m SyncMessage) MessageType() string        { return m.Type }
func (m FieldMessage) MessageType() string       { return m.Type }

func newOpApplied(docID string, applied collab.AppliedOp) OpAppliedMessage {
	return OpAppliedMessage{
		Type:            TypeOpApplied,
		DocID:           docID,
		OperationID:     applied.OperationID,
		BaseRevision:    applied.BaseRevision,
		CurrentRevision: applied.Revision,
		ClientID:        applied.ClientID,
		ClientSeq:       applied.ClientSeq,
	}
}

func newOpBroadcast(docID string, applied collab.AppliedOp) OpBroadcastMessage {
	return OpBroadcastMessage{
		Type:      TypeOpBroadcast,
		DocID:     docID,
		Revision:  applied.Revision,
		AuthorID:  applied.AuthorID,
		ClientID:  applied.ClientID,
		ClientSeq: applied.ClientSeq,
		Op:        applied.Op,
		Label:     applied.Label,
		AppliedAt: applied.AppliedAt,
	}
}

func newFieldMessage(docID, field string, authorID uint64, st *crdt.State) FieldMessage {
	return FieldMessage{Type: TypeField, DocID: docID, Field: field, AuthorID: authorID, State: st, Value: st.Value()}
}
