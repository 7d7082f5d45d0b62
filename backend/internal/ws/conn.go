package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/errcode"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
)

const (
	sendBufferSize = 64
	submitTimeout  = 200 * time.Millisecond
	requestTimeout = 2 * time.Second
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// 本连接的客户端实例标识，同时作为 presence 的 replica；建立后不再修改
	clientID string

	sendMu sync.Mutex
	closed bool
	// 出站队列，由 writeLoop 消费
	send chan OutboundMessage
	//协作引擎服务
	svc collab.Service
	// 信号量控制
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username, clientID string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		clientID: clientID,
		send:     make(chan OutboundMessage, sendBufferSize),
		svc:      svc,
		sem:      sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// 如果队列满了，则丢弃消息；客户端可以用 sync 追平
		log.Printf("send queue full, drop %s (user=%d)", msg.MessageType(), c.userID)
	}
}

func (c *Conn) sendError(err error) {
	c.SendMessage_Enqueue(ServerMessage{Type: TypeError, DocID: c.docID, Code: errcode.Code(err), Content: err.Error()})
}

func (c *Conn) presenceOf(cursor *int, sel *presence.Selection, displayName, color string) presence.UserPresence {
	if displayName == "" {
		displayName = c.username
	}
	return presence.UserPresence{
		UserID:      c.userID,
		Replica:     crdt.ReplicaID(c.clientID),
		DisplayName: displayName,
		Color:       color,
		Cursor:      cursor,
		Selection:   sel,
	}
}

// checkClient clientId 在连接建立时确定，hub 按它把 op_applied 路由回提交者
func (c *Conn) checkClient(msg ClientMessage) error {
	if msg.ClientID != "" && msg.ClientID != c.clientID {
		return fmt.Errorf("%w: got %q, connection uses %q", collab.ErrClientMismatch, msg.ClientID, c.clientID)
	}
	return nil
}

// docOf 消息里的 docId 优先，否则用当前房间
func (c *Conn) docOf(msg ClientMessage) (string, error) {
	if msg.DocID != "" {
		return msg.DocID, nil
	}
	if c.docID != "" {
		return c.docID, nil
	}
	return "", fmt.Errorf("%w: no document joined", collab.ErrDocumentNotFound)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.close(context.WithoutCancel(ctx))
	for {
		var clientMessage ClientMessage
		if err := c.ws.ReadJSON(&clientMessage); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			}
			return
		}
		c.handle(ctx, clientMessage)
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的消息，直到 close 关闭通道
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("write json error (user=%d): %v", c.userID, err)
		}
	}
}

// close 离开当前房间，然后关闭出站队列
func (c *Conn) close(ctx context.Context) {
	if c.docID != "" {
		c.leaveRoom(ctx)
	}
	c.sendMu.Lock()
	c.closed = true
	close(c.send)
	c.sendMu.Unlock()
}

func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeHeartbeat:
		if c.docID != "" {
			c.hub.touchMember(ctx, c.docID, c.userID, c.username)
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})
	case TypeCreateDocument:
		c.handleCreateDocument(ctx, msg)
	case TypeJoinDocument:
		c.handleJoinDocument(ctx, msg)
	case TypeLeaveDocument:
		if c.docID != "" {
			docID := c.docID
			c.leaveRoom(ctx)
			c.SendMessage_Enqueue(ServerMessage{Type: TypeLeaveDocument, DocID: docID})
		}
	case TypeOpSubmit:
		c.handleOpSubmit(ctx, msg)
	case TypeCursor:
		c.handleCursor(ctx, msg)
	case TypeSync:
		c.handleSync(ctx, msg)
	case TypeUndo:
		c.handleUndo(ctx, msg)
	case TypeSaveDocument:
		docID, err := c.docOf(msg)
		if err == nil {
			err = c.svc.SaveSnapshot(ctx, docID)
		}
		if err != nil {
			log.Printf("save document error: %v", err)
			c.sendError(err)
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeSaveDocument, DocID: docID, Content: "Document " + docID + " saved"})
	case TypeLoadContent:
		docID, err := c.docOf(msg)
		if err != nil {
			c.sendError(err)
			return
		}
		content, revision, err := c.svc.LoadDocumentContent(ctx, docID)
		if err != nil {
			log.Printf("load document content error: %v", err)
			c.sendError(err)
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLoadContent, DocID: docID, Content: content, Revision: revision})
	case TypeFieldMerge:
		c.handleFieldMerge(ctx, msg)
	case TypeFieldGet:
		docID, err := c.docOf(msg)
		if err != nil {
			c.sendError(err)
			return
		}
		st, err := c.svc.Field(ctx, docID, msg.Field)
		if err != nil {
			c.sendError(err)
			return
		}
		c.SendMessage_Enqueue(newFieldMessage(docID, msg.Field, 0, st))
	case TypeShowMembers:
		members, err := c.svc.Presence(ctx, c.docID)
		if err != nil {
			c.sendError(err)
			return
		}
		members = c.hub.Members(ctx, c.docID, members)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeShowMembers, DocID: c.docID, Members: members})
	default:
		// 忽略未知类型，回一条提示
		c.SendMessage_Enqueue(ServerMessage{Type: TypeIgnored, Content: "Unknown message type " + strconv.Quote(msg.Type)})
	}
}

func (c *Conn) handleCreateDocument(ctx context.Context, msg ClientMessage) {
	docID, err := c.svc.CreateDocument(ctx, c.userID, msg.DocTitle, msg.Content)
	if err != nil {
		log.Printf("create document error (user=%d, title=%q): %v", c.userID, msg.DocTitle, err)
		c.sendError(err)
		return
	}
	c.SendMessage_Enqueue(ServerMessage{
		Type:    TypeCreateDocument,
		DocID:   docID,
		Content: "Document " + docID + " created by user " + strconv.FormatUint(c.userID, 10),
	})
}

func (c *Conn) handleJoinDocument(ctx context.Context, msg ClientMessage) {
	docID := msg.DocID
	if docID == "" && msg.DocTitle != "" {
		id, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
		if err != nil {
			log.Printf("get document id error: %v", err)
			c.sendError(err)
			return
		}
		docID = id
	}
	if docID == "" {
		c.sendError(fmt.Errorf("%w: missing docId", collab.ErrDocumentNotFound))
		return
	}
	if err := c.checkClient(msg); err != nil {
		c.sendError(err)
		return
	}

	content, revision, err := c.svc.LoadDocumentContent(ctx, docID)
	if err != nil {
		c.sendError(err)
		return
	}
	// 先离开旧房间，允许动态切换
	if c.docID != "" && c.docID != docID {
		c.leaveRoom(ctx)
	}
	members, err := c.svc.Join(ctx, docID, c.presenceOf(msg.Cursor, msg.Selection, msg.DisplayName, msg.Color))
	if err != nil {
		c.sendError(err)
		return
	}
	c.docID = docID
	c.hub.Join(docID, c)
	c.hub.touchMember(ctx, docID, c.userID, c.username)

	c.SendMessage_Enqueue(ServerMessage{
		Type:     TypeJoinDocument,
		DocID:    docID,
		UserID:   c.userID,
		Revision: revision,
		Members:  members,
		Content:  content,
	})
	c.hub.BroadcastPresence(docID, members)
}

func (c *Conn) leaveRoom(ctx context.Context) {
	docID := c.docID
	c.hub.Leave(docID, c)
	c.docID = ""
	// 同一用户的其他标签页还在时保留其 presence
	if c.hub.hasUser(docID, c.userID) {
		return
	}
	if err := c.svc.Leave(ctx, docID, c.userID); err != nil && !errors.Is(err, presence.ErrUnknownUser) {
		log.Printf("leave document error (user=%d, doc=%s): %v", c.userID, docID, err)
	}
	c.hub.dropMember(ctx, docID, c.userID)
	if members, err := c.svc.Presence(ctx, docID); err == nil {
		c.hub.BroadcastPresence(docID, members)
	}
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	docID, err := c.docOf(msg)
	if err != nil {
		c.sendError(err)
		return
	}
	if msg.Op == nil {
		c.sendError(fmt.Errorf("%w: missing op", delta.ErrInvalidOperation))
		return
	}
	if err := c.checkClient(msg); err != nil {
		c.sendError(err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := c.sem.Acquire(opCtx); err != nil {
		c.sendError(err)
		return
	}
	defer c.sem.Release()

	// ack 和广播由 hub 在文档锁内按版本顺序发出
	applied, err := c.svc.Submit(opCtx, docID, c.userID, msg.BaseRevision, c.clientID, msg.ClientSeq, msg.Op)
	if err != nil {
		log.Printf("submit error (user=%d, doc=%s, base=%d): %v", c.userID, docID, msg.BaseRevision, err)
		c.sendError(err)
		return
	}
	// 没有加入该文档的房间时 hub 找不到本连接，直接回 ack
	if docID != c.docID {
		c.SendMessage_Enqueue(newOpApplied(docID, applied))
	}
}

func (c *Conn) handleCursor(ctx context.Context, msg ClientMessage) {
	if c.docID == "" {
		c.sendError(fmt.Errorf("%w: no document joined", collab.ErrDocumentNotFound))
		return
	}
	if msg.Cursor == nil {
		c.sendError(fmt.Errorf("%w: missing cursor", presence.ErrInvalidRange))
		return
	}
	members, err := c.svc.UpdateCursor(ctx, c.docID, c.userID, *msg.Cursor, msg.Selection)
	if err != nil {
		c.sendError(err)
		return
	}
	for _, m := range members {
		if m.UserID == c.userID {
			c.hub.mirrorCursor(ctx, c.docID, m)
			break
		}
	}
	c.hub.BroadcastPresence(c.docID, members)
}

func (c *Conn) handleSync(ctx context.Context, msg ClientMessage) {
	docID, err := c.docOf(msg)
	if err != nil {
		c.sendError(err)
		return
	}
	ops, err := c.svc.OpsSince(ctx, docID, msg.FromRevision, 0)
	if errors.Is(err, collab.ErrRevisionConflict) {
		// 落后太多，环形缓冲里已经没有了，直接下发全文
		content, revision, lerr := c.svc.LoadDocumentContent(ctx, docID)
		if lerr != nil {
			c.sendError(lerr)
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLoadContent, DocID: docID, Content: content, Revision: revision})
		return
	}
	if err != nil {
		c.sendError(err)
		return
	}
	rev, err := c.svc.CurrentRevision(ctx, docID)
	if err != nil {
		c.sendError(err)
		return
	}
	c.SendMessage_Enqueue(SyncMessage{Type: TypeSync, DocID: docID, Revision: rev, Ops: ops})
}

func (c *Conn) handleUndo(ctx context.Context, msg ClientMessage) {
	docID, err := c.docOf(msg)
	if err != nil {
		c.sendError(err)
		return
	}
	if err := c.checkClient(msg); err != nil {
		c.sendError(err)
		return
	}
	undoCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	applied, err := c.svc.Undo(undoCtx, docID, c.userID, c.clientID, msg.TargetRevision)
	if err != nil {
		c.sendError(err)
		return
	}
	if docID != c.docID {
		c.SendMessage_Enqueue(newOpApplied(docID, applied))
		c.SendMessage_Enqueue(newOpBroadcast(docID, applied))
	}
}

func (c *Conn) handleFieldMerge(ctx context.Context, msg ClientMessage) {
	docID, err := c.docOf(msg)
	if err != nil {
		c.sendError(err)
		return
	}
	merged, err := c.svc.MergeField(ctx, docID, msg.Field, c.userID, msg.State)
	if err != nil {
		c.sendError(err)
		return
	}
	out := newFieldMessage(docID, msg.Field, c.userID, merged)
	c.SendMessage_Enqueue(out)
	c.hub.BroadcastField(docID, c, out)
}
