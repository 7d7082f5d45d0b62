package ws

import (
	"context"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"collabcore/backend/internal/cache"
	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/presence"
)

type Hub struct {
	// Redis 上的在线状态镜像，供多实例共享；可为 nil（单机/测试）
	presence    cache.PresenceCache
	presenceTTL time.Duration
	// 读写锁，保护 rooms，加入/离开房间、广播时都会先加锁
	mu sync.RWMutex
	// docID -> set of connections
	// 一个用户可开多个标签页/设备（多连接），广播要逐连接发，不能只按 userID 发一次
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache, ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &Hub{presence: p, presenceTTL: ttl, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// 在锁内拷贝一份连接列表，发送时不持锁
func (h *Hub) conns(docID string, except *Conn) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) broadcast(docID string, except *Conn, msg OutboundMessage) {
	for _, c := range h.conns(docID, except) {
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(docID string, members []presence.UserPresence) {
	h.broadcast(docID, nil, ServerMessage{Type: TypePresence, DocID: docID, Members: members})
}

func (h *Hub) BroadcastField(docID string, except *Conn, msg FieldMessage) {
	h.broadcast(docID, except, msg)
}

// 以下为 Redis 镜像，失败只记日志，不影响协作主流程

func (h *Hub) touchMember(ctx context.Context, docID string, userID uint64, name string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.AddMember(ctx, docID, userID, name, h.presenceTTL); err != nil {
		log.Printf("add member error: %v", err)
	}
}

func (h *Hub) dropMember(ctx context.Context, docID string, userID uint64) {
	if h.presence == nil {
		return
	}
	if err := h.presence.RemoveMember(ctx, docID, userID); err != nil {
		log.Printf("remove member error: %v", err)
	}
}

func (h *Hub) mirrorCursor(ctx context.Context, docID string, up presence.UserPresence) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetCursor(ctx, docID, up, h.presenceTTL); err != nil {
		log.Printf("set cursor error: %v", err)
	}
}

// Members 在本实例的在线用户后面补上 Redis 镜像里其他实例的用户（带镜像的光标）。
// 本实例的条目以 Session 为准；未配置 Redis 或读取失败时原样返回 local。
func (h *Hub) Members(ctx context.Context, docID string, local []presence.UserPresence) []presence.UserPresence {
	if h.presence == nil {
		return local
	}
	alive, err := h.presence.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		log.Printf("get alive members error (doc=%s): %v", docID, err)
		return local
	}
	out := slices.Clone(local)
	for _, m := range alive {
		if slices.ContainsFunc(local, func(p presence.UserPresence) bool { return p.UserID == m.UserID }) {
			continue
		}
		up, ok, err := h.presence.GetCursor(ctx, docID, m.UserID)
		if err != nil {
			log.Printf("get cursor error (doc=%s, user=%d): %v", docID, m.UserID, err)
		}
		if !ok {
			up = presence.UserPresence{}
		}
		up.UserID = m.UserID
		if up.DisplayName == "" {
			up.DisplayName = m.DisplayName
		}
		out = append(out, up)
	}
	return out
}

// hasUser 房间里是否还有该用户的其他连接
func (h *Hub) hasUser(docID string, userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		if c.userID == userID {
			return true
		}
	}
	return false
}

var _ collab.AppliedListener = (*Hub)(nil)

// OpApplied 由协作服务在文档锁内调用，WebSocket 和 HTTP 两条提交路径都走这里。
// 提交者的连接收到 op_applied，其余连接收到 op_broadcast；撤销操作提交者本地没有，也要收到 op_broadcast。
// 入队不阻塞，每个连接的出站队列里操作按版本号排列。
func (h *Hub) OpApplied(docID string, applied collab.AppliedOp, members []presence.UserPresence) {
	bc := newOpBroadcast(docID, applied)
	undo := strings.HasPrefix(applied.Label, collab.UndoLabelPrefix)
	for _, c := range h.conns(docID, nil) {
		if applied.ClientID != "" && c.clientID == applied.ClientID {
			c.SendMessage_Enqueue(newOpApplied(docID, applied))
			if !undo {
				continue
			}
		}
		c.SendMessage_Enqueue(bc)
	}
	if len(members) > 0 {
		h.BroadcastPresence(docID, members)
	}
}

func (h *Hub) NotifyField(docID, field string, authorID uint64, st *crdt.State) {
	h.broadcast(docID, nil, newFieldMessage(docID, field, authorID, st))
}
