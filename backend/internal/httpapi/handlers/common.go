package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/errcode"
	"collabcore/backend/internal/presence"
)

// Notifier 把 HTTP 路径上合并的字段推给 WebSocket 房间，可为 nil。
// 文本操作由协作服务在文档锁内推送，不经过这里。
type Notifier interface {
	NotifyField(docID, field string, authorID uint64, st *crdt.State)
}

// PresenceSource 把本实例的在线用户和其他实例共享的镜像合并，可为 nil
type PresenceSource interface {
	Members(ctx context.Context, docID string, local []presence.UserPresence) []presence.UserPresence
}

func writeError(c *gin.Context, err error) {
	c.JSON(errcode.HTTPStatus(err), gin.H{"code": errcode.Code(err), "message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": errcode.CodeBadRequest, "message": msg})
}

// 从gin.Context获取用户信息，由鉴权中间件写入
func currentUser(c *gin.Context) (uint64, bool) {
	v, ok := c.Get("userId")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": errcode.CodeUnauthenticated, "message": "User context missing"})
		return 0, false
	}
	userID, ok := v.(uint64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": errcode.CodeUnauthenticated, "message": "Invalid user ID format"})
		return 0, false
	}
	return userID, true
}
