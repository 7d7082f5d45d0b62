package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabcore/backend/internal/collab"
)

var defaultAllowedOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
	"https://localhost",
	"https://127.0.0.1",
}

// newUpgrader 按来源前缀放行；不发送 Origin 或为 "null" 的环境（本地工具、测试）直接放行
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}
	return websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			return true
		}
		for _, p := range allowedOrigins {
			if p == "*" || strings.HasPrefix(origin, p) {
				return true
			}
		}
		return false
	}}
}

type Manager struct {
	h        *Hub
	svc      collab.Service
	sem      *collab.SemaphoreControl
	upgrader websocket.Upgrader
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl, allowedOrigins []string) *Manager {
	if sem == nil {
		sem = collab.NewSemaphoreControl(collab.DefaultSemaphoreSize)
	}
	return &Manager{h: h, svc: svc, sem: sem, upgrader: newUpgrader(allowedOrigins)}
}

// WebSocketConnect 升级连接；userId/username 由鉴权中间件写入
// 查询参数 clientId 可选，缺省时服务端生成
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, userID, username, clientID, m.svc, m.sem)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	done := make(chan struct{})
	go func() {
		defer close(done)
		wsConn.writeLoop()
	}()
	wsConn.SendMessage_Enqueue(ServerMessage{Type: TypeWelcome, UserID: userID, Content: clientID})

	// 最后再进入读循环（阻塞至连接关闭）
	wsConn.readLoop(c.Request.Context())
	<-done
}
