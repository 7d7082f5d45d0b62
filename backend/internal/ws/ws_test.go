package ws

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
)

// 服务端各类消息字段的并集，测试里统一解码
type inbound struct {
	Type            string                  `json:"type"`
	DocID           string                  `json:"docId"`
	UserID          uint64                  `json:"userId"`
	Revision        uint64                  `json:"revision"`
	CurrentRevision uint64                  `json:"currentRevision"`
	Members         []presence.UserPresence `json:"members"`
	Code            string                  `json:"code"`
	Content         string                  `json:"content"`
	Op              *delta.Operation        `json:"op"`
	Ops             []collab.AppliedOp      `json:"ops"`
	Field           string                  `json:"field"`
	Value           any                     `json:"value"`
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, time.Minute)
	svc := collab.NewInMemoryService(nil, nil, nil, nil, nil, collab.ServiceOptions{Listener: hub})
	m := NewManager(hub, svc, nil, nil)

	r := gin.New()
	// 测试里用 query 参数代替鉴权中间件
	r.GET("/ws", func(c *gin.Context) {
		uid, _ := strconv.ParseUint(c.Query("uid"), 10, 64)
		c.Set("userId", uid)
		c.Set("username", "user"+c.Query("uid"))
	}, m.WebSocketConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, uid int, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.Itoa(uid) + "&clientId=" + clientID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readUntil(t, conn, TypeWelcome)
	assert.Equal(t, clientID, welcome.Content)
	return conn
}

// readUntil 读到指定类型的消息为止，中间的 presence 等消息跳过
func readUntil(t *testing.T, conn *websocket.Conn, typ string) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", typ)
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocket_CollaborativeEditing(t *testing.T) {
	srv, hub := newTestServer(t)
	alice := dial(t, srv, 1, "A")
	bob := dial(t, srv, 2, "B")

	send(t, alice, ClientMessage{Type: TypeCreateDocument, DocTitle: "notes", Content: "Hello"})
	created := readUntil(t, alice, TypeCreateDocument)
	require.NotEmpty(t, created.DocID)
	docID := created.DocID

	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: docID})
	joined := readUntil(t, alice, TypeJoinDocument)
	assert.Equal(t, "Hello", joined.Content)
	assert.Equal(t, uint64(0), joined.Revision)

	cursor := 2
	send(t, bob, ClientMessage{Type: TypeJoinDocument, DocID: docID, Cursor: &cursor})
	joined = readUntil(t, bob, TypeJoinDocument)
	assert.Len(t, joined.Members, 2)
	assert.Equal(t, 2, hub.RoomSize(docID))

	// alice 在开头插入，bob 的光标应右移
	send(t, alice, ClientMessage{Type: TypeOpSubmit, BaseRevision: 0, ClientSeq: 1,
		Op: delta.New().Insert(">> ").Retain(5)})
	ack := readUntil(t, alice, TypeOpApplied)
	assert.Equal(t, uint64(1), ack.CurrentRevision)

	bc := readUntil(t, bob, TypeOpBroadcast)
	assert.Equal(t, uint64(1), bc.Revision)
	out, err := delta.Apply(bc.Op, "Hello")
	require.NoError(t, err)
	assert.Equal(t, ">> Hello", out)

	p := readUntil(t, bob, TypePresence)
	for _, m := range p.Members {
		if m.UserID == 2 {
			require.NotNil(t, m.Cursor)
			assert.Equal(t, 5, *m.Cursor)
		}
	}

	// bob 基于旧版本提交，服务端 transform 后应用
	send(t, bob, ClientMessage{Type: TypeOpSubmit, BaseRevision: 0, ClientSeq: 1,
		Op: delta.New().Retain(5).Insert("!")})
	ack = readUntil(t, bob, TypeOpApplied)
	assert.Equal(t, uint64(2), ack.CurrentRevision)
	readUntil(t, alice, TypeOpBroadcast)

	send(t, alice, ClientMessage{Type: TypeLoadContent})
	loaded := readUntil(t, alice, TypeLoadContent)
	assert.Equal(t, ">> Hello!", loaded.Content)
	assert.Equal(t, uint64(2), loaded.Revision)

	send(t, bob, ClientMessage{Type: TypeSync, FromRevision: 1})
	synced := readUntil(t, bob, TypeSync)
	assert.Len(t, synced.Ops, 1)
	assert.Equal(t, uint64(2), synced.Revision)
}

func TestWebSocket_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv, 1, "A")

	send(t, alice, ClientMessage{Type: "bogus"})
	assert.Equal(t, TypeIgnored, readUntil(t, alice, TypeIgnored).Type)

	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: "missing"})
	e := readUntil(t, alice, TypeError)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", e.Code)

	send(t, alice, ClientMessage{Type: TypeCreateDocument, DocTitle: "t", Content: "abc"})
	docID := readUntil(t, alice, TypeCreateDocument).DocID
	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: docID})
	readUntil(t, alice, TypeJoinDocument)

	// 长度不符
	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientSeq: 1, Op: delta.New().Retain(7)})
	e = readUntil(t, alice, TypeError)
	assert.Equal(t, "STALE_OPERATION", e.Code)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientSeq: 2})
	e = readUntil(t, alice, TypeError)
	assert.Equal(t, "INVALID_OPERATION", e.Code)

	// 不在房间里也能提交，ack 直接回给本连接
	send(t, alice, ClientMessage{Type: TypeLeaveDocument})
	readUntil(t, alice, TypeLeaveDocument)
	send(t, alice, ClientMessage{Type: TypeOpSubmit, DocID: docID, ClientSeq: 3, Op: delta.New().Retain(3).Insert("d")})
	ack := readUntil(t, alice, TypeOpApplied)
	assert.Equal(t, uint64(1), ack.CurrentRevision)

	// clientId 在连接建立时确定
	send(t, alice, ClientMessage{Type: TypeOpSubmit, DocID: docID, ClientID: "other", ClientSeq: 4, Op: delta.New().Retain(4).Insert("e")})
	e = readUntil(t, alice, TypeError)
	assert.Equal(t, "CLIENT_ID_MISMATCH", e.Code)
}

// readRevisions 收集 n 个 op_applied / op_broadcast 的版本号，其他消息跳过
func readRevisions(t *testing.T, conn *websocket.Conn, n int) []uint64 {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	revs := make([]uint64, 0, n)
	for len(revs) < n {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg), "collected %d of %d ops", len(revs), n)
		switch msg.Type {
		case TypeOpApplied:
			revs = append(revs, msg.CurrentRevision)
		case TypeOpBroadcast:
			revs = append(revs, msg.Revision)
		}
	}
	return revs
}

func TestWebSocket_ConcurrentSubmitsArriveInRevisionOrder(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv, 1, "A")
	bob := dial(t, srv, 2, "B")
	carol := dial(t, srv, 3, "C")

	send(t, alice, ClientMessage{Type: TypeCreateDocument, DocTitle: "race", Content: ""})
	docID := readUntil(t, alice, TypeCreateDocument).DocID
	for _, c := range []*websocket.Conn{alice, bob, carol} {
		send(t, c, ClientMessage{Type: TypeJoinDocument, DocID: docID})
		readUntil(t, c, TypeJoinDocument)
	}

	// 两个连接同时提交，都基于版本 0，由服务端 transform
	const perClient = 10
	var g errgroup.Group
	for _, c := range []*websocket.Conn{alice, bob} {
		g.Go(func() error {
			for seq := uint64(1); seq <= perClient; seq++ {
				if err := c.WriteJSON(ClientMessage{Type: TypeOpSubmit, ClientSeq: seq, Op: delta.New().Insert("x")}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	want := make([]uint64, 2*perClient)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, readRevisions(t, carol, 2*perClient))
	// 提交者自己的 ack 和别人的广播也按版本交错
	assert.Equal(t, want, readRevisions(t, alice, 2*perClient))
	assert.Equal(t, want, readRevisions(t, bob, 2*perClient))
}

func TestWebSocket_FieldMergeAndUndo(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv, 1, "A")
	bob := dial(t, srv, 2, "B")

	send(t, alice, ClientMessage{Type: TypeCreateDocument, DocTitle: "t", Content: "ab"})
	docID := readUntil(t, alice, TypeCreateDocument).DocID
	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: docID})
	readUntil(t, alice, TypeJoinDocument)
	send(t, bob, ClientMessage{Type: TypeJoinDocument, DocID: docID})
	readUntil(t, bob, TypeJoinDocument)

	st, err := crdt.NewState(crdt.KindGCounter)
	require.NoError(t, err)
	st.GCounter.IncrementBy("B", 3)
	send(t, bob, ClientMessage{Type: TypeFieldMerge, Field: "views", State: st})
	own := readUntil(t, bob, TypeField)
	assert.Equal(t, float64(3), own.Value)
	other := readUntil(t, alice, TypeField)
	assert.Equal(t, "views", other.Field)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientSeq: 1, Op: delta.New().Retain(2).Insert("c")})
	readUntil(t, alice, TypeOpApplied)
	readUntil(t, bob, TypeOpBroadcast)

	send(t, alice, ClientMessage{Type: TypeUndo, TargetRevision: 0})
	ack := readUntil(t, alice, TypeOpApplied)
	assert.Equal(t, uint64(2), ack.CurrentRevision)
	bc := readUntil(t, bob, TypeOpBroadcast)
	out, err := delta.Apply(bc.Op, "abc")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}
