package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collabcore/backend/internal/presence"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 15})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	return rdb
}

func TestKeys(t *testing.T) {
	if got := roomKey("d1"); got != "presence:room:{d1}" {
		t.Fatalf("roomKey() = %q", got)
	}
	if got := cursorKey("d1", 7); got != "presence:cursor:{d1}:7" {
		t.Fatalf("cursorKey() = %q", got)
	}
	if got := fieldsKey("d1"); got != "collab:fields:{d1}" {
		t.Fatalf("fieldsKey() = %q", got)
	}
}

func TestRedisPresence_Members(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	p := NewRedisPresence(rdb)

	if err := p.AddMember(ctx, "doc-1", 1, "alice", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, "doc-1", 2, "bob", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	// 已过期的成员会被清理
	if err := p.AddMember(ctx, "doc-1", 3, "ghost", -time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembersWithNames(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %+v, want alice and bob", members)
	}

	if err := p.RemoveMember(ctx, "doc-1", 2); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
	members, _ = p.GetAliveMembersWithNames(ctx, "doc-1")
	if len(members) != 1 || members[0].DisplayName != "alice" {
		t.Fatalf("members = %+v, want alice", members)
	}
}

func TestRedisPresence_Cursor(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	p := NewRedisPresence(rdb)

	cursor := 4
	up := presence.UserPresence{UserID: 9, Replica: "r9", DisplayName: "zed", Cursor: &cursor}
	if err := p.SetCursor(ctx, "doc-1", up, time.Minute); err != nil {
		t.Fatalf("SetCursor error: %v", err)
	}
	got, ok, err := p.GetCursor(ctx, "doc-1", 9)
	if err != nil || !ok {
		t.Fatalf("GetCursor() = %v, %v", ok, err)
	}
	if got.Cursor == nil || *got.Cursor != 4 || got.Replica != "r9" {
		t.Fatalf("GetCursor() = %+v", got)
	}
	if _, ok, _ := p.GetCursor(ctx, "doc-1", 10); ok {
		t.Fatalf("GetCursor() for unknown user should report false")
	}
}

func TestFieldStore(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	s := NewFieldStore(rdb)

	if _, ok, err := s.LoadField(ctx, "doc-1", "views"); ok || err != nil {
		t.Fatalf("LoadField() on empty = %v, %v", ok, err)
	}
	data := []byte(`{"kind":"g_counter","state":{"r1":5}}`)
	if err := s.SaveField(ctx, "doc-1", "views", data); err != nil {
		t.Fatalf("SaveField error: %v", err)
	}
	got, ok, err := s.LoadField(ctx, "doc-1", "views")
	if err != nil || !ok || string(got) != string(data) {
		t.Fatalf("LoadField() = %s, %v, %v", got, ok, err)
	}
}
