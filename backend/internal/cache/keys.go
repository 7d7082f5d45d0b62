package cache

import "fmt"

// 键语义：
// - roomKey(docID):         房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):        房间内 userId→displayName 映射（Hash）
// - cursorKey(docID, uid):  某用户的 presence JSON（String，带 TTL）
// - fieldsKey(docID):       文档上的 CRDT 字段（Hash<field -> state JSON>）
//
// {docID} 作为 hash tag，保证集群模式下同一文档的键落在同一个 slot，Lua 脚本可以同时操作

const (
	keyRoomFmt   = "presence:room:{%s}"
	keyNamesFmt  = "presence:names:{%s}"
	keyCursorFmt = "presence:cursor:{%s}:%d"
	keyFieldsFmt = "collab:fields:{%s}"
)

func roomKey(docID string) string                  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string                 { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID string, userID uint64) string { return fmt.Sprintf(keyCursorFmt, docID, userID) }
func fieldsKey(docID string) string                { return fmt.Sprintf(keyFieldsFmt, docID) }
