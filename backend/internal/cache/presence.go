package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"collabcore/backend/internal/presence"
)

// PresenceCache 在线成员和光标的 Redis 镜像，供多实例之间共享；
// 权威的光标位置仍在 Session 里
type PresenceCache interface {
	AddMember(ctx context.Context, docID string, userID uint64, displayName string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, userID uint64) error
	GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error)
	SetCursor(ctx context.Context, docID string, p presence.UserPresence, ttl time.Duration) error
	GetCursor(ctx context.Context, docID string, userID uint64) (presence.UserPresence, bool, error)
}

type PresenceMember struct {
	UserID      uint64 `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// 具体实现：基于 redis 的 PresenceCache，单机和集群客户端都可以
type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) AddMember(ctx context.Context, docID string, userID uint64, displayName string, ttl time.Duration) error {
	// 刷新 TTL 也直接调用 AddMember
	// ZSET score 使用 expireAt（Unix 秒），表达“逻辑 TTL”
	expireAt := time.Now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(docID), userID, displayName)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID string, userID uint64) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), userID)
	tx.HDel(ctx, namesKey(docID), strconv.FormatUint(userID, 10))
	tx.Del(ctx, cursorKey(docID, userID))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) SetCursor(ctx context.Context, docID string, up presence.UserPresence, ttl time.Duration) error {
	b, err := json.Marshal(up)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, cursorKey(docID, up.UserID), b, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, docID string, userID uint64) (presence.UserPresence, bool, error) {
	b, err := p.rdb.Get(ctx, cursorKey(docID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return presence.UserPresence{}, false, nil
	}
	if err != nil {
		return presence.UserPresence{}, false, err
	}
	var up presence.UserPresence
	if err := json.Unmarshal(b, &up); err != nil {
		return presence.UserPresence{}, false, err
	}
	return up, true, nil
}

// 清理过期成员：score=expireAt（Unix 秒），expireAt <= now 视为过期
var cleanupScript = redis.NewScript(`
-- KEYS[1] = roomKey(docID)
-- KEYS[2] = namesKey(docID)
-- ARGV[1] = now (unix seconds)
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error) {
	now := time.Now().Unix()
	// step1: 清理过期成员
	if err := cleanupScript.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	// step2: 查询在线成员
	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	// step3: 批量获取名字
	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, raw := range aliveIDs {
		// ZRangeByScore 返回 member 的字符串表示，这里解析回 uint64
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		name, _ := names[i].(string)
		members = append(members, PresenceMember{UserID: uid, DisplayName: name})
	}
	return members, nil
}
