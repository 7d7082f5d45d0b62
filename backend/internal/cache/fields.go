package cache

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

// FieldStore 把文档的 CRDT 字段状态存成 Redis Hash，实现 collab.FieldStore
type FieldStore struct {
	rdb redis.UniversalClient
}

func NewFieldStore(rdb redis.UniversalClient) *FieldStore {
	return &FieldStore{rdb: rdb}
}

func (s *FieldStore) SaveField(ctx context.Context, docID, field string, data []byte) error {
	return s.rdb.HSet(ctx, fieldsKey(docID), field, data).Err()
}

func (s *FieldStore) LoadField(ctx context.Context, docID, field string) ([]byte, bool, error) {
	b, err := s.rdb.HGet(ctx, fieldsKey(docID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
