package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"collabcore/backend/internal/collab"
)

var (
	_ collab.SnapshotStore  = (*SnapshotStore)(nil)
	_ collab.SnapshotPruner = (*SnapshotStore)(nil)
)

type SnapshotStore struct{ db *gorm.DB }

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snap := DocumentSnapshot{DocumentID: docID, Revision: rev, Content: content}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		// 同一版本已保存过，视为成功
		if isDuplicateKey(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (string, uint64, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var snap DocumentSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("revision DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return snap.Content, snap.Revision, true, nil
}

// 保留最近 keep 个快照，返回删除的行数
func (s *SnapshotStore) Prune(ctx context.Context, docID string, keep int) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var revs []uint64
	err := s.db.WithContext(ctx).Model(&DocumentSnapshot{}).
		Where("document_id = ?", docID).
		Order("revision DESC").
		Offset(keep).Limit(1).
		Pluck("revision", &revs).Error
	if err != nil || len(revs) == 0 {
		return 0, err
	}
	res := s.db.WithContext(ctx).
		Where("document_id = ? AND revision <= ?", docID, revs[0]).
		Delete(&DocumentSnapshot{})
	return res.RowsAffected, res.Error
}
