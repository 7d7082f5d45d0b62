package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"collabcore/backend/internal/collab"
)

var ErrTitleTaken = errors.New("TITLE_TAKEN")

var _ collab.DocumentStore = (*DocumentStore)(nil)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc := Document{ID: uuid.NewString(), OwnerID: ownerID, Title: title}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if isDuplicateKey(err) {
			return "", fmt.Errorf("%w: %s", ErrTitleTaken, title)
		}
		return "", err
	}
	return doc.ID, nil
}

func (s *DocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc Document
	err := s.db.WithContext(ctx).Select("id").Where("title = ?", title).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: title %q", collab.ErrDocumentNotFound, title)
	}
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *DocumentStore) DocumentExists(ctx context.Context, docID string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", docID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByOwner 按创建时间倒序列出某用户的文档
func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]Document, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}
