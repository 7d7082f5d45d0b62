package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcore/backend/internal/collab"
)

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, isDuplicateKey(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isDuplicateKey(errors.New("boom")))
	assert.False(t, isDuplicateKey(nil))
}

// 需要真实 MySQL：COLLAB_TEST_MYSQL_DSN="root:pass@tcp(127.0.0.1:3306)/collab_test?parseTime=true"
func openTestDB(t *testing.T) *DocumentStore {
	t.Helper()
	dsn := os.Getenv("COLLAB_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skip: COLLAB_TEST_MYSQL_DSN not set")
	}
	db, err := InitMySQL(dsn, false)
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	return NewDocumentStore(db)
}

func TestDocumentAndSnapshotStore(t *testing.T) {
	docs := openTestDB(t)
	snaps := NewSnapshotStore(docs.db)
	ctx := context.Background()

	title := "doc-" + uuid.NewString()
	id, err := docs.CreateDocument(ctx, 7, title)
	require.NoError(t, err)

	_, err = docs.CreateDocument(ctx, 7, title)
	assert.ErrorIs(t, err, ErrTitleTaken)

	got, err := docs.GetDocumentID(ctx, title)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = docs.GetDocumentID(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, collab.ErrDocumentNotFound)

	ok, err := docs.DocumentExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, found, err := snaps.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, snaps.SaveDocumentSnapshot(ctx, id, 1, "a"))
	require.NoError(t, snaps.SaveDocumentSnapshot(ctx, id, 3, "abc"))
	// 重复版本不报错
	require.NoError(t, snaps.SaveDocumentSnapshot(ctx, id, 3, "abc"))

	content, rev, found, err := snaps.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(3), rev)
	assert.Equal(t, "abc", content)

	n, err := snaps.Prune(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := docs.ListByOwner(ctx, 7, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}
