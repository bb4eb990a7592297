package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestKVStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	got, err := db.Get(ctx, "offers")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.Set(ctx, "offers", []byte(`{"version":1,"data":[]}`)))
	require.NoError(t, db.Set(ctx, "syncQueue", []byte(`first`)))
	require.NoError(t, db.Set(ctx, "syncQueue", []byte(`second`)))

	got, err = db.Get(ctx, "syncQueue")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	keys, err := db.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"offers", "syncQueue"}, keys)

	require.NoError(t, db.Delete(ctx, "offers"))
	got, err = db.Get(ctx, "offers")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKVStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "acceptanceTimestamps", []byte("ts")))
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get(ctx, "acceptanceTimestamps")
	require.NoError(t, err)
	assert.Equal(t, "ts", string(got))
}

func TestKVStore_EmptyValue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, "empty", nil))
	got, err := db.Get(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	_, err = db.Get(ctx, "offers")
	assert.Error(t, err)
	assert.Error(t, db.Set(ctx, "offers", []byte("x")))
	assert.Error(t, db.Delete(ctx, "offers"))
	_, err = db.Keys(ctx)
	assert.Error(t, err)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	assert.NoError(t, db.PingContext(context.Background()))
}
