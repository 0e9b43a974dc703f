package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "user1/report.txt", strings.NewReader("hello")))

	rc, err := store.Get(ctx, "user1/report.txt")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStore_GetMissing(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "pending/a.jsonl", strings.NewReader("a")))
	require.NoError(t, store.Put(ctx, "pending/b.jsonl", strings.NewReader("bb")))
	require.NoError(t, store.Put(ctx, "done/c.jsonl", strings.NewReader("c")))

	objects, err := store.List(ctx, "pending/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "pending/a.jsonl", objects[0].Key)
	assert.Equal(t, int64(2), objects[1].Size)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "x.txt", strings.NewReader("x")))
	require.NoError(t, store.Delete(ctx, "x.txt"))

	_, err := store.Get(ctx, "x.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, "x.txt"))
}

func TestLocalStore_Move(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "pending/batch.jsonl", strings.NewReader("v")))
	require.NoError(t, store.Move(ctx, "pending/batch.jsonl", "done/batch.jsonl"))

	_, err := store.Get(ctx, "pending/batch.jsonl")
	assert.ErrorIs(t, err, ErrNotFound)

	rc, err := store.Get(ctx, "done/batch.jsonl")
	require.NoError(t, err)
	rc.Close()
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.Error(t, store.Put(ctx, "../escape.txt", strings.NewReader("x")))
	_, err := store.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStore_PresignUnsupported(t *testing.T) {
	_, err := newTestStore(t).PresignPut(context.Background(), "k", "text/plain", time.Minute)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}
