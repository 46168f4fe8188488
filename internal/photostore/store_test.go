package photostore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 5, 7, 42*int(time.Millisecond), time.UTC)

	assert.Equal(t, "emotion_photos/alice/checkin_20260302_090507_042.jpg", CheckinKey("alice", at))
	assert.Equal(t, "faces_db/alice/face_2.jpg", FaceKey("alice", 2))
	assert.Equal(t, "faces_db/_/face_1.jpg", FaceKey("..", 1))
	assert.Equal(t, "faces_db/a_b/face_1.jpg", FaceKey("a/b", 1))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save(ctx, "emotion_photos/alice/x.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "emotion_photos/alice/x.jpg", path)

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestLocalStoreStaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save(ctx, "../../etc/evil.jpg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/evil.jpg", path)

	_, err = store.Save(ctx, "  ", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
