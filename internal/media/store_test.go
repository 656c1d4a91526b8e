package media

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/stretchr/testify/require"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return "photo-" + string(rune('0'+s.next)), nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), StoreConfig{
		BucketURL:  "mem://",
		IDProvider: &sequenceIDs{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveStoresUnderPrefixWithLowercasedExtension(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	key, err := store.Save(ctx, "/proposals/", "Apple.JPG", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, "proposals/photo-1.jpg", key)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	reader, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(body))
}

func TestSaveRejectsUnsupportedExtension(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Save(context.Background(), "proposals", "notes.txt", strings.NewReader("text"))
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExistsAndOpenOnMissingKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = store.Exists(ctx, "proposals/missing.png")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.Open(ctx, "proposals/missing.png")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteRemovesKeyAndIgnoresMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	key, err := store.Save(ctx, "proposals", "apple.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, key))
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, ""))
}
