package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-spider/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing dir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "a", "b")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.ErrorContains(t, err, "not a directory")
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "stats/dump.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "stats", "dump.json"), uri)

	// #nosec G304 -- reads from the test temp dir.
	data, err := os.ReadFile(filepath.Join(dir, "stats", "dump.json"))
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	_, err = store.PutObject(context.Background(), "stats/dump.json", "", strings.NewReader("v2"))
	require.NoError(t, err)
	// #nosec G304 -- reads from the test temp dir.
	data, err = os.ReadFile(filepath.Join(dir, "stats", "dump.json"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "stats"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "../escape.txt", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "escapes")
}
