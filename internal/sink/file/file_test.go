package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

func readIndex(t *testing.T, path string) []crawler.Document {
	t.Helper()
	// #nosec G304 -- path is inside the test temp dir.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var docs []crawler.Document
	require.NoError(t, json.Unmarshal(data, &docs))
	return docs
}

func TestFinishWritesSortedDescending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index", "records.json")
	s, err := New(Config{Path: path}, false, nil)
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.AddRecords(ctx, []crawler.ScrapedRecord{
		{UniqueID: "b", Content: "two"},
		{UniqueID: "c", Content: "three"},
	}))
	require.NoError(t, s.AddRecords(ctx, []crawler.ScrapedRecord{{UniqueID: "a", Content: "one"}}))
	require.NoError(t, s.Finish(ctx))

	docs := readIndex(t, path)
	require.Len(t, docs, 3)
	require.Equal(t, "c", docs[0].UniqueID)
	require.Equal(t, "b", docs[1].UniqueID)
	require.Equal(t, "a", docs[2].UniqueID)
	require.Equal(t, crawler.OriginType, docs[0].OriginType)

	// #nosec G304 -- path is inside the test temp dir.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"uniqueId": "c"`)
	require.Contains(t, string(raw), `"originType": "siteSearchRecord"`)
}

func TestFinishReplacesPreviousIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	s, err := New(Config{Path: path}, false, nil)
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.AddRecords(ctx, []crawler.ScrapedRecord{{UniqueID: "first"}}))
	require.NoError(t, s.Finish(ctx))

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Finish(ctx))
	require.Empty(t, readIndex(t, path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFinishMergesForeign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	existing := []crawler.Document{
		{ScrapedRecord: crawler.ScrapedRecord{UniqueID: "manual-1"}, OriginType: "manual"},
		{ScrapedRecord: crawler.ScrapedRecord{UniqueID: "stale"}, OriginType: crawler.OriginType},
	}
	data, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := New(Config{Path: path}, true, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.AddRecords(ctx, []crawler.ScrapedRecord{{UniqueID: "fresh"}}))
	require.NoError(t, s.Finish(ctx))

	docs := readIndex(t, path)
	require.Len(t, docs, 2)
	require.Equal(t, "manual-1", docs[0].UniqueID)
	require.Equal(t, "manual", docs[0].OriginType)
	require.Equal(t, "fresh", docs[1].UniqueID)
}

func TestFinishRejectsCorruptIndexWhenMerging(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	s, err := New(Config{Path: path}, true, nil)
	require.NoError(t, err)
	require.ErrorContains(t, s.Finish(context.Background()), "decode existing index")
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, false, nil)
	require.Error(t, err)
}
