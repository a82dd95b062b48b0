package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

func breadcrumbMatches() crawler.RawSelectorMatches {
	return crawler.RawSelectorMatches{
		SelectorMatches: []string{"Title", "H1a", "H2", "H3", "Body one", "H1b", "Body two"},
		SelectorMatchesByLevel: map[crawler.Level][]string{
			crawler.LevelL0:      {"Title"},
			crawler.LevelL1:      {"H1a", "H1b"},
			crawler.LevelL2:      {"H2"},
			crawler.LevelL3:      {"H3"},
			crawler.LevelContent: {"Body one", "Body two"},
		},
		Title: "Title",
	}
}

func TestExtractBreadcrumbOverwritesWithoutReset(t *testing.T) {
	t.Parallel()

	records := Extract("https://example.com/a", breadcrumbMatches(), Options{PageRank: 3})
	require.Len(t, records, 7)

	h3 := records[3]
	require.Equal(t, "H3", h3.Content)
	require.Equal(t, crawler.Hierarchy{L0: "Title", L1: "H1a", L2: "H2", L3: "H3"}, h3.Hierarchy)
	require.Equal(t, 70, h3.Weight.Level)
	require.Equal(t, 3, h3.Weight.PageRank)

	last := records[6]
	require.Equal(t, crawler.Hierarchy{
		L0: "Title", L1: "H1b", L2: "H2", L3: "H3", Content: "Body two",
	}, last.Hierarchy)
	require.Zero(t, last.Weight.Level)
	require.Equal(t, "Title", last.Title)
	require.Equal(t, "https://example.com/a", last.URL)
}

func TestExtractSnapshotsAreIndependent(t *testing.T) {
	t.Parallel()

	records := Extract("u", breadcrumbMatches(), Options{})
	require.Equal(t, "H1a", records[4].Hierarchy.L1)
	require.Equal(t, "H1b", records[6].Hierarchy.L1)
}

func TestExtractOnlyContentLevel(t *testing.T) {
	t.Parallel()

	meta := map[string]string{"lang": "en"}
	records := Extract("u", breadcrumbMatches(), Options{OnlyContentLevel: true, Metadata: meta})
	require.Len(t, records, 2)
	require.Equal(t, "Body one", records[0].Content)
	require.Equal(t, "H1a", records[0].Hierarchy.L1)
	require.Equal(t, "H1b", records[1].Hierarchy.L1)

	meta["lang"] = "fr"
	require.Equal(t, "en", records[0].Metadata["lang"])
}

func TestExtractSkipsEmptyAndUnresolved(t *testing.T) {
	t.Parallel()

	matches := crawler.RawSelectorMatches{
		SelectorMatches: []string{"", "orphan", "C"},
		SelectorMatchesByLevel: map[crawler.Level][]string{
			crawler.LevelContent: {"C"},
		},
	}
	records := Extract("u", matches, Options{})
	require.Len(t, records, 1)
	require.Equal(t, "C", records[0].Content)
	require.Empty(t, records[0].Hierarchy.L0)
}

func TestExtractEndToEndShape(t *testing.T) {
	t.Parallel()

	matches := crawler.RawSelectorMatches{
		SelectorMatches: []string{"T", "H", "C"},
		SelectorMatchesByLevel: map[crawler.Level][]string{
			crawler.LevelL0:      {"T"},
			crawler.LevelL1:      {"H"},
			crawler.LevelContent: {"C"},
		},
		Title: "T",
	}
	records := Extract("https://example.com", matches, Options{OnlyContentLevel: true})
	require.Len(t, records, 1)
	require.Equal(t, "C", records[0].Content)
	require.Equal(t, crawler.Hierarchy{L0: "T", L1: "H", Content: "C"}, records[0].Hierarchy)
}

func TestMatchLevelFirstLevelWins(t *testing.T) {
	t.Parallel()

	byLevel := map[crawler.Level][]string{
		crawler.LevelL2:      {"Same"},
		crawler.LevelContent: {"Same"},
	}
	level, ok := MatchLevel(byLevel, "Same")
	require.True(t, ok)
	require.Equal(t, crawler.LevelL2, level)

	_, ok = MatchLevel(byLevel, "missing")
	require.False(t, ok)
}

func TestLevelWeight(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, LevelWeight(crawler.LevelL0))
	require.Equal(t, 80, LevelWeight(crawler.LevelL2))
	require.Equal(t, 60, LevelWeight(crawler.LevelL4))
	require.Zero(t, LevelWeight(crawler.LevelContent))
	require.Zero(t, LevelWeight(""))
	require.Zero(t, LevelWeight("lx"))
	require.Zero(t, LevelWeight("l"))
}

func TestRecordIDStable(t *testing.T) {
	t.Parallel()

	require.Equal(t, RecordID("u", "c"), RecordID("u", "c"))
	require.NotEqual(t, RecordID("u", "c"), RecordID("u", "d"))
	require.Len(t, RecordID("u", "c"), 64)
}
