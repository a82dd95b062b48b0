package crawler

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectorsForURLFirstMatchWins(t *testing.T) {
	t.Parallel()

	sel := Selectors{
		Default: SelectorSet{Name: DefaultGroup, Hierarchy: HierarchySelectors{L0: "title"}},
		Named: []SelectorSet{
			{Name: "docs", URLPattern: regexp.MustCompile(`/docs`), Hierarchy: HierarchySelectors{Content: "p"}},
			{Name: "docs-api", URLPattern: regexp.MustCompile(`/docs/api`), Hierarchy: HierarchySelectors{Content: "pre"}},
			{Name: "unpatterned", Hierarchy: HierarchySelectors{Content: "div"}},
		},
	}

	require.Equal(t, "docs", sel.ForURL("https://example.com/docs/api/intro").Name)
	require.Equal(t, "docs", sel.ForURL("https://example.com/docs/").Name)
	require.Equal(t, DefaultGroup, sel.ForURL("https://example.com/blog").Name)
}

func TestSelectorsValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Selectors{}.Validate(), ErrMissingDefaultGroup)

	valid := Selectors{Default: SelectorSet{Hierarchy: HierarchySelectors{Content: "p"}}}
	require.NoError(t, valid.Validate())

	valid.Named = []SelectorSet{{Name: "blog"}}
	require.Error(t, valid.Validate())

	valid.Named = []SelectorSet{{Name: DefaultGroup, Hierarchy: HierarchySelectors{Content: "p"}}}
	require.Error(t, valid.Validate())
}

func TestHierarchySetGet(t *testing.T) {
	t.Parallel()

	var h Hierarchy
	for i, level := range Levels {
		h.Set(level, string(rune('a'+i)))
	}
	h.Set(Level("l9"), "ignored")
	require.Equal(t, Hierarchy{L0: "a", L1: "b", L2: "c", L3: "d", L4: "e", Content: "f"}, h)
	require.Equal(t, "c", h.Get(LevelL2))
	require.Empty(t, h.Get(Level("bogus")))
}
