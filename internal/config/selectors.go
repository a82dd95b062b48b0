package config

import (
	"fmt"
	"maps"
	"regexp"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

// HierarchyConfig lists the CSS selector of each level.
type HierarchyConfig struct {
	L0      string `mapstructure:"l0"`
	L1      string `mapstructure:"l1"`
	L2      string `mapstructure:"l2"`
	L3      string `mapstructure:"l3"`
	L4      string `mapstructure:"l4"`
	Content string `mapstructure:"content"`
}

func (h HierarchyConfig) selectors() crawler.HierarchySelectors {
	return crawler.HierarchySelectors{L0: h.L0, L1: h.L1, L2: h.L2, L3: h.L3, L4: h.L4, Content: h.Content}
}

// BasicAuthConfig holds HTTP basic credentials for a group.
type BasicAuthConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// SelectorGroup is one selector group as written in the config file. Unset
// fields fall back to the shared group.
type SelectorGroup struct {
	Name              string            `mapstructure:"name"`
	URLPattern        string            `mapstructure:"url_pattern"`
	Hierarchy         *HierarchyConfig  `mapstructure:"hierarchy"`
	Metadata          map[string]string `mapstructure:"metadata"`
	PageRank          *int              `mapstructure:"page_rank"`
	OnlyContentLevel  *bool             `mapstructure:"only_content_level"`
	ExcludeSelectors  []string          `mapstructure:"exclude_selectors"`
	UserAgent         string            `mapstructure:"user_agent"`
	BasicAuth         *BasicAuthConfig  `mapstructure:"basic_auth"`
	Headers           map[string]string `mapstructure:"headers"`
	RespectRobotsMeta *bool             `mapstructure:"respect_robots_meta"`
}

// SelectorsConfig holds the shared fallbacks, the mandatory default group
// and the named groups in match order.
type SelectorsConfig struct {
	Shared  SelectorGroup   `mapstructure:"shared"`
	Default *SelectorGroup  `mapstructure:"default"`
	Groups  []SelectorGroup `mapstructure:"groups"`
}

// Resolve merges the shared group under every group, compiles URL patterns
// and validates the result.
func (c SelectorsConfig) Resolve() (crawler.Selectors, error) {
	if c.Default == nil {
		return crawler.Selectors{}, crawler.ErrMissingDefaultGroup
	}
	def, err := c.Default.resolve(c.Shared, crawler.DefaultGroup, "")
	if err != nil {
		return crawler.Selectors{}, err
	}
	out := crawler.Selectors{Default: def}
	for i, g := range c.Groups {
		if g.URLPattern == "" {
			return crawler.Selectors{}, fmt.Errorf("selectors.groups[%d] (%q) needs a url_pattern", i, g.Name)
		}
		set, err := g.resolve(c.Shared, g.Name, g.URLPattern)
		if err != nil {
			return crawler.Selectors{}, err
		}
		out.Named = append(out.Named, set)
	}
	if err := out.Validate(); err != nil {
		return crawler.Selectors{}, err
	}
	return out, nil
}

func (g SelectorGroup) resolve(shared SelectorGroup, name, pattern string) (crawler.SelectorSet, error) {
	set := crawler.SelectorSet{
		Name:              name,
		Metadata:          maps.Clone(firstMap(g.Metadata, shared.Metadata)),
		PageRank:          deref(firstPtr(g.PageRank, shared.PageRank), 0),
		OnlyContentLevel:  deref(firstPtr(g.OnlyContentLevel, shared.OnlyContentLevel), true),
		ExcludeSelectors:  firstSlice(g.ExcludeSelectors, shared.ExcludeSelectors),
		UserAgent:         firstString(g.UserAgent, shared.UserAgent),
		Headers:           maps.Clone(firstMap(g.Headers, shared.Headers)),
		RespectRobotsMeta: deref(firstPtr(g.RespectRobotsMeta, shared.RespectRobotsMeta), false),
	}
	if h := firstPtr(g.Hierarchy, shared.Hierarchy); h != nil {
		set.Hierarchy = h.selectors()
	}
	if auth := firstPtr(g.BasicAuth, shared.BasicAuth); auth != nil {
		set.BasicAuth = &crawler.BasicAuth{User: auth.User, Password: auth.Password}
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return crawler.SelectorSet{}, fmt.Errorf("compile url_pattern of selector group %q: %w", name, err)
		}
		set.URLPattern = re
	}
	return set, nil
}

func firstPtr[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstSlice(a, b []string) []string {
	if len(a) > 0 {
		return append([]string(nil), a...)
	}
	return append([]string(nil), b...)
}

func firstMap(a, b map[string]string) map[string]string {
	if len(a) > 0 {
		return a
	}
	return b
}
