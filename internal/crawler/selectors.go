package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultGroup is the name of the fallback selector group.
const DefaultGroup = "default"

// ErrMissingDefaultGroup is returned when no usable default group is configured.
var ErrMissingDefaultGroup = errors.New("selectors.default must define hierarchy selectors")

// HierarchySelectors maps each level to a selector expression.
type HierarchySelectors struct {
	L0      string
	L1      string
	L2      string
	L3      string
	L4      string
	Content string
}

// ForLevel returns the selector configured for level.
func (h HierarchySelectors) ForLevel(level Level) string {
	switch level {
	case LevelL0:
		return h.L0
	case LevelL1:
		return h.L1
	case LevelL2:
		return h.L2
	case LevelL3:
		return h.L3
	case LevelL4:
		return h.L4
	case LevelContent:
		return h.Content
	default:
		return ""
	}
}

// IsEmpty reports whether no level has a selector.
func (h HierarchySelectors) IsEmpty() bool {
	for _, level := range Levels {
		if strings.TrimSpace(h.ForLevel(level)) != "" {
			return false
		}
	}
	return true
}

// BasicAuth holds credentials sent as an Authorization header.
type BasicAuth struct {
	User     string
	Password string
}

// SelectorSet is a fully resolved selector group.
type SelectorSet struct {
	Name              string
	Hierarchy         HierarchySelectors
	Metadata          map[string]string
	URLPattern        *regexp.Regexp
	PageRank          int
	OnlyContentLevel  bool
	ExcludeSelectors  []string
	UserAgent         string
	BasicAuth         *BasicAuth
	Headers           map[string]string
	RespectRobotsMeta bool
}

// Selectors holds the default group and the named groups in declaration order.
type Selectors struct {
	Default SelectorSet
	Named   []SelectorSet
}

// ForURL returns the first named group whose URL pattern matches normalizedURL,
// falling back to the default group.
func (s Selectors) ForURL(normalizedURL string) SelectorSet {
	for _, set := range s.Named {
		if set.URLPattern == nil {
			continue
		}
		if set.URLPattern.MatchString(strings.TrimSuffix(normalizedURL, "/")) {
			return set
		}
	}
	return s.Default
}

// Validate checks that the default group is usable and named groups are well formed.
func (s Selectors) Validate() error {
	if s.Default.Hierarchy.IsEmpty() {
		return ErrMissingDefaultGroup
	}
	for _, set := range s.Named {
		if set.Name == "" {
			return fmt.Errorf("selector groups must be named")
		}
		if set.Name == DefaultGroup {
			return fmt.Errorf("selector group %q is reserved", DefaultGroup)
		}
		if set.Hierarchy.IsEmpty() {
			return fmt.Errorf("selector group %q has no hierarchy selectors", set.Name)
		}
	}
	return nil
}
