// Package budget caps how many headless renders each domain may consume in
// one crawl.
package budget

import (
	"sync"

	"github.com/JakeFAU/site-spider/internal/frontier"
)

// Headless counts headless renders per domain. A nil *Headless or a
// non-positive limit allows everything.
type Headless struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
}

// NewHeadless returns a budget of limit renders per domain.
func NewHeadless(limit int) *Headless {
	return &Headless{limit: limit, used: make(map[string]int)}
}

// Allow reserves one render for the domain of rawURL.
func (h *Headless) Allow(rawURL string) bool {
	if h == nil || h.limit <= 0 {
		return true
	}
	domain := frontier.Domain(rawURL)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.used[domain] >= h.limit {
		return false
	}
	h.used[domain]++
	return true
}

// Used returns the renders consumed by domain.
func (h *Headless) Used(domain string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used[domain]
}
