// Package frontier tracks which URLs a crawl has seen and decides which newly
// discovered URLs are worth visiting.
package frontier

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Config seeds a Frontier.
type Config struct {
	// Seeds are the start URLs. Their domains become the allowed domains when
	// AllowedDomains is empty.
	Seeds []string
	// AllowedDomains restricts the crawl to these hostnames (without www.).
	AllowedDomains []string
	// IgnorePatterns are regular expressions matched against raw URLs.
	IgnorePatterns []string
}

// Frontier is the URL registry of one crawl. It is safe for concurrent use.
type Frontier struct {
	mu             sync.Mutex
	visited        map[string]struct{}
	allowedDomains map[string]struct{}
	ignore         []*regexp.Regexp
	remaining      int
}

// New compiles cfg into a Frontier.
func New(cfg Config) (*Frontier, error) {
	ignore := make([]*regexp.Regexp, 0, len(cfg.IgnorePatterns))
	for _, pattern := range cfg.IgnorePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, re)
	}

	domains := cfg.AllowedDomains
	if len(domains) == 0 {
		domains = cfg.Seeds
	}
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		host := Domain(d)
		if host == "" {
			continue
		}
		allowed[host] = struct{}{}
	}

	return &Frontier{
		visited:        make(map[string]struct{}),
		allowedDomains: allowed,
		ignore:         ignore,
	}, nil
}

// ShouldVisit reports whether rawURL is unvisited, not ignored, and inside the
// allowed domains.
func (f *Frontier) ShouldVisit(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shouldVisitLocked(rawURL)
}

// MarkVisited records rawURL. It returns true when the URL was not known
// before, in which case the remaining queue size grows by one.
func (f *Frontier) MarkVisited(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markLocked(rawURL)
}

// Admit checks and marks rawURL in one step so that two workers discovering
// the same link cannot both enqueue it.
func (f *Frontier) Admit(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.shouldVisitLocked(rawURL) {
		return false
	}
	return f.markLocked(rawURL)
}

// Visited reports whether rawURL has been marked.
func (f *Frontier) Visited(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[Normalize(rawURL)]
	return ok
}

// TaskStarted accounts for a URL leaving the queue to be fetched.
func (f *Frontier) TaskStarted() {
	f.dequeue()
}

// TaskSkipped accounts for a URL leaving the queue unfetched after a stop.
func (f *Frontier) TaskSkipped() {
	f.dequeue()
}

func (f *Frontier) dequeue() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining > 0 {
		f.remaining--
	}
}

// RemainingQueueSize is the number of admitted URLs not yet started.
func (f *Frontier) RemainingQueueSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

// VisitedCount is the number of distinct normalized URLs seen.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

func (f *Frontier) shouldVisitLocked(rawURL string) bool {
	if _, ok := f.visited[Normalize(rawURL)]; ok {
		return false
	}
	for _, re := range f.ignore {
		if re.MatchString(rawURL) {
			return false
		}
	}
	host := Domain(rawURL)
	if host == "" {
		return false
	}
	_, ok := f.allowedDomains[host]
	return ok
}

func (f *Frontier) markLocked(rawURL string) bool {
	key := Normalize(rawURL)
	if _, ok := f.visited[key]; ok {
		return false
	}
	f.visited[key] = struct{}{}
	f.remaining++
	return true
}

// Normalize returns the dedup identity of rawURL: lower-case host without
// www., no query, no fragment, no trailing slash.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return normalizeString(rawURL)
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Scheme = strings.ToLower(u.Scheme)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return strings.TrimRight(u.String(), "/")
}

func normalizeString(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.Replace(s, "://www.", "://", 1)
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// Domain returns the hostname of rawURL without www. and port. A missing
// scheme is treated as https. Malformed input yields "".
func Domain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
