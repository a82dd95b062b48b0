// Package hierarchy turns the ordered selector matches of one page into
// records that carry a breadcrumb of the headings seen before them.
package hierarchy

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/hash/sha256"
)

// Options tune record emission for one page.
type Options struct {
	// OnlyContentLevel emits records for content matches only. Heading
	// matches still update the breadcrumb.
	OnlyContentLevel bool
	PageRank         int
	Metadata         map[string]string
}

// Extract walks matches.SelectorMatches in document order and returns one
// record per qualifying match.
func Extract(url string, matches crawler.RawSelectorMatches, opts Options) []crawler.ScrapedRecord {
	var (
		breadcrumb crawler.Hierarchy
		records    []crawler.ScrapedRecord
	)
	for _, text := range matches.SelectorMatches {
		if text == "" {
			continue
		}
		level, ok := MatchLevel(matches.SelectorMatchesByLevel, text)
		if !ok {
			continue
		}
		breadcrumb.Set(level, text)
		if opts.OnlyContentLevel && level != crawler.LevelContent {
			continue
		}
		records = append(records, crawler.ScrapedRecord{
			UniqueID:  RecordID(url, text),
			URL:       url,
			Content:   text,
			Title:     matches.Title,
			Hierarchy: breadcrumb,
			Metadata:  maps.Clone(opts.Metadata),
			Weight: crawler.Weight{
				Level:    LevelWeight(level),
				PageRank: opts.PageRank,
			},
		})
	}
	return records
}

// MatchLevel returns the first level, shallowest first, whose own matches
// contain text exactly.
func MatchLevel(byLevel map[crawler.Level][]string, text string) (crawler.Level, bool) {
	for _, level := range crawler.Levels {
		if slices.Contains(byLevel[level], text) {
			return level, true
		}
	}
	return "", false
}

// LevelWeight ranks heading levels: l0 is 100, each deeper level 10 less.
// Content and unrecognized levels weigh 0.
func LevelWeight(level crawler.Level) int {
	s := string(level)
	if !strings.HasPrefix(s, "l") {
		return 0
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0
	}
	return 100 - 10*n
}

// RecordID is the content-addressed identity of a record.
func RecordID(url, content string) string {
	return sha256.Sum([]byte(url), []byte(content))
}
