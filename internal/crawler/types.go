package crawler

import (
	"net/http"
	"time"
)

// Level names one rung of the content hierarchy.
type Level string

// Hierarchy levels, shallowest first.
const (
	LevelL0      Level = "l0"
	LevelL1      Level = "l1"
	LevelL2      Level = "l2"
	LevelL3      Level = "l3"
	LevelL4      Level = "l4"
	LevelContent Level = "content"
)

// Levels lists every level in the order used for level resolution.
var Levels = []Level{LevelL0, LevelL1, LevelL2, LevelL3, LevelL4, LevelContent}

// OriginType marks records produced by a crawl so sinks can tell them apart
// from records that were indexed by other means.
const OriginType = "siteSearchRecord"

// Hierarchy is the breadcrumb attached to a record: the most recent text seen
// at each level up to the record's position in the document.
type Hierarchy struct {
	L0      string `json:"l0" bson:"l0"`
	L1      string `json:"l1" bson:"l1"`
	L2      string `json:"l2" bson:"l2"`
	L3      string `json:"l3" bson:"l3"`
	L4      string `json:"l4" bson:"l4"`
	Content string `json:"content" bson:"content"`
}

// Set overwrites the text stored at level. Unknown levels are ignored.
func (h *Hierarchy) Set(level Level, text string) {
	switch level {
	case LevelL0:
		h.L0 = text
	case LevelL1:
		h.L1 = text
	case LevelL2:
		h.L2 = text
	case LevelL3:
		h.L3 = text
	case LevelL4:
		h.L4 = text
	case LevelContent:
		h.Content = text
	}
}

// Get returns the text stored at level.
func (h Hierarchy) Get(level Level) string {
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

// Weight carries the ranking hints stored with every record.
type Weight struct {
	Level    int `json:"level" bson:"level"`
	PageRank int `json:"pageRank" bson:"pageRank"`
}

// ScrapedRecord is one indexable unit of page content.
type ScrapedRecord struct {
	UniqueID  string            `json:"uniqueId" bson:"_id"`
	URL       string            `json:"url" bson:"url"`
	Content   string            `json:"content" bson:"content"`
	Title     string            `json:"title" bson:"title"`
	Hierarchy Hierarchy         `json:"hierarchy" bson:"hierarchy"`
	Metadata  map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Weight    Weight            `json:"weight" bson:"weight"`
}

// Document is a record as a sink stores it. OriginType separates crawl
// records from foreign ones that were indexed by other means.
type Document struct {
	ScrapedRecord `bson:",inline"`
	OriginType    string `json:"originType" bson:"originType"`
}

// NewDocument tags r as a crawl record.
func NewDocument(r ScrapedRecord) Document {
	return Document{ScrapedRecord: r, OriginType: OriginType}
}

// Foreign reports whether d was not produced by a crawl.
func (d Document) Foreign() bool {
	return d.OriginType != OriginType
}

// RawSelectorMatches is what the page executor reports for one page.
type RawSelectorMatches struct {
	// SelectorMatches holds every non-empty match of any hierarchy selector in
	// document order. A node matched by two selectors appears once.
	SelectorMatches []string
	// SelectorMatchesByLevel holds the matches of each level's selector alone.
	SelectorMatchesByLevel map[Level][]string
	// Title is the first l0 match, or empty.
	Title string
}

// PageRequest asks the executor to load URL and evaluate Selectors.
type PageRequest struct {
	URL       string
	Selectors SelectorSet
}

// PageResult is the executor's view of a loaded page.
type PageResult struct {
	Matches    RawSelectorMatches
	Metadata   map[string]string
	Links      []string
	NoIndex    bool
	FinalURL   string
	StatusCode int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL           string
	UserAgent     string
	Headers       http.Header
	RespectRobots bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// CrawlState is a point-in-time snapshot of a crawl's counters.
type CrawlState struct {
	RunID              string    `json:"run_id"`
	VisitedURLs        int       `json:"visited_urls"`
	RemainingQueueSize int       `json:"remaining_queue_size"`
	ScrapedURLs        int       `json:"scraped_urls"`
	FailedURLs         int       `json:"failed_urls"`
	IndexedRecords     int       `json:"indexed_records"`
	Stopping           bool      `json:"stopping"`
	LastStartTime      time.Time `json:"last_start_time"`
}
