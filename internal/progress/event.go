package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a crawl milestone.
type Stage string

// Crawl stages.
const (
	StageCrawlStart     Stage = "CRAWL_START"
	StageURLVisited     Stage = "URL_VISITED"
	StagePageScraped    Stage = "PAGE_SCRAPED"
	StagePageFailed     Stage = "PAGE_FAILED"
	StageRecordsIndexed Stage = "RECORDS_INDEXED"
	StageCrawlDone      Stage = "CRAWL_DONE"
)

// Event is one milestone of a crawl run.
type Event struct {
	// RunID is the 16-byte form of the crawl run UUID.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Site is the host label of URL, when the event is about a page.
	Site string
	URL  string
	// Records counts records extracted (PAGE_SCRAPED) or accepted by the
	// sink (RECORDS_INDEXED).
	Records int
	Links   int
	// StatusCode is the HTTP status of the page when known.
	StatusCode int
	Dur        time.Duration
	// Note carries short context such as an error message.
	Note string
}

// Validate rejects events that sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageRecordsIndexed:
	case StageURLVisited, StagePageScraped, StagePageFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Records < 0 || e.Links < 0 {
		return errors.New("counts must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns RunID as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// RunIDFromString parses a textual run id. Unparseable input yields the
// zero id, which Validate rejects.
func RunIDFromString(s string) [16]byte {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}
	}
	return [16]byte(id)
}

// StatusClass groups an HTTP status code into 2xx..5xx, or "other".
func StatusClass(code int) string {
	if code >= 200 && code < 600 {
		return fmt.Sprintf("%dxx", code/100)
	}
	return "other"
}
