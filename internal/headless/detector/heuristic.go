// Package detector decides when a statically fetched page should be
// re-rendered in a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

const (
	defaultMinTextBytes = 200
	defaultScriptShare  = 25
)

// Heuristic promotes pages that look like client-rendered applications.
type Heuristic struct {
	// MinTextBytes is the visible text below which a script-heavy page is
	// considered unrendered.
	MinTextBytes int
	// ScriptSharePercent is the share of the document taken by inline
	// scripts at which a short page is promoted.
	ScriptSharePercent int
}

// NewHeuristic returns a detector. Zero arguments select the defaults.
func NewHeuristic(minTextBytes, scriptSharePercent int) *Heuristic {
	if minTextBytes <= 0 {
		minTextBytes = defaultMinTextBytes
	}
	if scriptSharePercent <= 0 {
		scriptSharePercent = defaultScriptShare
	}
	return &Heuristic{MinTextBytes: minTextBytes, ScriptSharePercent: scriptSharePercent}
}

var appShellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
	[]byte("data-v-app"),
}

// ShouldPromote reports whether probe looks like an empty application shell.
func (h *Heuristic) ShouldPromote(probe crawler.FetchResponse) bool {
	if probe.StatusCode != http.StatusOK || probe.UsedHeadless {
		return false
	}
	if len(bytes.TrimSpace(probe.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(probe.Body))
	if err != nil {
		return false
	}

	scriptBytes := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	textBytes := len(strings.Join(strings.Fields(body.Text()), " "))

	if textBytes >= h.MinTextBytes {
		return false
	}
	for _, marker := range appShellMarkers {
		if bytes.Contains(probe.Body, marker) {
			return true
		}
	}
	return scriptBytes*100/len(probe.Body) >= h.ScriptSharePercent
}
