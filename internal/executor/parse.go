package executor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

const robotsMetaSelector = "head > meta[name='robots']"

// Parse evaluates set against an HTML document. baseURL resolves relative
// links.
func Parse(body []byte, baseURL string, set crawler.SelectorSet) (crawler.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse base url: %w", err)
	}

	for _, sel := range set.ExcludeSelectors {
		if strings.TrimSpace(sel) != "" {
			doc.Find(sel).Remove()
		}
	}

	result := crawler.PageResult{
		Matches:  matches(doc, set.Hierarchy),
		Metadata: metadata(doc, set.Metadata),
		Links:    links(doc, base),
	}
	if set.RespectRobotsMeta {
		result.NoIndex = noIndex(doc)
	}
	return result, nil
}

// ValidateSelectors reports the first selector in set that does not compile.
func ValidateSelectors(set crawler.SelectorSet) error {
	check := func(kind, sel string) error {
		if strings.TrimSpace(sel) == "" {
			return nil
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("group %q: invalid %s selector %q: %w", set.Name, kind, sel, err)
		}
		return nil
	}
	for _, level := range crawler.Levels {
		if err := check(string(level), set.Hierarchy.ForLevel(level)); err != nil {
			return err
		}
	}
	for key, sel := range set.Metadata {
		if err := check("metadata "+key, sel); err != nil {
			return err
		}
	}
	for _, sel := range set.ExcludeSelectors {
		if err := check("exclude", sel); err != nil {
			return err
		}
	}
	return nil
}

func matches(doc *goquery.Document, h crawler.HierarchySelectors) crawler.RawSelectorMatches {
	out := crawler.RawSelectorMatches{SelectorMatchesByLevel: make(map[crawler.Level][]string)}
	var union []string
	for _, level := range crawler.Levels {
		sel := strings.TrimSpace(h.ForLevel(level))
		if sel == "" {
			continue
		}
		union = append(union, sel)
		out.SelectorMatchesByLevel[level] = texts(doc.Find(sel))
	}
	if len(union) == 0 {
		return out
	}
	// A group selector yields each node once, in document order.
	out.SelectorMatches = texts(doc.Find(strings.Join(union, ", ")))
	if titles := out.SelectorMatchesByLevel[crawler.LevelL0]; len(titles) > 0 {
		out.Title = titles[0]
	}
	return out
}

func texts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func metadata(doc *goquery.Document, selectors map[string]string) map[string]string {
	if len(selectors) == 0 {
		return nil
	}
	out := make(map[string]string, len(selectors))
	for key, sel := range selectors {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		var values []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr("content")
			if !ok {
				v = s.Text()
			}
			if v = cleanText(v); v != "" {
				values = append(values, v)
			}
		})
		if len(values) > 0 {
			out[key] = strings.Join(values, ",")
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func links(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		link := strings.TrimRight(abs.String(), "/")
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})
	return out
}

func noIndex(doc *goquery.Document) bool {
	found := false
	doc.Find(robotsMetaSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		if strings.Contains(strings.ToLower(content), "noindex") {
			found = true
		}
		return !found
	})
	return found
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
