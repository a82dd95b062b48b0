// Package executor loads pages and evaluates selector groups against them.
package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/metrics"
	"github.com/JakeFAU/site-spider/internal/policy/budget"
)

// ErrRobotsDisallowed is returned when robots.txt forbids a URL.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx page.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// StatusCode returns the HTTP status of the page.
func (e *StatusError) StatusCode() int { return e.Code }

// Deps are the collaborators of an Executor. Only Probe is required.
type Deps struct {
	Probe    crawler.Fetcher
	Headless crawler.Fetcher
	Detector crawler.HeadlessDetector
	Robots   crawler.RobotsPolicy
	Limiter  crawler.RateLimiter
	Budget   *budget.Headless
	Metrics  *metrics.Metrics
}

// Executor implements crawler.PageExecutor.
type Executor struct {
	deps   Deps
	logger *zap.Logger
}

// New validates deps and returns an Executor.
func New(deps Deps, logger *zap.Logger) (*Executor, error) {
	if deps.Probe == nil {
		return nil, errors.New("executor requires a probe fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{deps: deps, logger: logger}, nil
}

// Execute fetches request.URL, promoting to the headless fetcher when the
// detector asks for it, and parses the result.
func (e *Executor) Execute(ctx context.Context, request crawler.PageRequest) (crawler.PageResult, error) {
	if e.deps.Robots != nil && !e.deps.Robots.Allowed(ctx, request.URL) {
		return crawler.PageResult{}, fmt.Errorf("%s: %w", request.URL, ErrRobotsDisallowed)
	}
	if e.deps.Limiter != nil {
		if err := e.deps.Limiter.Wait(ctx, request.URL); err != nil {
			return crawler.PageResult{}, err
		}
	}

	fetchReq := FetchRequest(request)
	resp, err := e.deps.Probe.Fetch(ctx, fetchReq)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("probe fetch: %w", err)
	}
	resp = e.maybePromote(ctx, fetchReq, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return crawler.PageResult{}, &StatusError{URL: request.URL, Code: resp.StatusCode}
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = request.URL
	}
	result, err := Parse(resp.Body, finalURL, request.Selectors)
	if err != nil {
		return crawler.PageResult{}, err
	}
	result.FinalURL = finalURL
	result.StatusCode = resp.StatusCode
	e.deps.Metrics.ObservePage(request.URL, pageStatus(result), len(resp.Body))
	return result, nil
}

func (e *Executor) maybePromote(
	ctx context.Context,
	req crawler.FetchRequest,
	probe crawler.FetchResponse,
) crawler.FetchResponse {
	if e.deps.Headless == nil || e.deps.Detector == nil || !e.deps.Detector.ShouldPromote(probe) {
		return probe
	}
	if !e.deps.Budget.Allow(req.URL) {
		e.logger.Debug("headless budget exhausted", zap.String("url", req.URL))
		return probe
	}
	rendered, err := e.deps.Headless.Fetch(ctx, req)
	if err != nil {
		e.logger.Warn("headless render failed, using probe", zap.String("url", req.URL), zap.Error(err))
		return probe
	}
	e.deps.Metrics.ObserveHeadlessPromotion()
	return rendered
}

// FetchRequest builds the transport request for a page, folding the group's
// headers and basic auth credentials into one header set.
func FetchRequest(request crawler.PageRequest) crawler.FetchRequest {
	set := request.Selectors
	headers := http.Header{}
	for k, v := range set.Headers {
		headers.Set(k, v)
	}
	if set.BasicAuth != nil {
		token := base64.StdEncoding.EncodeToString([]byte(set.BasicAuth.User + ":" + set.BasicAuth.Password))
		headers.Set("Authorization", "Basic "+token)
	}
	return crawler.FetchRequest{
		URL:       request.URL,
		UserAgent: set.UserAgent,
		Headers:   headers,
	}
}

func pageStatus(result crawler.PageResult) string {
	if result.NoIndex {
		return metrics.StatusNoIndex
	}
	return metrics.StatusScraped
}
