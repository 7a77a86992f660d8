// Package collyfetch implements scrape.Fetcher using gocolly for sources
// that serve their rosters as plain documents.
package collyfetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher executes single-shot GETs with a cloned colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch retrieves the request URL and returns the raw body plus metadata.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	if request.URL == "" {
		return scrape.FetchResponse{}, fmt.Errorf("fetch url is required")
	}

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		result   scrape.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = scrape.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", request.URL, status, err)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(request.URL); err != nil && fetchErr == nil {
			fetchErr = fmt.Errorf("visit %s: %w", request.URL, err)
		}
		collector.Wait()
	}()

	select {
	case <-ctx.Done():
		return scrape.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case <-done:
	}

	if fetchErr != nil {
		return scrape.FetchResponse{}, fetchErr
	}
	if result.StatusCode == 0 {
		return scrape.FetchResponse{}, fmt.Errorf("fetch %s: no response", request.URL)
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return result, fmt.Errorf("fetch %s: unexpected status %d", request.URL, result.StatusCode)
	}
	return result, nil
}

var _ scrape.Fetcher = (*Fetcher)(nil)
