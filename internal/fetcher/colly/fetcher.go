// Package collyfetcher implements catalog.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements catalog.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ catalog.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher. Per-call collectors are cloned from a shared base so they reuse
// one connection pool.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Probe issues a HEAD request and reports the status and advertised size.
func (f *Fetcher) Probe(ctx context.Context, url string) (catalog.ProbeResult, error) {
	collector := f.buildCollector(ctx)
	result := catalog.ProbeResult{URL: url, ContentLength: -1}
	collector.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.Status = http.StatusText(r.StatusCode)
		if r.Headers != nil {
			if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil {
				result.ContentLength = n
			}
		}
	})

	start := time.Now()
	err := collector.Head(url)
	result.Duration = time.Since(start)
	if err != nil {
		return result, classifyError(ctx, err)
	}
	return result, nil
}

// FetchListing GETs a directory page. The body is only read for 2xx text/html
// responses; anything else is abandoned after the headers arrive.
func (f *Fetcher) FetchListing(ctx context.Context, url string) (catalog.ListingPage, error) {
	collector := f.buildCollector(ctx)
	page := catalog.ListingPage{URL: url}
	var parseErr error

	collector.OnResponseHeaders(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.URL = r.Request.URL.String()
		if r.Headers != nil {
			page.ContentType = r.Headers.Get("Content-Type")
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 || !isHTML(page.ContentType) {
			r.Request.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page.HTML = true
		page.Links, parseErr = ExtractLinks(r.Body)
	})

	err := collector.Visit(url)
	switch {
	case errors.Is(err, colly.ErrAbortedAfterHeaders):
		return page, nil
	case err != nil:
		return page, classifyError(ctx, err)
	case parseErr != nil:
		return page, fmt.Errorf("parse listing %s: %w", url, parseErr)
	}
	return page, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	return collector
}

func classifyError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", catalog.ErrProbeTimeout, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	}
	return fmt.Errorf("colly request failed: %w", err)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
