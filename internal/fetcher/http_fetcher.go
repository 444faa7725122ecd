package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultMaxBytes  = 5 << 20
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121 Safari/537.36"
)

// HTTPFetcherConfig holds page fetch configuration
type HTTPFetcherConfig struct {
	Timeout   time.Duration // per fetch
	MaxBytes  int64
	UserAgent string
}

// HTTPFetcher downloads pages and reduces HTML to its document text. Every failure is
// reported as absence.
type HTTPFetcher struct {
	client *http.Client
	config HTTPFetcherConfig
	logger zerolog.Logger
}

// NewHTTPFetcher creates a new page fetcher
func NewHTTPFetcher(config HTTPFetcherConfig, logger zerolog.Logger) *HTTPFetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &HTTPFetcher{
		client: &http.Client{},
		config: config,
		logger: logger.With().Str("component", "http_fetcher").Logger(),
	}
}

// Fetch returns the text of the page at url, or ok=false on transport error, non-2xx
// status, unreadable body or timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	doc, raw, ok := f.fetch(ctx, url)
	if !ok {
		return "", false
	}
	if doc == nil {
		return raw, true
	}
	return documentText(doc), true
}

// fetchDocument returns the parsed HTML document at url
func (f *HTTPFetcher) fetchDocument(ctx context.Context, url string) (*goquery.Document, bool) {
	doc, _, ok := f.fetch(ctx, url)
	if !ok || doc == nil {
		return nil, false
	}
	return doc, true
}

// fetch downloads url. doc is nil when the body is not HTML; raw always holds the body.
func (f *HTTPFetcher) fetch(ctx context.Context, url string) (*goquery.Document, string, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	body, contentType, err := f.get(ctx, url)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("fetch failed")
		return nil, "", false
	}

	if !isHTML(contentType, body) {
		return nil, string(body), true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("failed to parse page")
		return nil, "", false
	}
	return doc, string(body), true
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	if contentType != "" {
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

// documentText flattens the document to its text nodes separated by single spaces, so
// adjacent cells like <td>6</td><td>4</td> stay apart. Script bodies are kept since
// scoreboards often embed their data as JSON.
func documentText(doc *goquery.Document) string {
	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				parts = append(parts, c.Text())
				return
			}
			walk(c)
		})
	}
	walk(doc.Selection)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
