package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// BrowserFetcherConfig holds headless browser configuration
type BrowserFetcherConfig struct {
	Timeout   time.Duration // per fetch
	Settle    time.Duration // wait after load for client-side rendering
	UserAgent string
}

// BrowserFetcher renders pages in headless Chrome, for scoreboards that are filled in by
// JavaScript. One browser is shared; each fetch opens its own tab.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	config   BrowserFetcherConfig
	logger   zerolog.Logger
}

// NewBrowserFetcher starts the browser allocator. Chrome itself is launched on first use.
func NewBrowserFetcher(config BrowserFetcherConfig, logger zerolog.Logger) *BrowserFetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(config.UserAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserFetcher{
		allocCtx: allocCtx,
		cancel:   cancel,
		config:   config,
		logger:   logger.With().Str("component", "browser_fetcher").Logger(),
	}
}

// Fetch renders url and returns the text of the resulting document, or ok=false on any
// navigation error or timeout.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.config.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.config.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		f.logger.Warn().Err(fmt.Errorf("chromedp navigation: %w", err)).Str("url", url).Msg("fetch failed")
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("failed to parse rendered page")
		return "", false
	}
	return documentText(doc), true
}

// Close shuts the browser down
func (f *BrowserFetcher) Close() {
	f.cancel()
}
