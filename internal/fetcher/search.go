package fetcher

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
)

const DefaultSearchURL = "https://cornerprobet.com/search?query="

// SearchFetcher finds a match page by team names on a search results page and fetches it
type SearchFetcher struct {
	searchURL string
	documents *HTTPFetcher
	pages     service.PageFetcher
	logger    zerolog.Logger
}

// NewSearchFetcher creates a search fallback. searchURL is prefixed to the escaped
// "home away" query; result pages are fetched through pages.
func NewSearchFetcher(searchURL string, documents *HTTPFetcher, pages service.PageFetcher, logger zerolog.Logger) *SearchFetcher {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &SearchFetcher{
		searchURL: searchURL,
		documents: documents,
		pages:     pages,
		logger:    logger.With().Str("component", "search_fetcher").Logger(),
	}
}

// Search returns the text of the first result whose link text mentions home then away.
// Any failure yields ok=false.
func (s *SearchFetcher) Search(ctx context.Context, home, away string) (string, bool) {
	home, away = strings.TrimSpace(home), strings.TrimSpace(away)
	if home == "" || away == "" {
		return "", false
	}

	query := s.searchURL + url.QueryEscape(home+" "+away)
	doc, ok := s.documents.fetchDocument(ctx, query)
	if !ok {
		return "", false
	}

	link, ok := matchLink(doc, query, home, away)
	if !ok {
		s.logger.Debug().Str("home", home).Str("away", away).Msg("no search result matched")
		return "", false
	}

	s.logger.Debug().Str("home", home).Str("away", away).Str("url", link).Msg("search result matched")
	return s.pages.Fetch(ctx, link)
}

// matchLink returns the absolute URL of the first anchor whose text matches home.*away
func matchLink(doc *goquery.Document, base, home, away string) (string, bool) {
	re, err := regexp.Compile(`(?is)` + regexp.QuoteMeta(home) + `.*` + regexp.QuoteMeta(away))
	if err != nil {
		return "", false
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !re.MatchString(a.Text()) {
			return true
		}
		href, _ = a.Attr("href")
		return false
	})
	if href == "" {
		return "", false
	}

	return resolve(base, href)
}

func resolve(base, href string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
