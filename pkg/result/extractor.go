package result

import (
	"regexp"
	"strconv"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

var (
	directScoreRe = regexp.MustCompile(`(\d{1,2})\s*[xX:]\s*(\d{1,2})`)
	looseScoreRe  = regexp.MustCompile(`(?is)home.*?score.*?[:=]\s*"?(\d+)"?.*?away.*?score.*?[:=]\s*"?(\d+)"?`)

	// Digits must sit within a short window after the keyword to count as corners.
	cornerPairRe   = regexp.MustCompile(`(?i)corners?\D{0,40}?(\d{1,2})\D{1,40}?(\d{1,2})`)
	cornerSingleRe = regexp.MustCompile(`(?i)corners?\D{0,40}?(\d{1,2})`)
)

// Score finds the match score in page text. The direct "2x1" / "2:1" form is tried first,
// then a loose home...score...away...score form as found in embedded JSON.
// The first pattern that matches wins; partial matches are never merged.
func Score(text string) (*models.Tally, bool) {
	if text == "" {
		return nil, false
	}
	for _, re := range []*regexp.Regexp{directScoreRe, looseScoreRe} {
		if t, ok := pair(re, text); ok {
			return t, true
		}
	}
	return nil, false
}

// Corners finds home/away corner counts near the word "corner(s)". When only one number
// is near the keyword it is returned paired with zero.
func Corners(text string) (*models.Tally, bool) {
	if text == "" {
		return nil, false
	}
	if t, ok := pair(cornerPairRe, text); ok {
		return t, true
	}
	m := cornerSingleRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	return &models.Tally{Home: n, Away: 0}, true
}

func pair(re *regexp.Regexp, text string) (*models.Tally, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	home, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	away, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	return &models.Tally{Home: home, Away: away}, true
}
