package prediction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

var (
	overRe    = regexp.MustCompile(`over\s+([0-9]+(?:\.[05])?)\s*(corners|escanteios|goals|gols)?`)
	underRe   = regexp.MustCompile(`under\s+([0-9]+(?:\.[05])?)\s*(corners|escanteios|goals|gols)?`)
	pickRe    = regexp.MustCompile(`(?i)pick\s*[:\-]?\s*([^\n\r/]+)`)
	cornersRe = regexp.MustCompile(`(?:escanteios?|corners?)\s*:?\s*(\d+)`)
)

// rule turns text into a prediction when it matches. The lowered text is passed alongside
// the original so rules that keep the selection's casing can read it.
type rule struct {
	name  string
	match func(text, lower string) (models.Prediction, bool)
}

// rules are evaluated top to bottom and the first match wins. The order encodes market
// priority: a line mentioning both "over 9.5 corners" and "pick: X" is an over bet.
var rules = []rule{
	{name: "over", match: lineRule(overRe, models.Over)},
	{name: "under", match: lineRule(underRe, models.Under)},
	{name: "pick", match: matchPick},
	{name: "corners_exact", match: matchCornersExact},
}

// Parse extracts a structured prediction from a tip message. It never fails:
// text that matches no rule yields models.Unknown().
func Parse(text string) models.Prediction {
	if strings.TrimSpace(text) == "" {
		return models.Unknown()
	}
	lower := strings.ToLower(text)
	for _, r := range rules {
		if p, ok := r.match(text, lower); ok {
			return p
		}
	}
	return models.Unknown()
}

func lineRule(re *regexp.Regexp, build func(models.Unit, decimal.Decimal) models.Prediction) func(string, string) (models.Prediction, bool) {
	return func(_, lower string) (models.Prediction, bool) {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			return models.Prediction{}, false
		}
		threshold, err := decimal.NewFromString(m[1])
		if err != nil {
			return models.Prediction{}, false
		}
		return build(unitOf(m[2]), threshold), true
	}
}

// unitOf maps the market word to a unit; a bare line defaults to corners
func unitOf(word string) models.Unit {
	switch word {
	case "goals", "gols":
		return models.UnitGoals
	default:
		return models.UnitCorners
	}
}

func matchPick(text, _ string) (models.Prediction, bool) {
	m := pickRe.FindStringSubmatch(text)
	if m == nil {
		return models.Prediction{}, false
	}
	selection := strings.TrimSpace(m[1])
	if selection == "" {
		return models.Prediction{}, false
	}
	return models.Pick(selection), true
}

func matchCornersExact(_, lower string) (models.Prediction, bool) {
	m := cornersRe.FindStringSubmatch(lower)
	if m == nil {
		return models.Prediction{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return models.Prediction{}, false
	}
	return models.CornersExact(n), true
}
