package outcome

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

// input is everything a settlement decision may look at. Score and Corners are nil when
// the extractor found nothing.
type input struct {
	Prediction models.Prediction
	Score      *models.Tally
	Corners    *models.Tally
	HomeTeam   string
	AwayTeam   string
}

// rule decides an input when applies reports true. The first applicable rule owns the
// decision, even when that decision is Undecided.
type rule struct {
	name    string
	applies func(in input) bool
	decide  func(in input) models.Outcome
}

var rules = []rule{
	{name: "fallback_goals", applies: isKind(models.KindUnknown), decide: decideFallback},
	{name: "over_corners", applies: isLine(models.KindOver, models.UnitCorners), decide: decideOverCorners},
	{name: "under_corners", applies: isLine(models.KindUnder, models.UnitCorners), decide: decideUnderCorners},
	{name: "goals_line", applies: isGoalsLine, decide: undecided},
	{name: "pick", applies: isKind(models.KindPick), decide: decidePick},
	{name: "corners_exact", applies: isKind(models.KindCornersExact), decide: undecided},
}

// Decide settles a prediction against scraped data. It is pure: the same input always
// yields the same outcome.
func Decide(p models.Prediction, score, corners *models.Tally, home, away string) models.Outcome {
	return decideInput(input{Prediction: p, Score: score, Corners: corners, HomeTeam: home, AwayTeam: away})
}

// decideInput is Decide over a prepared input
func decideInput(in input) models.Outcome {
	for _, r := range rules {
		if r.applies(in) {
			return r.decide(in)
		}
	}
	return models.Undecided
}

func isKind(kind models.PredictionKind) func(input) bool {
	return func(in input) bool {
		if kind == models.KindUnknown {
			return in.Prediction.IsUnknown()
		}
		return in.Prediction.Kind == kind
	}
}

func isLine(kind models.PredictionKind, unit models.Unit) func(input) bool {
	return func(in input) bool {
		return in.Prediction.Kind == kind && in.Prediction.Unit == unit
	}
}

func isGoalsLine(in input) bool {
	k := in.Prediction.Kind
	return (k == models.KindOver || k == models.KindUnder) && in.Prediction.Unit == models.UnitGoals
}

func undecided(input) models.Outcome {
	return models.Undecided
}

// decideFallback is a coarse default for tips with no recognised market: any goal is a win.
func decideFallback(in input) models.Outcome {
	if in.Score == nil {
		return models.Undecided
	}
	return greenIf(in.Score.Total() >= 1)
}

func decideOverCorners(in input) models.Outcome {
	if in.Corners == nil {
		return models.Undecided
	}
	return greenIf(decimal.NewFromInt(int64(in.Corners.Total())).GreaterThanOrEqual(in.Prediction.Threshold))
}

func decideUnderCorners(in input) models.Outcome {
	if in.Corners == nil {
		return models.Undecided
	}
	return greenIf(decimal.NewFromInt(int64(in.Corners.Total())).LessThan(in.Prediction.Threshold))
}

func decidePick(in input) models.Outcome {
	if in.Score == nil || in.HomeTeam == "" || in.AwayTeam == "" {
		return models.Undecided
	}

	var winner string
	switch {
	case in.Score.Home > in.Score.Away:
		winner = in.HomeTeam
	case in.Score.Home < in.Score.Away:
		winner = in.AwayTeam
	default:
		return models.Red
	}
	return greenIf(sameTeam(in.Prediction.Selection, winner))
}

// sameTeam matches a free-text selection against a stored team name, case-insensitively,
// allowing either to be a substring of the other ("Flamengo" vs "Flamengo RJ").
func sameTeam(selection, team string) bool {
	s := strings.ToLower(strings.TrimSpace(selection))
	t := strings.ToLower(strings.TrimSpace(team))
	if s == "" || t == "" {
		return false
	}
	return strings.Contains(s, t) || strings.Contains(t, s)
}

func greenIf(won bool) models.Outcome {
	if won {
		return models.Green
	}
	return models.Red
}
