package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PredictionVersion is the current persisted envelope version
const PredictionVersion = 1

// PredictionKind discriminates the Prediction variants
type PredictionKind string

const (
	KindUnknown      PredictionKind = "unknown"
	KindOver         PredictionKind = "over"
	KindUnder        PredictionKind = "under"
	KindPick         PredictionKind = "pick"
	KindCornersExact PredictionKind = "corners_exact"
)

// Unit is the statistic an over/under line refers to
type Unit string

const (
	UnitCorners Unit = "corners"
	UnitGoals   Unit = "goals"
)

// Prediction is a closed tagged variant. Only the fields of its Kind are meaningful:
// Over/Under use Unit and Threshold, Pick uses Selection, CornersExact uses Count.
type Prediction struct {
	Kind      PredictionKind
	Unit      Unit
	Threshold decimal.Decimal
	Selection string
	Count     int
}

func Over(unit Unit, threshold decimal.Decimal) Prediction {
	return Prediction{Kind: KindOver, Unit: unit, Threshold: threshold}
}

func Under(unit Unit, threshold decimal.Decimal) Prediction {
	return Prediction{Kind: KindUnder, Unit: unit, Threshold: threshold}
}

func Pick(selection string) Prediction {
	return Prediction{Kind: KindPick, Selection: selection}
}

func CornersExact(count int) Prediction {
	return Prediction{Kind: KindCornersExact, Count: count}
}

func Unknown() Prediction {
	return Prediction{Kind: KindUnknown}
}

// IsUnknown also treats the zero value as unknown
func (p Prediction) IsUnknown() bool {
	return p.Kind == "" || p.Kind == KindUnknown
}

// Equal compares two predictions variant-wise
func (p Prediction) Equal(o Prediction) bool {
	if p.IsUnknown() || o.IsUnknown() {
		return p.IsUnknown() && o.IsUnknown()
	}
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case KindOver, KindUnder:
		return p.Unit == o.Unit && p.Threshold.Equal(o.Threshold)
	case KindPick:
		return p.Selection == o.Selection
	case KindCornersExact:
		return p.Count == o.Count
	}
	return false
}

func (p Prediction) String() string {
	switch p.Kind {
	case KindOver, KindUnder:
		return fmt.Sprintf("%s %s %s", p.Kind, p.Threshold.String(), p.Unit)
	case KindPick:
		return fmt.Sprintf("pick %q", p.Selection)
	case KindCornersExact:
		return fmt.Sprintf("corners exact %d", p.Count)
	default:
		return string(KindUnknown)
	}
}

type predictionEnvelope struct {
	Version   int              `json:"v"`
	Kind      PredictionKind   `json:"kind"`
	Unit      Unit             `json:"unit,omitempty"`
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
	Selection string           `json:"selection,omitempty"`
	Count     *int             `json:"count,omitempty"`
}

// MarshalJSON writes the versioned envelope
func (p Prediction) MarshalJSON() ([]byte, error) {
	env := predictionEnvelope{Version: PredictionVersion, Kind: p.Kind}
	switch p.Kind {
	case KindOver, KindUnder:
		thr := p.Threshold
		env.Unit = p.Unit
		env.Threshold = &thr
	case KindPick:
		env.Selection = p.Selection
	case KindCornersExact:
		count := p.Count
		env.Count = &count
	default:
		env.Kind = KindUnknown
	}
	return json.Marshal(env)
}

// UnmarshalJSON reads the versioned envelope
func (p *Prediction) UnmarshalJSON(data []byte) error {
	var env predictionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal prediction: %w", err)
	}
	if env.Version != PredictionVersion {
		return fmt.Errorf("unsupported prediction version %d", env.Version)
	}

	switch env.Kind {
	case KindOver, KindUnder:
		if env.Threshold == nil {
			return fmt.Errorf("%s prediction without threshold", env.Kind)
		}
		if env.Unit != UnitCorners && env.Unit != UnitGoals {
			return fmt.Errorf("unknown prediction unit %q", env.Unit)
		}
		*p = Prediction{Kind: env.Kind, Unit: env.Unit, Threshold: *env.Threshold}
	case KindPick:
		*p = Pick(env.Selection)
	case KindCornersExact:
		if env.Count == nil {
			return fmt.Errorf("corners_exact prediction without count")
		}
		*p = CornersExact(*env.Count)
	case KindUnknown:
		*p = Unknown()
	default:
		return fmt.Errorf("unknown prediction kind %q", env.Kind)
	}
	return nil
}

// EncodePrediction serializes a prediction for storage
func EncodePrediction(p Prediction) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePrediction restores a stored prediction. Empty and legacy "None" payloads decode to Unknown.
func DecodePrediction(s string) (Prediction, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" {
		return Unknown(), nil
	}
	var p Prediction
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Unknown(), fmt.Errorf("failed to decode prediction: %w", err)
	}
	return p, nil
}
