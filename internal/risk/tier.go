package risk

import (
	"math"
	"strconv"
	"strings"
)

// Tier is the discrete risk bucket of a detection probability.
type Tier string

const (
	Low      Tier = "Low"
	Medium   Tier = "Medium"
	High     Tier = "High"
	Critical Tier = "Critical"
	// Unknown is reserved for probabilities that are not numbers. It has no rank.
	Unknown Tier = "Unknown"
)

// Tier boundaries. Each tier's lower bound is exclusive, its upper bound inclusive.
const (
	CriticalAbove = 0.95
	HighAbove     = 0.80
	MediumAbove   = 0.50
)

// Score maps a probability to its tier.
func Score(probability float64) Tier {
	switch {
	case math.IsNaN(probability):
		return Unknown
	case probability > CriticalAbove:
		return Critical
	case probability > HighAbove:
		return High
	case probability > MediumAbove:
		return Medium
	default:
		return Low
	}
}

// ScoreValue is Score for loosely typed input, e.g. a probability read back
// from a report cell. Anything that is not a number maps to Unknown.
func ScoreValue(v any) Tier {
	switch p := v.(type) {
	case float64:
		return Score(p)
	case float32:
		return Score(float64(p))
	case int:
		return Score(float64(p))
	case int64:
		return Score(float64(p))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Unknown
		}
		return Score(f)
	default:
		return Unknown
	}
}

// AlertTriggered reports whether a tier raises an operator alert. Only
// Critical does; High is elevated risk but not an alert.
func AlertTriggered(t Tier) bool {
	return t == Critical
}

// Rank returns the position of t in Low < Medium < High < Critical.
// ok is false for Unknown and any unrecognised value.
func (t Tier) Rank() (rank int, ok bool) {
	switch t {
	case Low:
		return 0, true
	case Medium:
		return 1, true
	case High:
		return 2, true
	case Critical:
		return 3, true
	}
	return -1, false
}

// Less reports whether t ranks strictly below o. Unknown is incomparable
// and never less than, nor greater than, anything.
func (t Tier) Less(o Tier) bool {
	a, okA := t.Rank()
	b, okB := o.Rank()
	return okA && okB && a < b
}

// Tiers lists the ranked tiers in ascending order.
func Tiers() []Tier {
	return []Tier{Low, Medium, High, Critical}
}
