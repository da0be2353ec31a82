// Package decision turns a composite similarity score into a verdict.
package decision

import (
	"fmt"
	"strings"
)

const (
	BaseThreshold = 15.0
	// Scores above BonusCutoff must also clear BonusThreshold more points.
	BonusCutoff    = 40.0
	BonusThreshold = 5.0

	HighCutoff   = 50.0
	MediumCutoff = 30.0
)

type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

func (c Confidence) MarshalText() ([]byte, error) {
	if c < Low || c > High {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "low":
		*c = Low
	case "medium":
		*c = Medium
	case "high":
		*c = High
	default:
		return fmt.Errorf("invalid confidence %q", b)
	}
	return nil
}

// MatchResult is the verdict for one comparison.
type MatchResult struct {
	Score      float64    `json:"match_score"`
	Threshold  float64    `json:"threshold"`
	Match      bool       `json:"match_result"`
	Confidence Confidence `json:"confidence_level"`
}

// Threshold is the bar score must clear. It rises by BonusThreshold once
// the score itself exceeds BonusCutoff.
func Threshold(score float64) float64 {
	if score > BonusCutoff {
		return BaseThreshold + BonusThreshold
	}
	return BaseThreshold
}

func ConfidenceFor(score float64) Confidence {
	switch {
	case score > HighCutoff:
		return High
	case score > MediumCutoff:
		return Medium
	}
	return Low
}

// Decide builds the MatchResult for a composite score.
func Decide(score float64) MatchResult {
	th := Threshold(score)
	return MatchResult{
		Score:      score,
		Threshold:  th,
		Match:      score > th,
		Confidence: ConfidenceFor(score),
	}
}

// Reject is the result reported when the pipeline could not produce a
// score.
func Reject() MatchResult {
	return Decide(0)
}
