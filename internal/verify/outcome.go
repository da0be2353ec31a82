package verify

import (
	"time"

	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/scoring"
)

// Stats describes how a comparison went, whatever its result.
type Stats struct {
	KeypointsSample   int     `json:"keypoints_sample"`
	KeypointsTemplate int     `json:"keypoints_template"`
	RawMatches        int     `json:"raw_matches"`
	VerifiedMatches   int     `json:"verified_matches"`
	Ratio             float64 `json:"ratio"`
	Inliers           int     `json:"inliers"`
	TemplateCached    bool    `json:"template_cached"`

	Prepare  time.Duration `json:"prepare"`
	Match    time.Duration `json:"match"`
	Geometry time.Duration `json:"geometry"`
	Score    time.Duration `json:"score"`
	Total    time.Duration `json:"total"`
}

// Outcome is the tagged result of a verification. A nil Err means the
// pipeline ran to completion and Result holds its verdict. Otherwise Err is
// a *Error and Result is the zero-score rejection.
type Outcome struct {
	Result    decision.MatchResult
	SubScores scoring.SubScores
	Stats     Stats
	Err       error
}

func (o Outcome) Failed() bool { return o.Err != nil }

func (o Outcome) Kind() Kind { return KindOf(o.Err) }

func failed(err *Error, stats Stats) Outcome {
	return Outcome{Result: decision.Reject(), Stats: stats, Err: err}
}
