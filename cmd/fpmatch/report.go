package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/scoring"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

type report struct {
	Result    decision.MatchResult `json:"result"`
	SubScores scoring.SubScores    `json:"sub_scores"`
	Stats     verify.Stats         `json:"stats"`
	Failure   string               `json:"failure,omitempty"`
	Error     string               `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func printReport(o verify.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	if o.Failed() {
		fmt.Fprintf(w, "error\t%v\n", o.Err)
	}
	s := o.SubScores
	fmt.Fprintf(w, "quantity\t%6.2f\n", s.Quantity)
	fmt.Fprintf(w, "quality\t%6.2f\n", s.Quality)
	fmt.Fprintf(w, "distribution\t%6.2f\n", s.Distribution)
	fmt.Fprintf(w, "pattern\t%6.2f\n", s.Pattern)
	fmt.Fprintf(w, "local similarity\t%6.2f\n", s.LocalSimilarity)
	fmt.Fprintf(w, "minutiae\t%6.2f\n", s.Minutiae)
	fmt.Fprintf(w, "matches\t%d raw, %d verified (ratio %.2f)\n", o.Stats.RawMatches, o.Stats.VerifiedMatches, o.Stats.Ratio)
	fmt.Fprintf(w, "score\t%6.2f (threshold %.0f)\n", o.Result.Score, o.Result.Threshold)
	fmt.Fprintf(w, "match\t%t\n", o.Result.Match)
	fmt.Fprintf(w, "confidence\t%s\n", o.Result.Confidence)
	fmt.Fprintf(w, "elapsed\t%s\n", o.Stats.Total)
}
