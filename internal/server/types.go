package server

import (
	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/scoring"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	msgCompleted   = "Verification completed successfully"
	msgMissingData = "Missing fingerprint data"
)

// VerifyRequest carries base64 images, optionally as data URLs. Stored, when
// present, becomes the new version of TemplateID before comparing.
type VerifyRequest struct {
	Sample     string `json:"sample"`
	Stored     string `json:"stored"`
	TemplateID string `json:"template_id"`
}

type VerifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	decision.MatchResult

	RequestID       string            `json:"request_id"`
	TemplateID      string            `json:"template_id"`
	TemplateVersion uint64            `json:"template_version"`
	SubScores       scoring.SubScores `json:"sub_scores"`
	Stats           verify.Stats      `json:"stats"`
	Failure         string            `json:"failure,omitempty"`
	Elapsed         string            `json:"elapsed"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	MatchScore float64 `json:"match_score"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Time   string `json:"time,omitempty"`
}
