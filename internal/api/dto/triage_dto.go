package dto

import (
	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
)

// TriageResult is the response body of POST /v1/triage.
type TriageResult struct {
	Runner          string                 `json:"runner"`
	ElapsedMS       int64                  `json:"elapsed_ms"`
	Ticket          domain.Ticket          `json:"ticket"`
	Classification  domain.Classification  `json:"classification"`
	Troubleshooting domain.Troubleshooting `json:"troubleshooting"`
	Communication   domain.Communication   `json:"communication"`
}

// NewTriageResult converts a pipeline result.
func NewTriageResult(res pipeline.Result, elapsedMS int64) TriageResult {
	return TriageResult{
		Runner:          res.Runner,
		ElapsedMS:       elapsedMS,
		Ticket:          res.Ticket,
		Classification:  res.Classification,
		Troubleshooting: res.Troubleshooting,
		Communication:   res.Communication,
	}
}

// DependencyStatus reports one readiness check.
type DependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
