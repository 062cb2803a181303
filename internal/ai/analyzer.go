package ai

import (
	"context"

	"github.com/wonny/vigil/internal/instrument"
)

// Analysis is the structured result an analyzer must produce. Signal
// is any string; the pipeline re-canonicalizes it regardless of what
// the analyzer returned.
type Analysis struct {
	Signal          string `json:"signal"`
	Message         string `json:"message"`
	HoldingDuration string `json:"holding_duration,omitempty"`
}

// Analyzer is the external AI collaborator. Implementations return
// the structured analysis plus the raw response text for the audit
// log.
type Analyzer interface {
	Analyze(ctx context.Context, data, prompt string, provider *instrument.AIProvider) (Analysis, string, error)
}
