package monitor

import (
	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/signal"
)

// ShouldSkipAI is the hybrid consistency check: when the rule-derived
// signal already matches the last persisted one, the AI call is
// skipped entirely.
func ShouldSkipAI(ruleSignal, lastSignal signal.Signal) bool {
	return ruleSignal == lastSignal
}

// ShouldAlert decides whether a completed run attempts a dispatch.
// Three independent conditions, all policy-driven:
//   - the signal is in the allowed set
//   - the signal changed since the last persisted run (the primary
//     de-duplication; STRONG_* may re-alert when the policy says so)
//   - the urgency bucket is in the allowed set
//
// The rate limiter runs after this, as the last gate before dispatch.
func ShouldAlert(sig signal.Signal, urgency signal.Urgency, lastSignal signal.Signal, policy instrument.AlertPolicy) bool {
	if !policy.SignalAllowed(sig) {
		return false
	}

	if sig == lastSignal {
		if !(policy.ReAlertStrongSignals && sig.IsStrong()) {
			return false
		}
	}

	return policy.UrgencyAllowed(urgency)
}
