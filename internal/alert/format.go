package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/internal/signal"
)

// Format builds the subject and body for one alert from a completed
// run record.
func Format(name string, rec *runlog.Record) (subject, body string) {
	subject = fmt.Sprintf("[vigil] %s %s → %s", rec.Symbol, rec.PrevSignal, rec.Signal)
	if rec.Signal.IsStrong() {
		subject = "⚠ " + subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", name, rec.Symbol)
	fmt.Fprintf(&b, "signal: %s (was %s)\n", rec.Signal, rec.PrevSignal)
	if rec.Urgency != "" && rec.Urgency != signal.UrgencyNormal {
		fmt.Fprintf(&b, "urgency: %s\n", rec.Urgency)
	}
	fmt.Fprintf(&b, "mode: %s\n", rec.Mode)
	fmt.Fprintf(&b, "time: %s\n", rec.FinishedAt.Format(time.RFC3339))

	if rec.RuleOutput != "" {
		fmt.Fprintf(&b, "\nrule output:\n%s\n", rec.RuleOutput)
	}
	if rec.AIOutput != "" {
		fmt.Fprintf(&b, "\nanalysis:\n%s\n", rec.AIOutput)
	}

	return subject, b.String()
}
