package signal

import "strings"

// Urgency keyword buckets. The "expected holding duration" field is
// free text produced by the AI analyzer; intraday/short horizons read
// as urgent, multi-month horizons as low, everything else as normal.
var urgentKeywords = []string{
	"日内", "当天", "当日", "短线", "超短", "几小时", "立即",
	"intraday", "today", "immediate", "hours",
}

var lowKeywords = []string{
	"长线", "长期", "数月", "半年", "一年", "季度",
	"long term", "long-term", "months", "quarter", "year",
}

// ClassifyUrgency buckets a free-text holding-duration description
// into urgent / normal / low. Unrecognized or empty input is normal.
func ClassifyUrgency(holdingDuration string) Urgency {
	text := strings.ToLower(strings.TrimSpace(holdingDuration))
	if text == "" {
		return UrgencyNormal
	}

	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return UrgencyUrgent
		}
	}

	for _, kw := range lowKeywords {
		if strings.Contains(text, kw) {
			return UrgencyLow
		}
	}

	return UrgencyNormal
}
