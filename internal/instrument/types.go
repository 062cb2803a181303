package instrument

import (
	"time"

	"github.com/wonny/vigil/internal/signal"
)

// Instrument is one monitored symbol. Rows are created and edited by
// the management surface; the decision engine only reads them.
type Instrument struct {
	ID       int64  `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Interval int    `json:"interval_sec"` // poll interval in seconds

	Mode signal.Mode `json:"mode"` // ai_only | script_only | hybrid

	// Optional references; required depending on Mode
	RuleScriptID *int64 `json:"rule_script_id,omitempty"`
	AIProviderID *int64 `json:"ai_provider_id,omitempty"`

	// Schedule is a comma-separated list of HH:MM-HH:MM windows in
	// local time. Empty or unparsable falls back to the configured
	// two-session default.
	Schedule        string `json:"schedule"`
	TradingDaysOnly bool   `json:"trading_days_only"`

	// DataRef points the market-data fetcher at this instrument's
	// indicator definition (opaque to the engine).
	DataRef string `json:"data_ref"`

	// Prompt is the analysis instruction handed to the AI analyzer.
	Prompt string `json:"prompt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleScript is an opaque script body plus metadata. Immutable from
// the engine's perspective at run time.
type RuleScript struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AIProvider holds connection/model parameters for the external
// analyzer. Opaque to the engine beyond being injected into the
// analyzer call.
type AIProvider struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"`
	Model   string `json:"model"`
}

// AlertPolicy is the per-deployment alert rate-limit policy. Read
// once per run; never mutated by the engine.
type AlertPolicy struct {
	Enabled    bool `json:"enabled"`
	MaxPerHour int  `json:"max_per_hour"`

	// AllowedSignals / AllowedUrgencies gate which outcomes may alert
	// at all. Empty slice means "allow everything" for that axis.
	AllowedSignals   []signal.Signal  `json:"allowed_signals"`
	AllowedUrgencies []signal.Urgency `json:"allowed_urgencies"`

	// BypassStrongSignals lets STRONG_BUY/STRONG_SELL ignore the
	// hourly cap.
	BypassStrongSignals bool `json:"bypass_strong_signals"`

	// ReAlertStrongSignals additionally lets STRONG_* ignore the
	// signal-unchanged de-duplication check.
	ReAlertStrongSignals bool `json:"re_alert_strong_signals"`
}

// DefaultAlertPolicy is used when no policy row exists.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		Enabled:    true,
		MaxPerHour: 2,
		AllowedSignals: []signal.Signal{
			signal.StrongBuy, signal.Buy, signal.Sell, signal.StrongSell,
		},
		AllowedUrgencies: []signal.Urgency{
			signal.UrgencyUrgent, signal.UrgencyNormal,
		},
		BypassStrongSignals:  true,
		ReAlertStrongSignals: false,
	}
}

// SignalAllowed reports whether s is in the policy's allowed set.
func (p AlertPolicy) SignalAllowed(s signal.Signal) bool {
	if len(p.AllowedSignals) == 0 {
		return true
	}
	for _, allowed := range p.AllowedSignals {
		if allowed == s {
			return true
		}
	}
	return false
}

// UrgencyAllowed reports whether u is in the policy's allowed set.
func (p AlertPolicy) UrgencyAllowed(u signal.Urgency) bool {
	if len(p.AllowedUrgencies) == 0 {
		return true
	}
	for _, allowed := range p.AllowedUrgencies {
		if allowed == u {
			return true
		}
	}
	return false
}
