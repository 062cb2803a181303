package signal

// Signal is the closed set of trading-action classes used throughout
// the monitoring pipeline.
// ⭐ SSOT: 시그널 분류는 여기서만 정의
type Signal string

const (
	StrongBuy  Signal = "STRONG_BUY"
	Buy        Signal = "BUY"
	Wait       Signal = "WAIT"
	Sell       Signal = "SELL"
	StrongSell Signal = "STRONG_SELL"
)

// All lists every canonical signal.
var All = []Signal{StrongBuy, Buy, Wait, Sell, StrongSell}

// Valid reports whether s is one of the five canonical values.
func (s Signal) Valid() bool {
	switch s {
	case StrongBuy, Buy, Wait, Sell, StrongSell:
		return true
	}
	return false
}

// IsStrong reports whether s is one of the two most severe classes.
// Only these may bypass the hourly alert cap.
func (s Signal) IsStrong() bool {
	return s == StrongBuy || s == StrongSell
}

// Urgency classifies how quickly an operator should look at an alert.
type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

// Mode selects which analysis path(s) run for an instrument.
type Mode string

const (
	ModeAIOnly     Mode = "ai_only"
	ModeScriptOnly Mode = "script_only"
	ModeHybrid     Mode = "hybrid"
)

// Valid reports whether m is a known monitoring mode.
func (m Mode) Valid() bool {
	return m == ModeAIOnly || m == ModeScriptOnly || m == ModeHybrid
}
