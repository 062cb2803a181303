package runlog

import (
	"time"

	"github.com/wonny/vigil/internal/signal"
)

// Status classifies the overall outcome of one pipeline execution.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusSkipped     Status = "skipped"
	StatusConfigError Status = "config_error"
	StatusError       Status = "error"
)

// SkipReason explains why a run did nothing. A skip is a normal,
// loggable outcome, never an error.
type SkipReason string

const (
	SkipMonitoringDisabled SkipReason = "monitoring_disabled"
	SkipNotTradeDay        SkipReason = "not_trade_day"
	SkipOutsideSchedule    SkipReason = "outside_schedule"
	SkipSignalUnchanged    SkipReason = "signal_unchanged_in_hybrid"
)

// Record is the single, append-only audit unit produced by every
// pipeline execution regardless of outcome. The latest record per
// instrument is the sole source of "last known signal"; there is no
// separate mutable current-state row.
type Record struct {
	ID           int64  `json:"id"`
	InstrumentID int64  `json:"instrument_id"`
	Symbol       string `json:"symbol"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status     Status     `json:"status"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`
	Mode       string     `json:"mode"`
	Manual     bool       `json:"manual"`

	// Raw inputs/outputs for audit
	RuleOutput string `json:"rule_output,omitempty"` // script result incl. captured print log
	AIOutput   string `json:"ai_output,omitempty"`   // analyzer raw text
	Detail     string `json:"detail,omitempty"`      // error text, skip notes, dispatch info

	Signal     signal.Signal  `json:"signal"`
	PrevSignal signal.Signal  `json:"prev_signal"`
	Urgency    signal.Urgency `json:"urgency,omitempty"`

	IsAlert    bool `json:"is_alert"`
	Suppressed bool `json:"suppressed"` // alert decided but rate-limited
}
