package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/vigil/internal/ai"
	"github.com/wonny/vigil/internal/alert"
	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/internal/rules"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/internal/signal"
	"github.com/wonny/vigil/pkg/logger"
)

// RunStore is the slice of the run-record repository the pipeline
// needs: the append-only write and the last-known-state read.
type RunStore interface {
	Append(ctx context.Context, rec *runlog.Record) error
	Latest(ctx context.Context, instrumentID int64) (*runlog.Record, error)
}

// ConfigStore resolves the collaborator references an instrument
// carries.
type ConfigStore interface {
	GetScript(ctx context.Context, id int64) (*instrument.RuleScript, error)
	GetProvider(ctx context.Context, id int64) (*instrument.AIProvider, error)
	GetAlertPolicy(ctx context.Context) (instrument.AlertPolicy, error)
}

// RunOptions control one pipeline invocation.
type RunOptions struct {
	// Bypass skips the schedule gate entirely (manual "run now").
	Bypass bool
	// LogSkips persists gate skips as run records. Manual runs set
	// this so the operator sees why nothing happened.
	LogSkips bool
}

// ManualRun is the option set used by the on-demand trigger.
var ManualRun = RunOptions{Bypass: true, LogSkips: true}

// Pipeline is the per-instrument monitoring decision engine: gate →
// mode route → canonicalize → alert decision → rate limit → log.
// Every invocation is a self-contained synchronous run.
// ⭐ SSOT: 모니터링 실행 흐름은 이 파이프라인에서만
type Pipeline struct {
	gate       *ScheduleGate
	store      ConfigStore
	runs       RunStore
	rules      rules.Runner
	analyzer   ai.Analyzer
	fetcher    marketdata.Fetcher
	dispatcher alert.Dispatcher
	limiter    *RateLimiter
	logger     *logger.Logger

	now func() time.Time
}

// NewPipeline wires the decision engine.
func NewPipeline(
	gate *ScheduleGate,
	store ConfigStore,
	runs RunStore,
	ruleRunner rules.Runner,
	analyzer ai.Analyzer,
	fetcher marketdata.Fetcher,
	dispatcher alert.Dispatcher,
	limiter *RateLimiter,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		gate:       gate,
		store:      store,
		runs:       runs,
		rules:      ruleRunner,
		analyzer:   analyzer,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     log,
		now:        time.Now,
	}
}

// configError marks a run that failed because a required collaborator
// reference did not resolve. Fatal to this run only; the next tick
// retries.
type configError struct {
	msg string
}

func (e *configError) Error() string { return e.msg }

// Execute runs the pipeline once for one instrument. The returned
// record describes the outcome; a non-nil error means the run could
// not even be recorded (persistence failure).
func (p *Pipeline) Execute(ctx context.Context, inst *instrument.Instrument, opts RunOptions) (*runlog.Record, error) {
	started := p.now()

	log := p.logger.WithFields(map[string]interface{}{
		"symbol": inst.Symbol,
		"mode":   inst.Mode,
	})

	// The last persisted signal must be read before anything runs;
	// it drives hybrid short-circuiting and alert de-duplication.
	last, err := p.runs.Latest(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("read last run record: %w", err)
	}

	lastSignal := signal.Wait
	if last != nil && last.Signal.Valid() {
		lastSignal = last.Signal
	}

	rec := &runlog.Record{
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		StartedAt:    started,
		Mode:         string(inst.Mode),
		Manual:       opts.Bypass,
		Signal:       lastSignal,
		PrevSignal:   lastSignal,
	}

	// 1. Schedule gate
	if gate := p.gate.ShouldRun(ctx, inst, started, opts.Bypass); !gate.Proceed {
		rec.Status = runlog.StatusSkipped
		rec.SkipReason = gate.Reason
		rec.FinishedAt = p.now()

		log.WithField("reason", gate.Reason).Debug("Run gated")

		if opts.LogSkips {
			if err := p.runs.Append(ctx, rec); err != nil {
				return nil, fmt.Errorf("append skip record: %w", err)
			}
		}
		return rec, nil
	}

	// 2. Mode route → final signal + urgency
	finalSignal, urgency, err := p.route(ctx, inst, lastSignal, rec)

	var cfgErr *configError
	switch {
	case err == nil:
		// fall through to alert decision

	case errors.As(err, &cfgErr):
		rec.Status = runlog.StatusConfigError
		rec.Detail = cfgErr.msg
		rec.FinishedAt = p.now()

		log.WithField("detail", cfgErr.msg).Error("Run failed: configuration")

		if err := p.runs.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("append config-error record: %w", err)
		}
		return rec, nil

	case errors.Is(err, errSignalUnchanged):
		// Hybrid consistency: the rule confirmed the prior state, AI
		// was never invoked. Informational record, never an alert.
		rec.Status = runlog.StatusSkipped
		rec.SkipReason = runlog.SkipSignalUnchanged
		rec.FinishedAt = p.now()

		log.Debug("Hybrid run short-circuited, signal unchanged")

		if err := p.runs.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("append hybrid skip record: %w", err)
		}
		return rec, nil

	default:
		// Analyzer/transport failure: auditable, degrades to WAIT.
		rec.Status = runlog.StatusError
		rec.Detail = err.Error()
		rec.Signal = signal.Wait
		rec.FinishedAt = p.now()

		log.WithError(err).Error("Run failed")

		if err := p.runs.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("append error record: %w", err)
		}
		return rec, nil
	}

	rec.Status = runlog.StatusSuccess
	rec.Signal = finalSignal
	rec.Urgency = urgency
	rec.FinishedAt = p.now()

	// 3. Alert decision + rate limit + dispatch
	policy, err := p.store.GetAlertPolicy(ctx)
	if err != nil {
		log.WithError(err).Warn("Alert policy unavailable, using default")
		policy = instrument.DefaultAlertPolicy()
	}

	if ShouldAlert(finalSignal, urgency, lastSignal, policy) {
		if p.limiter.Allow(inst.ID, finalSignal, policy, p.now()) {
			p.dispatch(ctx, inst, rec, log)
		} else {
			rec.Suppressed = true
			log.WithField("signal", finalSignal).Info("Alert suppressed by rate limit")
		}
	}

	// 4. Persist regardless of outcome
	if err := p.runs.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append run record: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"signal":      finalSignal,
		"prev_signal": lastSignal,
		"is_alert":    rec.IsAlert,
	}).Info("Run completed")

	return rec, nil
}

// errSignalUnchanged is the hybrid short-circuit sentinel.
var errSignalUnchanged = errors.New("signal unchanged in hybrid")

// route executes the analysis path(s) the instrument's mode selects
// and returns the final canonical signal.
func (p *Pipeline) route(ctx context.Context, inst *instrument.Instrument, lastSignal signal.Signal, rec *runlog.Record) (signal.Signal, signal.Urgency, error) {
	switch inst.Mode {
	case signal.ModeScriptOnly:
		result, err := p.runScript(ctx, inst, rec)
		if err != nil {
			return signal.Wait, signal.UrgencyNormal, err
		}
		return canonicalizeRule(result), signal.UrgencyNormal, nil

	case signal.ModeAIOnly:
		return p.runAI(ctx, inst, rec)

	case signal.ModeHybrid:
		// The rule runs first, strictly as a change detector. Its
		// signal gates the AI call but never becomes the verdict.
		result, err := p.runScript(ctx, inst, rec)
		if err != nil {
			return signal.Wait, signal.UrgencyNormal, err
		}

		ruleSignal := canonicalizeRule(result)
		if ShouldSkipAI(ruleSignal, lastSignal) {
			rec.Signal = ruleSignal
			return ruleSignal, signal.UrgencyNormal, errSignalUnchanged
		}

		return p.runAI(ctx, inst, rec)

	default:
		return signal.Wait, signal.UrgencyNormal, &configError{
			msg: fmt.Sprintf("unknown monitoring mode %q", inst.Mode),
		}
	}
}

// runScript resolves and executes the instrument's rule script.
func (p *Pipeline) runScript(ctx context.Context, inst *instrument.Instrument, rec *runlog.Record) (rules.Result, error) {
	if inst.RuleScriptID == nil {
		return rules.Result{}, &configError{msg: "no rule script configured"}
	}

	script, err := p.store.GetScript(ctx, *inst.RuleScriptID)
	if err != nil {
		if errors.Is(err, instrument.ErrNotFound) {
			return rules.Result{}, &configError{
				msg: fmt.Sprintf("rule script %d not found", *inst.RuleScriptID),
			}
		}
		return rules.Result{}, fmt.Errorf("load rule script: %w", err)
	}

	// Script exceptions are already folded into the result here;
	// nothing from inside the sandbox propagates.
	result := p.rules.Run(ctx, script.Body, inst.Symbol)

	if raw, err := json.Marshal(result); err == nil {
		rec.RuleOutput = string(raw)
	}

	return result, nil
}

// runAI fetches market data and invokes the external analyzer.
func (p *Pipeline) runAI(ctx context.Context, inst *instrument.Instrument, rec *runlog.Record) (signal.Signal, signal.Urgency, error) {
	if inst.AIProviderID == nil {
		return signal.Wait, signal.UrgencyNormal, &configError{msg: "no AI provider configured"}
	}

	provider, err := p.store.GetProvider(ctx, *inst.AIProviderID)
	if err != nil {
		if errors.Is(err, instrument.ErrNotFound) {
			return signal.Wait, signal.UrgencyNormal, &configError{
				msg: fmt.Sprintf("ai provider %d not found", *inst.AIProviderID),
			}
		}
		return signal.Wait, signal.UrgencyNormal, fmt.Errorf("load ai provider: %w", err)
	}

	ref := inst.DataRef
	if ref == "" {
		ref = inst.Symbol
	}

	data := p.fetcher.Fetch(ctx, ref)
	if marketdata.IsError(data) {
		// Tallied fetch failure: no analyzer call, the run completes
		// with the failure on record and the signal degrades to WAIT.
		rec.AIOutput = data
		return signal.Wait, signal.UrgencyNormal, fmt.Errorf("market data fetch failed: %s", data)
	}

	analysis, raw, err := p.analyzer.Analyze(ctx, data, inst.Prompt, provider)
	rec.AIOutput = raw
	if err != nil {
		return signal.Wait, signal.UrgencyNormal, fmt.Errorf("analyzer failed: %w", err)
	}

	final := signal.Canonicalize(analysis.Signal, analysis.Message)
	urgency := signal.ClassifyUrgency(analysis.HoldingDuration)

	return final, urgency, nil
}

// dispatch sends the alert and records the boolean outcome.
func (p *Pipeline) dispatch(ctx context.Context, inst *instrument.Instrument, rec *runlog.Record, log *logger.Logger) {
	subject, body := alert.Format(inst.Name, rec)

	if err := p.dispatcher.Send(ctx, subject, body); err != nil {
		rec.Detail = fmt.Sprintf("dispatch failed: %v", err)
		log.WithError(err).Error("Alert dispatch failed")
		return
	}

	rec.IsAlert = true
}

// canonicalizeRule maps a rule result onto the signal taxonomy. An
// untriggered rule reads as WAIT regardless of its message.
func canonicalizeRule(result rules.Result) signal.Signal {
	if !result.Triggered {
		return signal.Wait
	}
	return signal.Canonicalize(result.Signal, result.Message)
}
