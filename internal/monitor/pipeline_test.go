package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/vigil/internal/ai"
	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/internal/rules"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/internal/signal"
	"github.com/wonny/vigil/pkg/logger"
)

// memRuns is an in-memory RunStore.
type memRuns struct {
	mu      sync.Mutex
	records []runlog.Record
}

func (m *memRuns) Append(_ context.Context, rec *runlog.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memRuns) Latest(_ context.Context, instrumentID int64) (*runlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].InstrumentID == instrumentID {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// fakeConfig is an in-memory ConfigStore.
type fakeConfig struct {
	scripts   map[int64]*instrument.RuleScript
	providers map[int64]*instrument.AIProvider
	policy    instrument.AlertPolicy
}

func (f *fakeConfig) GetScript(_ context.Context, id int64) (*instrument.RuleScript, error) {
	if s, ok := f.scripts[id]; ok {
		return s, nil
	}
	return nil, instrument.ErrNotFound
}

func (f *fakeConfig) GetProvider(_ context.Context, id int64) (*instrument.AIProvider, error) {
	if p, ok := f.providers[id]; ok {
		return p, nil
	}
	return nil, instrument.ErrNotFound
}

func (f *fakeConfig) GetAlertPolicy(_ context.Context) (instrument.AlertPolicy, error) {
	return f.policy, nil
}

// countingRules returns a fixed result and counts invocations.
type countingRules struct {
	result rules.Result
	calls  int
}

func (r *countingRules) Run(_ context.Context, _, _ string) rules.Result {
	r.calls++
	return r.result
}

// countingAnalyzer returns a fixed analysis and counts invocations.
type countingAnalyzer struct {
	analysis ai.Analysis
	calls    int
}

func (a *countingAnalyzer) Analyze(_ context.Context, _, _ string, _ *instrument.AIProvider) (ai.Analysis, string, error) {
	a.calls++
	return a.analysis, "raw analyzer text", nil
}

// countingDispatcher counts sends.
type countingDispatcher struct {
	calls int
}

func (d *countingDispatcher) Send(_ context.Context, _, _ string) error {
	d.calls++
	return nil
}

type testDeps struct {
	runs       *memRuns
	config     *fakeConfig
	rules      *countingRules
	analyzer   *countingAnalyzer
	dispatcher *countingDispatcher
	pipeline   *Pipeline
}

func newTestPipeline(t *testing.T) *testDeps {
	t.Helper()

	d := &testDeps{
		runs: &memRuns{},
		config: &fakeConfig{
			scripts:   map[int64]*instrument.RuleScript{1: {ID: 1, Body: "noop"}},
			providers: map[int64]*instrument.AIProvider{1: {ID: 1, APIKey: "k"}},
			policy:    instrument.DefaultAlertPolicy(),
		},
		rules:      &countingRules{},
		analyzer:   &countingAnalyzer{},
		dispatcher: &countingDispatcher{},
	}

	gate := NewScheduleGate(&fakeCalendar{trading: true}, "", logger.NewNop())
	d.pipeline = NewPipeline(
		gate,
		d.config,
		d.runs,
		d.rules,
		d.analyzer,
		&tableFetcher{},
		d.dispatcher,
		NewRateLimiter(),
		logger.NewNop(),
	)

	return d
}

// tableFetcher satisfies marketdata.Fetcher with a fixed good payload.
type tableFetcher struct{}

func (tableFetcher) Fetch(_ context.Context, ref string) string {
	return "symbol: " + ref + "\ndate,open,high,low,close,volume\n"
}

func (tableFetcher) Candles(_ context.Context, _ string, _ int) ([]marketdata.Candle, error) {
	return nil, nil
}

func scriptInstrument(mode signal.Mode) *instrument.Instrument {
	scriptID := int64(1)
	providerID := int64(1)
	return &instrument.Instrument{
		ID:           42,
		Symbol:       "600519",
		Name:         "Kweichow Moutai",
		Enabled:      true,
		Mode:         mode,
		RuleScriptID: &scriptID,
		AIProviderID: &providerID,
		Schedule:     "00:00-23:59",
	}
}

func TestPipeline_DisabledInstrumentInvokesNothing(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeHybrid)
	inst.Enabled = false

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusSkipped, rec.Status)
	assert.Equal(t, runlog.SkipMonitoringDisabled, rec.SkipReason)
	assert.Zero(t, d.rules.calls, "rule engine must not run")
	assert.Zero(t, d.analyzer.calls, "analyzer must not run")
	assert.Empty(t, d.runs.records, "scheduled skips are not persisted")
}

func TestPipeline_ManualSkipIsPersisted(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeScriptOnly)
	inst.Enabled = false

	// Manual run without bypass semantics: log the skip
	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{LogSkips: true})
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusSkipped, rec.Status)
	require.Len(t, d.runs.records, 1)
	assert.Equal(t, runlog.SkipMonitoringDisabled, d.runs.records[0].SkipReason)
}

func TestPipeline_HybridUnchangedSkipsAI(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeHybrid)

	// Last persisted signal: BUY
	seed := &runlog.Record{InstrumentID: inst.ID, Status: runlog.StatusSuccess, Signal: signal.Buy}
	require.NoError(t, d.runs.Append(context.Background(), seed))

	// Rule confirms BUY
	d.rules.result = rules.Result{Triggered: true, Signal: "BUY"}

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, d.rules.calls)
	assert.Zero(t, d.analyzer.calls, "AI must never be invoked when the rule confirms the prior state")
	assert.Equal(t, runlog.StatusSkipped, rec.Status)
	assert.Equal(t, runlog.SkipSignalUnchanged, rec.SkipReason)
	assert.Equal(t, signal.Buy, rec.Signal)
	assert.False(t, rec.IsAlert)
	assert.Zero(t, d.dispatcher.calls)

	// The no-op run is still on record
	assert.Len(t, d.runs.records, 2)
}

func TestPipeline_HybridChangedInvokesAIOnce(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeHybrid)

	seed := &runlog.Record{InstrumentID: inst.ID, Status: runlog.StatusSuccess, Signal: signal.Buy}
	require.NoError(t, d.runs.Append(context.Background(), seed))

	// Rule detects a change; the AI verdict is final even if it
	// lands back on BUY
	d.rules.result = rules.Result{Triggered: true, Signal: "SELL"}
	d.analyzer.analysis = ai.Analysis{Signal: "BUY", Message: "still fine"}

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, d.analyzer.calls, "AI must be invoked exactly once")
	assert.Equal(t, runlog.StatusSuccess, rec.Status)
	assert.Equal(t, signal.Buy, rec.Signal, "the AI signal is the final verdict")
	assert.False(t, rec.IsAlert, "BUY equals last persisted signal, deduplicated")
}

func TestPipeline_ScriptOnlyKeywordInferenceEndToEnd(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeScriptOnly)

	// Last signal defaults to WAIT (no prior record). The script
	// triggers with a Chinese message and no explicit signal.
	d.rules.result = rules.Result{Triggered: true, Message: "跌破均线"}

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, signal.Sell, rec.Signal, "canonicalizer infers SELL from the message")
	assert.Equal(t, signal.Wait, rec.PrevSignal)
	assert.True(t, rec.IsAlert, "WAIT→SELL attempts an alert")
	assert.Equal(t, 1, d.dispatcher.calls)
	assert.Zero(t, d.analyzer.calls, "script_only never calls the AI")
}

func TestPipeline_UnchangedSignalNeverRedispatches(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeScriptOnly)
	d.rules.result = rules.Result{Triggered: true, Signal: "SELL"}

	first, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)
	assert.True(t, first.IsAlert)

	second, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)
	assert.False(t, second.IsAlert, "same canonical signal twice must not alert twice")
	assert.Equal(t, 1, d.dispatcher.calls)
}

func TestPipeline_UntriggeredRuleReadsAsWait(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeScriptOnly)
	d.rules.result = rules.Result{Triggered: false, Message: "卖出信号未确认"}

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, signal.Wait, rec.Signal)
	assert.False(t, rec.IsAlert)
}

func TestPipeline_MissingScriptIsConfigError(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeScriptOnly)
	inst.RuleScriptID = nil

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusConfigError, rec.Status)
	assert.Contains(t, rec.Detail, "no rule script configured")
	require.Len(t, d.runs.records, 1, "config errors are always on record")

	// Dangling reference is the same class of failure
	missing := int64(99)
	inst.RuleScriptID = &missing
	rec, err = d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusConfigError, rec.Status)
	assert.Contains(t, rec.Detail, "not found")
}

func TestPipeline_MissingProviderIsConfigError(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeAIOnly)
	inst.AIProviderID = nil

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, runlog.StatusConfigError, rec.Status)
	assert.Contains(t, rec.Detail, "no AI provider configured")
	assert.Zero(t, d.analyzer.calls)
}

func TestPipeline_SuppressedByRateLimit(t *testing.T) {
	d := newTestPipeline(t)
	d.config.policy.MaxPerHour = 1
	d.config.policy.BypassStrongSignals = false
	inst := scriptInstrument(signal.ModeScriptOnly)

	// First change dispatches and uses up the hourly budget
	d.rules.result = rules.Result{Triggered: true, Signal: "SELL"}
	first, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)
	assert.True(t, first.IsAlert)

	// Second change would alert but the cap is exhausted
	d.rules.result = rules.Result{Triggered: true, Signal: "BUY"}
	second, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.False(t, second.IsAlert)
	assert.True(t, second.Suppressed, "a rate-limit denial is a suppression, not an error")
	assert.Equal(t, runlog.StatusSuccess, second.Status)
	assert.Equal(t, 1, d.dispatcher.calls)
}

func TestPipeline_StrongSignalBypassesExhaustedCap(t *testing.T) {
	d := newTestPipeline(t)
	d.config.policy.MaxPerHour = 1
	inst := scriptInstrument(signal.ModeScriptOnly)

	d.rules.result = rules.Result{Triggered: true, Signal: "SELL"}
	_, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	d.rules.result = rules.Result{Triggered: true, Signal: "STRONG_SELL"}
	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.True(t, rec.IsAlert, "STRONG_SELL bypasses the exhausted cap")
	assert.Equal(t, 2, d.dispatcher.calls)
}

func TestPipeline_AIOnlyFinalSignal(t *testing.T) {
	d := newTestPipeline(t)
	inst := scriptInstrument(signal.ModeAIOnly)
	d.analyzer.analysis = ai.Analysis{Signal: "strong buy", Message: "momentum", HoldingDuration: "短线"}

	rec, err := d.pipeline.Execute(context.Background(), inst, RunOptions{})
	require.NoError(t, err)

	assert.Zero(t, d.rules.calls, "ai_only never runs the rule engine")
	assert.Equal(t, signal.StrongBuy, rec.Signal)
	assert.Equal(t, signal.UrgencyUrgent, rec.Urgency)
	assert.Equal(t, "raw analyzer text", rec.AIOutput)
}
