package rules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/pkg/logger"
)

// Result is what a rule script produced. Signal stays raw here; the
// pipeline canonicalizes it.
type Result struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
	Signal    string `json:"signal,omitempty"`
	Log       string `json:"log,omitempty"` // captured print output
}

// Runner executes a rule script for one symbol.
type Runner interface {
	Run(ctx context.Context, code, symbol string) Result
}

// Engine hosts rule scripts in an embedded JS interpreter. Each run
// gets a fresh VM exposing exactly: the symbol string, a vetted
// helper set (read-only market data, numeric/date utilities, print),
// and the three writable output slots triggered/message/signal.
// Nothing else: no filesystem, no network, no ambient state.
// ⭐ SSOT: 룰 스크립트 실행은 여기서만
type Engine struct {
	fetcher marketdata.Fetcher
	timeout time.Duration
	logger  *logger.Logger
}

// New creates a new rule engine. timeout bounds one script run;
// zero disables the interrupt.
func New(fetcher marketdata.Fetcher, timeout time.Duration, log *logger.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		timeout: timeout,
		logger:  log,
	}
}

// Run executes code against symbol. Script exceptions and timeouts
// never escape: they come back as {triggered:false, message:<error>}.
func (e *Engine) Run(ctx context.Context, code, symbol string) (res Result) {
	vm := goja.New()
	var printed strings.Builder

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Triggered: false,
				Message:   fmt.Sprintf("script panic: %v", r),
				Log:       printed.String(),
			}
		}
	}()

	e.install(ctx, vm, symbol, &printed)

	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			vm.Interrupt("script timeout")
		})
		defer timer.Stop()
	}

	_, err := vm.RunString(code)
	if err != nil {
		e.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		}).Warn("Rule script failed")

		return Result{
			Triggered: false,
			Message:   scriptErrorText(err),
			Log:       printed.String(),
		}
	}

	return Result{
		Triggered: readBool(vm, "triggered"),
		Message:   readString(vm, "message"),
		Signal:    readString(vm, "signal"),
		Log:       printed.String(),
	}
}

// install wires the sandbox globals into a fresh VM.
func (e *Engine) install(ctx context.Context, vm *goja.Runtime, symbol string, printed *strings.Builder) {
	// Output slots with documented defaults
	_ = vm.Set("triggered", false)
	_ = vm.Set("message", "")
	// signal stays undefined until the script assigns it

	_ = vm.Set("symbol", symbol)

	// Diagnostics go to a separate captured log, never into message
	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		printed.WriteString(strings.Join(parts, " "))
		printed.WriteString("\n")
		return goja.Undefined()
	})

	// Read-only market data accessor bound to this symbol
	md := vm.NewObject()
	_ = md.Set("candles", func(days int) goja.Value {
		candles, err := e.fetcher.Candles(ctx, symbol, days)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("market data unavailable: %w", err)))
		}
		return vm.ToValue(candlesToJS(candles))
	})
	_ = md.Set("fetch", func(ref string) string {
		return e.fetcher.Fetch(ctx, ref)
	})
	_ = vm.Set("md", md)

	// Numeric helpers
	ta := vm.NewObject()
	_ = ta.Set("sma", sma)
	_ = ta.Set("changePct", changePct)
	_ = ta.Set("round", roundTo)
	_ = vm.Set("ta", ta)

	// Date helpers
	dates := vm.NewObject()
	_ = dates.Set("today", func() string {
		return time.Now().Format("2006-01-02")
	})
	_ = dates.Set("daysAgo", func(n int) string {
		return time.Now().AddDate(0, 0, -n).Format("2006-01-02")
	})
	_ = vm.Set("dates", dates)
}

func candlesToJS(candles []marketdata.Candle) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(candles))
	for _, c := range candles {
		out = append(out, map[string]interface{}{
			"date":   c.Date.Format("2006-01-02"),
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		})
	}
	return out
}

// sma returns the simple moving average over the last n values, or
// NaN when the series is too short.
func sma(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return math.NaN()
	}

	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// changePct returns the percent change from a to b.
func changePct(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / a * 100
}

func roundTo(x float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(x*pow) / pow
}

// scriptErrorText flattens a goja error into the message slot text.
func scriptErrorText(err error) string {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value().String()
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return "script timeout"
	}
	return err.Error()
}

func readBool(vm *goja.Runtime, name string) bool {
	v := vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	return v.ToBoolean()
}

func readString(vm *goja.Runtime, name string) string {
	v := vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
