package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/pkg/logger"
)

// fakeFetcher serves a fixed candle series.
type fakeFetcher struct {
	candles []marketdata.Candle
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) string {
	if f.err != nil {
		return fmt.Sprintf("%s %v", marketdata.ErrorMarker, f.err)
	}
	return "symbol: " + ref + "\n"
}

func (f *fakeFetcher) Candles(_ context.Context, _ string, _ int) ([]marketdata.Candle, error) {
	return f.candles, f.err
}

func newTestEngine(f marketdata.Fetcher) *Engine {
	return New(f, 5*time.Second, logger.NewNop())
}

func TestEngine_OutputSlots(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{})

	res := engine.Run(context.Background(), `
		triggered = true;
		message = "跌破均线";
		signal = "SELL";
	`, "600519")

	assert.True(t, res.Triggered)
	assert.Equal(t, "跌破均线", res.Message)
	assert.Equal(t, "SELL", res.Signal)
}

func TestEngine_Defaults(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{})

	res := engine.Run(context.Background(), `var x = 1;`, "600519")

	assert.False(t, res.Triggered)
	assert.Empty(t, res.Message)
	assert.Empty(t, res.Signal, "signal stays unset unless assigned")
}

func TestEngine_SymbolAndHelpers(t *testing.T) {
	fetcher := &fakeFetcher{candles: []marketdata.Candle{
		{Close: 10}, {Close: 12}, {Close: 14},
	}}
	engine := newTestEngine(fetcher)

	res := engine.Run(context.Background(), `
		var cs = md.candles(3);
		var closes = [];
		for (var i = 0; i < cs.length; i++) closes.push(cs[i].close);
		var avg = ta.sma(closes, 3);
		triggered = cs[cs.length-1].close > avg;
		message = symbol + " sma=" + ta.round(avg, 2);
	`, "600519")

	assert.True(t, res.Triggered)
	assert.Equal(t, "600519 sma=12", res.Message)
}

func TestEngine_ExceptionBecomesMessage(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{})

	res := engine.Run(context.Background(), `throw new Error("boom"); triggered = true;`, "600519")

	assert.False(t, res.Triggered)
	assert.Contains(t, res.Message, "boom")
}

func TestEngine_SyntaxErrorBecomesMessage(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{})

	res := engine.Run(context.Background(), `this is not javascript`, "600519")

	assert.False(t, res.Triggered)
	assert.NotEmpty(t, res.Message)
}

func TestEngine_FetchFailureIsCatchable(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{err: fmt.Errorf("upstream down")})

	res := engine.Run(context.Background(), `var cs = md.candles(5); triggered = true;`, "600519")

	assert.False(t, res.Triggered)
	assert.Contains(t, res.Message, "market data unavailable")
}

func TestEngine_PrintCapturedSeparately(t *testing.T) {
	engine := newTestEngine(&fakeFetcher{})

	res := engine.Run(context.Background(), `
		print("debug", 42);
		message = "clean";
	`, "600519")

	assert.Equal(t, "clean", res.Message)
	assert.Equal(t, "debug 42\n", res.Log)
}

func TestEngine_Timeout(t *testing.T) {
	engine := New(&fakeFetcher{}, 100*time.Millisecond, logger.NewNop())

	start := time.Now()
	res := engine.Run(context.Background(), `for(;;){}`, "600519")

	require.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.Triggered)
	assert.Contains(t, res.Message, "timeout")
}
