package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_ExplicitValues(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		message  string
		want     Signal
	}{
		{"canonical token", "SELL", "", Sell},
		{"canonical token lowercase", "strong_buy", "", StrongBuy},
		{"canonical token mixed case", "Wait", "", Wait},
		{"explicit synonym chinese", "清仓", "", StrongSell},
		{"explicit synonym english", "bullish breakout: buy", "", Buy},
		{"unusable explicit falls back to message", "???", "建仓机会", Buy},
		{"empty everything", "", "", Wait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.explicit, tt.message))
		})
	}
}

func TestCanonicalize_FreeTextInference(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Signal
	}{
		{"break below moving average", "跌破均线", Sell},
		{"golden cross", "5日均线金叉10日均线", Buy},
		{"liquidate", "建议清仓，风险极高", StrongSell},
		{"hold position", "继续持有观望", Wait},
		{"unmatched text defaults to wait", "成交量放大", Wait},
		// Compound phrase: strong-sell keywords checked before sell,
		// so the most severe class wins.
		{"compound strong over plain", "立即卖出，筹码出货明显", StrongSell},
		{"english sell", "price broke support, sell half", Sell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize("", tt.message))
		})
	}
}

// Re-canonicalizing an already-canonical value must return it unchanged.
func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []struct{ explicit, message string }{
		{"SELL", ""},
		{"强烈买入", ""},
		{"", "跌破均线"},
		{"", "no keywords here"},
		{"garbage", "garbage"},
	}

	for _, in := range inputs {
		first := Canonicalize(in.explicit, in.message)
		second := Canonicalize(string(first), "")
		assert.Equal(t, first, second, "canonicalize(%q,%q) not idempotent", in.explicit, in.message)
	}

	for _, s := range All {
		assert.Equal(t, s, Canonicalize(string(s), ""))
	}
}

func TestSignal_IsStrong(t *testing.T) {
	assert.True(t, StrongBuy.IsStrong())
	assert.True(t, StrongSell.IsStrong())
	assert.False(t, Buy.IsStrong())
	assert.False(t, Sell.IsStrong())
	assert.False(t, Wait.IsStrong())
}

func TestClassifyUrgency(t *testing.T) {
	tests := []struct {
		text string
		want Urgency
	}{
		{"日内短线操作", UrgencyUrgent},
		{"intraday scalp", UrgencyUrgent},
		{"长期持有，数月以上", UrgencyLow},
		{"hold 6 months", UrgencyLow},
		{"一到两周", UrgencyNormal},
		{"", UrgencyNormal},
		{"whatever", UrgencyNormal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyUrgency(tt.text), "text=%q", tt.text)
	}
}
