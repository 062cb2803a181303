package signal

import "strings"

// Keyword tables mapping upstream wording to canonical signals.
// Scripts and AI analyzers are not governed sources; their wording
// drifts, so inference is a declarative contains-match over these
// tables rather than anything clever. Scan order is fixed: the two
// strong classes first, then sell before buy, so compound phrases
// resolve to the most specific class that matches.
// ⭐ SSOT: 키워드 → 시그널 매핑은 이 테이블에서만
var keywordTable = []struct {
	signal   Signal
	keywords []string
}{
	{StrongSell, []string{
		"strong sell", "strong_sell", "强烈卖出", "立即卖出", "紧急卖出",
		"清仓", "止损离场", "急跌", "崩盘",
	}},
	{StrongBuy, []string{
		"strong buy", "strong_buy", "强烈买入", "立即买入", "重仓买入",
		"全仓", "强势突破",
	}},
	{Sell, []string{
		"sell", "卖出", "减仓", "离场", "出货", "跌破", "死叉", "看空", "做空",
	}},
	{Buy, []string{
		"buy", "买入", "加仓", "建仓", "突破", "金叉", "看多", "做多", "低吸",
	}},
	{Wait, []string{
		"wait", "hold", "观望", "等待", "持有", "持仓不动", "横盘",
	}},
}

// Canonicalize normalizes an explicit signal value and/or a free-form
// message into a canonical Signal. Pure and idempotent:
// Canonicalize(string(s), "") == s for every canonical s.
//
// Resolution order:
//  1. explicit value already canonical (case-insensitive) → use it
//  2. explicit value matched against the keyword table
//  3. free-form message scanned against the keyword table
//  4. nothing matched → Wait
func Canonicalize(explicit, message string) Signal {
	if v := strings.TrimSpace(explicit); v != "" {
		upper := Signal(strings.ToUpper(v))
		if upper.Valid() {
			return upper
		}
		if s, ok := matchKeywords(v); ok {
			return s
		}
		// An explicit value that resolves to nothing is treated the
		// same as no explicit value at all.
	}

	if s, ok := matchKeywords(message); ok {
		return s
	}

	return Wait
}

// matchKeywords scans text against the keyword table in severity order.
func matchKeywords(text string) (Signal, bool) {
	if text == "" {
		return Wait, false
	}

	lower := strings.ToLower(text)
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.signal, true
			}
		}
	}

	return Wait, false
}
