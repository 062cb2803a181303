package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Quote is the current snapshot of one symbol, scraped from the
// Naver Finance item page.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Quote scrapes the current price snapshot for symbol. Cached for a
// short interval like candles.
func (f *NaverFetcher) Quote(ctx context.Context, symbol string) (*Quote, error) {
	cacheKey := fmt.Sprintf("quote:%s", symbol)
	var cached Quote
	if hit, _ := f.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	if err := f.throttle(ctx); err != nil {
		return nil, err
	}

	fullURL := fmt.Sprintf("https://finance.naver.com/item/main.naver?code=%s", symbol)

	resp, err := f.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	quote := &Quote{
		Symbol:    symbol,
		Name:      strings.TrimSpace(doc.Find("div.wrap_company h2 a").First().Text()),
		FetchedAt: time.Now(),
	}

	quote.Price = parseNumber(doc.Find("p.no_today span.blind").First().Text())

	// Change amount and percent share the no_exday block
	exday := doc.Find("p.no_exday span.blind")
	if exday.Length() >= 2 {
		quote.Change = parseNumber(exday.Eq(0).Text())
		quote.ChangePct = parseNumber(exday.Eq(1).Text())
	}
	if doc.Find("p.no_exday em.no_down").Length() > 0 {
		quote.Change = -quote.Change
		quote.ChangePct = -quote.ChangePct
	}

	if quote.Price == 0 {
		return nil, fmt.Errorf("no price found for %s", symbol)
	}

	_ = f.cache.Set(ctx, cacheKey, quote, 30*time.Second)

	return quote, nil
}

// parseNumber strips thousand separators and parses a float
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	n, _ := strconv.ParseFloat(s, 64)
	return n
}
