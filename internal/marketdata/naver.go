package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/vigil/pkg/httputil"
	"github.com/wonny/vigil/pkg/logger"
	"github.com/wonny/vigil/pkg/redis"
)

// NaverFetcher retrieves daily candles from the Naver Finance chart
// endpoint. Responses are cached briefly in Redis so a burst of
// overlapping instrument runs does not hammer the endpoint; a local
// token bucket throttles on top of that.
// ⭐ SSOT: Naver Finance 시세 조회는 여기서만
type NaverFetcher struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	limiter    *rate.Limiter
	shared     *redis.RateLimiter
	logger     *logger.Logger
	baseURL    string
}

// NewNaverFetcher creates a new Naver Finance fetcher. The shared
// limiter throttles across processes; the local token bucket caps
// bursts within this one.
func NewNaverFetcher(httpClient *httputil.Client, cache *redis.Cache, shared *redis.RateLimiter, log *logger.Logger) *NaverFetcher {
	return &NaverFetcher{
		httpClient: httpClient,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		shared:     shared,
		logger:     log,
		baseURL:    "https://fchart.stock.naver.com",
	}
}

const defaultFetchDays = 60

// Fetch resolves an indicator reference ("SYMBOL" or "SYMBOL:days")
// into a text table of daily candles. Never returns a Go error:
// failures become an ErrorMarker payload per the fetcher contract.
func (f *NaverFetcher) Fetch(ctx context.Context, ref string) string {
	symbol, days := parseRef(ref)
	if symbol == "" {
		return fmt.Sprintf("%s invalid data ref %q", ErrorMarker, ref)
	}

	candles, err := f.Candles(ctx, symbol, days)
	if err != nil {
		return fmt.Sprintf("%s fetch %s failed: %v", ErrorMarker, symbol, err)
	}
	if len(candles) == 0 {
		return fmt.Sprintf("%s no data for %s", ErrorMarker, symbol)
	}

	return renderTable(symbol, candles)
}

// Candles fetches up to days daily bars for symbol, oldest first.
func (f *NaverFetcher) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	if days <= 0 {
		days = defaultFetchDays
	}

	cacheKey := fmt.Sprintf("candles:%s:%d", symbol, days)
	var cached []Candle
	if hit, _ := f.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	if err := f.throttle(ctx); err != nil {
		return nil, err
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days*2) // weekends/holidays thin the series

	fullURL := fmt.Sprintf(
		"%s/siseJson.naver?symbol=%s&requestType=1&startTime=%s&endTime=%s&timeframe=day",
		f.baseURL, symbol, from.Format("20060102"), to.Format("20060102"),
	)

	resp, err := f.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	candles, err := parseChartResponse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}

	if len(candles) > days {
		candles = candles[len(candles)-days:]
	}

	_ = f.cache.Set(ctx, cacheKey, candles, 60*time.Second)

	f.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(candles),
	}).Debug("Fetched candles")

	return candles, nil
}

// throttle applies the local bucket, then the shared window.
func (f *NaverFetcher) throttle(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("local rate limit wait failed: %w", err)
	}
	if f.shared != nil {
		if err := f.shared.Wait(ctx, redis.NaverRateLimit); err != nil {
			return fmt.Errorf("shared rate limit wait failed: %w", err)
		}
	}
	return nil
}

// parseRef splits "SYMBOL" / "SYMBOL:days"
func parseRef(ref string) (string, int) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", 0
	}

	parts := strings.SplitN(ref, ":", 2)
	symbol := parts[0]
	days := defaultFetchDays
	if len(parts) == 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
			days = n
		}
	}

	return symbol, days
}

// parseChartResponse parses the quasi-JSON array the chart endpoint
// returns (single-quoted, header row first).
func parseChartResponse(body string) ([]Candle, error) {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "'", "\"")

	var rawData [][]interface{}
	if err := json.Unmarshal([]byte(body), &rawData); err != nil {
		return nil, fmt.Errorf("unexpected chart payload: %w", err)
	}

	var candles []Candle
	for i, row := range rawData {
		if i == 0 || len(row) < 6 {
			continue // header row
		}

		dateStr, ok := row[0].(string)
		if !ok {
			continue
		}
		dateStr = strings.Trim(dateStr, "\" ")
		if len(dateStr) == 8 {
			dateStr = dateStr[:4] + "-" + dateStr[4:6] + "-" + dateStr[6:8]
		}

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		candles = append(candles, Candle{
			Date:   date,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: int64(toFloat(row[5])),
		})
	}

	return candles, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
}

// renderTable formats candles as the plain-text table handed to the
// AI analyzer prompt.
func renderTable(symbol string, candles []Candle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol: %s\ndate,open,high,low,close,volume\n", symbol)
	for _, c := range candles {
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			c.Date.Format("2006-01-02"), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return b.String()
}
