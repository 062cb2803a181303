package marketdata

import (
	"context"
	"strings"
	"time"
)

// ErrorMarker prefixes the payload a fetcher returns when it could
// not produce data. A marker payload is a tallied fetch failure, not
// a fatal error: the run continues and the failure is auditable in
// the run record.
const ErrorMarker = "ERROR:"

// IsError reports whether a fetched payload is an error marker.
func IsError(payload string) bool {
	return strings.HasPrefix(strings.TrimSpace(payload), ErrorMarker)
}

// Candle is one daily bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Fetcher turns an indicator reference into market data.
//
// Fetch renders the data as a text table suitable for an AI prompt;
// failures come back as an ErrorMarker payload. Candles returns the
// typed series consumed by rule-script helpers.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) string
	Candles(ctx context.Context, symbol string, days int) ([]Candle, error)
}
