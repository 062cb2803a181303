package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/vigil/pkg/logger"
)

// Source answers "is this a trading day". Implementations may be slow
// or fail; callers fall back to a weekday approximation on error.
type Source interface {
	IsTradingDay(ctx context.Context, day time.Time) (bool, error)
}

// Calendar is a holiday-table-backed trading-day source with a
// per-calendar-day in-process cache. Exchange holidays are loaded by
// an external housekeeping process; weekends never trade.
// ⭐ SSOT: 거래일 판정은 여기서만
type Calendar struct {
	pool   *pgxpool.Pool
	logger *logger.Logger

	mu    sync.Mutex
	cache map[string]bool // "2006-01-02" → is trading day
}

// New creates a new trading calendar
func New(pool *pgxpool.Pool, log *logger.Logger) *Calendar {
	return &Calendar{
		pool:   pool,
		logger: log,
		cache:  make(map[string]bool),
	}
}

// IsTradingDay reports whether day is a trading day. The answer is
// cached for the rest of the process lifetime per calendar day.
func (c *Calendar) IsTradingDay(ctx context.Context, day time.Time) (bool, error) {
	key := day.Format("2006-01-02")

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	trading, err := c.lookup(ctx, day)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.cache[key] = trading
	c.mu.Unlock()

	return trading, nil
}

func (c *Calendar) lookup(ctx context.Context, day time.Time) (bool, error) {
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}

	var isHoliday bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM monitor.holidays WHERE day = $1)`,
		day.Format("2006-01-02"),
	).Scan(&isHoliday)
	if err != nil {
		return false, err
	}

	return !isHoliday, nil
}

// Weekday is the fallback source used when the real calendar lookup
// fails: Monday through Friday count as trading days.
type Weekday struct{}

// IsTradingDay reports whether day falls on a weekday.
func (Weekday) IsTradingDay(_ context.Context, day time.Time) (bool, error) {
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday, nil
}
