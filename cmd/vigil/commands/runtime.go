package commands

import (
	"fmt"

	"github.com/wonny/vigil/internal/ai"
	"github.com/wonny/vigil/internal/alert"
	"github.com/wonny/vigil/internal/calendar"
	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/internal/monitor"
	"github.com/wonny/vigil/internal/rules"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/pkg/config"
	"github.com/wonny/vigil/pkg/database"
	"github.com/wonny/vigil/pkg/httputil"
	"github.com/wonny/vigil/pkg/logger"
	"github.com/wonny/vigil/pkg/redis"
)

// app bundles the wired runtime shared by the CLI commands.
// ⭐ SSOT: 런타임 조립은 이 함수에서만
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	db          *database.DB
	rdb         *redis.Client
	instruments *instrument.Repository
	runs        *runlog.Repository
	fetcher     *marketdata.NaverFetcher
	pipeline    *monitor.Pipeline
}

func initApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (degrades to pass-through when disabled)
	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 5. Create HTTP client and market data fetcher
	httpClient := httputil.New(log)
	mdCache := redis.NewCache(rdb, "md")
	outbound := redis.NewRateLimiter(rdb, "vigil")
	fetcher := marketdata.NewNaverFetcher(httpClient, mdCache, outbound, log)

	// 6. Create rule engine and AI analyzer
	engine := rules.New(fetcher, cfg.Monitor.ScriptTimeout, log)
	analyzer := ai.NewClient(httpClient, cfg.AI, outbound, log)

	// 7. Create alert dispatcher
	dispatcher := alert.NewEmailDispatcher(cfg.SMTP, log)

	// 8. Create schedule gate
	cal := calendar.New(db.Pool, log)
	gate := monitor.NewScheduleGate(cal, cfg.Monitor.DefaultSchedule, log)

	// 9. Create repositories
	instruments := instrument.NewRepository(db.Pool)
	runs := runlog.NewRepository(db.Pool)

	// 10. Create pipeline
	pipeline := monitor.NewPipeline(
		gate,
		instruments,
		runs,
		engine,
		analyzer,
		fetcher,
		dispatcher,
		monitor.NewRateLimiter(),
		log,
	)

	return &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		rdb:         rdb,
		instruments: instruments,
		runs:        runs,
		fetcher:     fetcher,
		pipeline:    pipeline,
	}, nil
}

func (a *app) close() {
	a.rdb.Close()
	a.db.Close()
}
