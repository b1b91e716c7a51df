package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stocknet/internal/config"
	"stocknet/internal/domain"
	"stocknet/internal/gather/us"
	"stocknet/internal/ingest"
	"stocknet/internal/news"
	"stocknet/internal/schedule"
	"stocknet/internal/sentiment"
	"stocknet/internal/store"
	"stocknet/internal/util"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit.
func run() int {
	date := flag.String("date", "", "ingest this date (YYYY-MM-DD) now, ignoring the schedule, then exit")
	once := flag.Bool("once", false, "wait for the next eligible window, run once, then exit")
	flag.Parse()

	if *date != "" {
		if _, err := time.Parse(domain.DateLayout, *date); err != nil {
			log.Printf("invalid -date: %v", err)
			return 2
		}
	}

	cfgPath := "config/stocknet.yaml"
	if p := os.Getenv("STOCKNET_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Printf("alpaca credentials are required (alpaca.api_key / APCA_API_KEY_ID)")
		return 1
	}

	// Dual logger: stdout + optional log file.
	w, closeLog, err := util.OpenLogOutput(cfg.Logging.File)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return 1
	}
	defer closeLog()
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Printf("failed to create store directory: %v", err)
		return 1
	}
	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Printf("failed to open store: %v", err)
		return 1
	}
	defer st.Close()

	if err := seedRunMarker(ctx, st, cfg.Ingest.LastRunDate); err != nil {
		log.Printf("failed to seed run marker: %v", err)
		return 1
	}

	universe, err := us.LoadUniverse(cfg.Ingest.Tickers, cfg.Ingest.TickersFile)
	if err != nil {
		log.Printf("failed to load ticker universe: %v", err)
		return 1
	}

	limiter := util.NewRateLimiter(cfg.Ingest.RateLimitPerMin)
	market, err := us.NewSnapshotSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
		cfg.Alpaca.Feed, universe.Profiles, limiter)
	if err != nil {
		log.Printf("failed to create market data source: %v", err)
		return 1
	}
	newsSource, err := news.NewSource(news.Options{
		APIKey:      cfg.Alpaca.APIKey,
		APISecret:   cfg.Alpaca.APISecret,
		DataURL:     cfg.Alpaca.DataURL,
		GoogleURL:   news.DefaultGoogleURL,
		GlobeURL:    news.DefaultGlobeURL,
		Limit:       cfg.Ingest.NewsLimit,
		FetchBodies: true,
		Limiter:     limiter,
	})
	if err != nil {
		log.Printf("failed to create news source: %v", err)
		return 1
	}
	calendar := us.NewCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, util.NewTradingCalendar())

	completer, err := sentiment.NewCompleter(ctx, cfg.Sentiment)
	if err != nil {
		log.Printf("failed to create sentiment scorer: %v", err)
		return 1
	}

	ingestor := ingest.NewIngestor(market, newsSource, sentiment.NewAggregator(completer, logger), st,
		ingest.RetryOptions{Attempts: cfg.Ingest.RetryAttempts, Delay: cfg.Ingest.RetryDelay()}, logger)
	controller := ingest.NewController(ingestor, st, universe.Tickers, logger)

	sched, err := schedule.New(cfg.Schedule, calendar, st, logger)
	if err != nil {
		log.Printf("failed to create scheduler: %v", err)
		return 1
	}

	logger.Info("boot",
		"version", version,
		"config", cfgPath,
		"store", cfg.Storage.SQLitePath,
		"tickers", len(universe.Tickers),
		"sentiment", cfg.Sentiment.Provider,
		"window", cfg.Schedule.WindowStart+"-"+cfg.Schedule.WindowEnd,
	)

	switch {
	case *date != "":
		if _, err := controller.Run(ctx, *date); err != nil && ctx.Err() == nil {
			logger.Error("run failed", "date", *date, "error", err)
			return 1
		}

	case *once:
		day, ok, err := sched.ShouldRunToday(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			logger.Error("schedule check failed", "error", err)
			return 1
		}
		if !ok {
			break
		}
		if _, err := controller.Run(ctx, day); err != nil && ctx.Err() == nil {
			logger.Error("run failed", "date", day, "error", err)
			return 1
		}

	default:
		daemon := ingest.NewDaemon(sched, controller, ingest.DefaultRetryAfter, logger)
		if err := daemon.Run(ctx); err != nil {
			logger.Error("daemon stopped", "error", err)
		}
	}

	logger.Info("shutdown")
	return 0
}

// seedRunMarker copies the configured last run date into the store when the
// store has no marker yet.
func seedRunMarker(ctx context.Context, marker store.RunMarker, seed string) error {
	if seed == "" {
		return nil
	}
	last, err := marker.LastRunDate(ctx)
	if err != nil {
		return err
	}
	if last != "" {
		return nil
	}
	return marker.SetLastRunDate(ctx, seed)
}
